// Package version holds the build version, set at link time with
// -ldflags "-X github.com/netaudit/shapeaudit/pkg/version.Version=v1.2.3".
package version

// Version is the shapeaudit release.
var Version = "dev"
