package config

import "time"

// DefaultThreads is the worker pool size used when none is configured.
const DefaultThreads = 12

// DefaultTimezone is the zone report timestamps are written in.
const DefaultTimezone = "America/New_York"

// Options holds all configuration for a shapeaudit run.
type Options struct {
	// Targets
	DevicesFile string   // CSV or plain list of device addresses
	Addresses   []string // extra addresses from the command line
	CIDRTargets string   // CIDR range to expand into host addresses

	// Credentials
	CredentialsFile string

	// Session
	Port           int
	ConnectTimeout time.Duration // TCP connect + SSH handshake
	CommandTimeout time.Duration // per command round trip
	DeviceTimeout  time.Duration // whole per-device procedure, 0 = unbounded

	// Performance
	Threads          int
	Rate             float64 // new connections per second, 0 = unlimited
	AdaptiveThrottle bool

	// Policy
	StrictTolerance bool // record out-of-tolerance mismatches as Fail
	Timezone        string

	// Output
	OutputFile   string
	OutputFormat string // "csv", "json", "text"
	SortBy       string // "", "address", "status", "hostname"
	Progress     bool
	Quiet        bool
	NoColor      bool

	// Logging
	LogFile  string // "-" = stderr
	LogLevel string

	// Resume
	ResumeFile string

	// Hooks
	OnResultCmd string
}
