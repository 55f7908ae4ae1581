package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the credentials file.
const (
	EnvUsername = "SHAPEAUDIT_USERNAME"
	EnvPassword = "SHAPEAUDIT_PASSWORD"
	EnvSecret   = "SHAPEAUDIT_SECRET"
)

// Credentials are the login details shared by every device session. They are
// read once at startup and never modified.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Secret   string `yaml:"secret"` // enable secret, defaults to Password
}

// EnableSecret returns the secret used to enter privileged mode.
func (c Credentials) EnableSecret() string {
	if c.Secret != "" {
		return c.Secret
	}
	return c.Password
}

// String never prints the password or secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: [redacted]}", c.Username)
}

// LoadCredentials reads credentials from a YAML file and applies environment
// overrides. An empty path loads from the environment only.
func LoadCredentials(path string) (Credentials, error) {
	var c Credentials
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Credentials{}, fmt.Errorf("reading credentials file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Credentials{}, fmt.Errorf("parsing credentials file %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvUsername); v != "" {
		c.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Password = v
	}
	if v := os.Getenv(EnvSecret); v != "" {
		c.Secret = v
	}

	if c.Username == "" {
		return Credentials{}, fmt.Errorf("credentials: username is required")
	}
	if c.Password == "" {
		return Credentials{}, fmt.Errorf("credentials: password is required")
	}
	return c, nil
}
