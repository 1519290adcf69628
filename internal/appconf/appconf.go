// Package appconf holds the runtime environment selector shared across
// the application.
package appconf

import "strings"

// Environment determines logging verbosity and whether debug surfaces
// (the spew dump handler) are exposed.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFromString maps a configuration string onto an Environment.
// Unrecognized values fall back to Development.
func EnvFromString(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}
