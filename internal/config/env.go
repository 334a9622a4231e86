package config

import (
	"os"
	"strings"
)

// Environment gives read access to process environment variables.
type Environment interface {
	// Lookup returns the value of key and whether it is set.
	Lookup(key string) (string, bool)
}

// OSEnvironment reads the real process environment.
type OSEnvironment struct{}

// Lookup implements Environment.
func (OSEnvironment) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnvironment is an Environment backed by a map, used in tests and dry runs.
type MapEnvironment map[string]string

// Lookup implements Environment.
func (m MapEnvironment) Lookup(key string) (string, bool) {
	value, ok := m[key]

	return value, ok
}

// Getenv returns the value of key or an empty string.
func Getenv(env Environment, key string) string {
	if env == nil {
		return ""
	}

	value, _ := env.Lookup(key)

	return value
}

// SigningDisabled reports whether SIGN explicitly opts out of signing.
func SigningDisabled(env Environment) bool {
	return Getenv(env, "SIGN") == "false"
}

// Offline reports whether OFFLINE disables network fixture sync.
func Offline(env Environment) bool {
	return strings.EqualFold(strings.TrimSpace(Getenv(env, "OFFLINE")), "true")
}
