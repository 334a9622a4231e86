// Package config loads the release configuration document (xpi.yml).
//
// The YAML document is checked against an embedded JSON Schema, decoded into
// the typed Config struct and completed with defaults. Unknown keys are kept
// in Config.Extra so the document survives a Save round trip. The package
// also provides the Environment abstraction used to read CI variables and
// signing credentials.
package config
