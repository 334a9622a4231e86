// Package buildinfo exposes build metadata of the xpi-release binary.
//
// Version, Commit and BuildTime are injected with -ldflags and keep
// placeholder values for local builds.
package buildinfo
