// Package integration runs the release pipeline end to end against fake
// signing and download services.
package integration
