// Package xpi contains the core domain types of the extension release flow.
//
// It defines the manifest descriptor, the signing status payload returned by
// the signing service, resolved fixture sources, the release version bump
// rules and the sentinel errors shared by the services.
package xpi
