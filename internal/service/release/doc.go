// Package release runs the top-level release tasks: build and sign the
// archive, publish a signed build with its update descriptor, bump and tag
// the release version, and describe the resolved build facts.
package release
