// Package buildversion computes the release version and the build-specific
// version string of the extension.
//
// Release builds use the bare release version from the metadata file. Any
// other build gets a qualifier naming the CI system (or the host), the branch
// when it is not the default one, and a build number or start timestamp, so
// concurrent non-release builds never collide. Branch and the release-build
// flag are computed once per Resolver.
package buildversion
