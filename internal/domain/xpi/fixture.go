package xpi

import "strings"

// FixtureSource is a fixture descriptor resolved to something that can be fetched or built.
type FixtureSource struct {
	// Source is the descriptor as written in the configuration.
	Source string
	// URL is the download location. For snapshots it is informational only.
	URL string
	// Filename is the name of the archive inside the install directory.
	Filename string
	// Checkout is the local checkout zipped into the archive for snapshots.
	Checkout string
}

// IsLocal reports whether the source points at a local file, which may change at any time.
func (s *FixtureSource) IsLocal() bool {
	return strings.HasPrefix(s.URL, "file:")
}

// IsSnapshot reports whether the archive is produced from a local checkout.
func (s *FixtureSource) IsSnapshot() bool {
	return s.Checkout != ""
}
