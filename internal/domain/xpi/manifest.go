package xpi

// TargetApplication is a host application the extension declares compatibility with.
type TargetApplication struct {
	// ID is the host application identifier.
	ID string
	// MinVersion is the lowest supported host version.
	MinVersion string
	// MaxVersion is the highest supported host version.
	MaxVersion string
}

// Manifest is the subset of the extension metadata file the release flow needs.
type Manifest struct {
	// ID is the extension identifier.
	ID string
	// Version is the version element of the metadata file.
	Version string
	// Targets lists every targetApplication block in document order.
	Targets []TargetApplication
}
