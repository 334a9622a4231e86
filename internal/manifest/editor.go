package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"

	"github.com/oshokin/xpi-release/internal/domain/xpi"
)

// fileMode is used when the metadata file is rewritten.
const fileMode os.FileMode = 0o644

// Editor gives access to the metadata file at a fixed path.
type Editor struct {
	path string
}

// NewEditor returns an Editor for the metadata file at path.
func NewEditor(path string) *Editor {
	return &Editor{path: filepath.Clean(path)}
}

// Path returns the metadata file location.
func (e *Editor) Path() string {
	return e.path
}

// Read parses the metadata file as it is on disk right now.
func (e *Editor) Read() (*xpi.Manifest, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	descriptor, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.path, err)
	}

	return descriptor, nil
}

// ID returns the extension identifier from disk.
func (e *Editor) ID() (string, error) {
	descriptor, err := e.Read()
	if err != nil {
		return "", err
	}

	return descriptor.ID, nil
}

// Version returns the version element from disk.
func (e *Editor) Version() (string, error) {
	descriptor, err := e.Read()
	if err != nil {
		return "", err
	}

	return descriptor.Version, nil
}

// SetVersion rewrites the version element of the metadata file in place.
func (e *Editor) SetVersion(version string) error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	rewritten, err := RewriteVersion(data, version)
	if err != nil {
		return fmt.Errorf("%s: %w", e.path, err)
	}

	if err = os.WriteFile(e.path, rewritten, fileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// UpdateDescriptor renders the update descriptor for the current metadata file.
// Every targetApplication block is re-emitted with link as download location
// and changelog as update info URL.
func (e *Editor) UpdateDescriptor(link, changelog string) ([]byte, error) {
	descriptor, err := e.Read()
	if err != nil {
		return nil, err
	}

	return BuildUpdateDescriptor(descriptor, link, changelog)
}

// WithUpdateDescriptor writes the update descriptor to a temporary file and
// passes its path to fn. The file is removed when fn returns, whatever the outcome.
func (e *Editor) WithUpdateDescriptor(link, changelog string, fn func(path string) error) error {
	data, err := e.UpdateDescriptor(link, changelog)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "update-*.rdf")
	if err != nil {
		return fmt.Errorf("create update descriptor: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write update descriptor: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close update descriptor: %w", err)
	}

	return fn(tmp.Name())
}

// BuildUpdateDescriptor renders an update descriptor for descriptor.
func BuildUpdateDescriptor(descriptor *xpi.Manifest, link, changelog string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("RDF:RDF")
	root.CreateAttr("xmlns:RDF", rdfNamespace)
	root.CreateAttr("xmlns:em", emNamespace)

	extension := root.CreateElement("RDF:Description")
	extension.CreateAttr("RDF:about", "urn:mozilla:extension:"+descriptor.ID)

	entry := extension.
		CreateElement("em:updates").
		CreateElement("RDF:Seq").
		CreateElement("RDF:li").
		CreateElement("RDF:Description")
	entry.CreateElement("em:version").SetText(descriptor.Version)

	for _, target := range descriptor.Targets {
		application := entry.CreateElement("em:targetApplication").CreateElement("RDF:Description")
		application.CreateElement("em:id").SetText(target.ID)
		application.CreateElement("em:minVersion").SetText(target.MinVersion)
		application.CreateElement("em:maxVersion").SetText(target.MaxVersion)
		application.CreateElement("em:updateLink").SetText(link)
		application.CreateElement("em:updateInfoURL").SetText(changelog)
	}

	doc.Indent(2)

	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize update descriptor: %w", err)
	}

	return data, nil
}
