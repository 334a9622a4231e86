package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/oshokin/xpi-release/internal/domain/xpi"
)

const (
	// emNamespace is the extension manager RDF vocabulary.
	emNamespace = "http://www.mozilla.org/2004/em-rdf#"
	// rdfNamespace is the RDF syntax vocabulary.
	rdfNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

	tagID                = "id"
	tagVersion           = "version"
	tagTargetApplication = "targetApplication"
	tagMinVersion        = "minVersion"
	tagMaxVersion        = "maxVersion"
	tagUpdateLink        = "updateLink"
)

var (
	// errElementMissing is returned when a required element is absent from the metadata file.
	errElementMissing = errors.New("element missing from manifest")
	// errNoRoot is returned for documents without a root element.
	errNoRoot = errors.New("document has no root element")
)

// Parse extracts the id, version and target applications from metadata file contents.
func Parse(data []byte) (*xpi.Manifest, error) {
	doc, err := readDocument(data)
	if err != nil {
		return nil, err
	}

	id := findOwn(doc.Root(), tagID)
	if id == nil {
		return nil, fmt.Errorf("em:%s: %w", tagID, errElementMissing)
	}

	version := findOwn(doc.Root(), tagVersion)
	if version == nil {
		return nil, fmt.Errorf("em:%s: %w", tagVersion, errElementMissing)
	}

	return &xpi.Manifest{
		ID:      strings.TrimSpace(id.Text()),
		Version: strings.TrimSpace(version.Text()),
		Targets: targets(doc.Root()),
	}, nil
}

// RewriteVersion returns data with the text of the version element replaced.
// Everything else in the document is kept.
func RewriteVersion(data []byte, version string) ([]byte, error) {
	doc, err := readDocument(data)
	if err != nil {
		return nil, err
	}

	element := findOwn(doc.Root(), tagVersion)
	if element == nil {
		return nil, fmt.Errorf("em:%s: %w", tagVersion, errElementMissing)
	}

	element.SetText(version)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize manifest: %w", err)
	}

	return out, nil
}

// ParseUpdateLink returns the first updateLink of an update descriptor, ignoring namespaces.
func ParseUpdateLink(data []byte) (string, error) {
	doc, err := readDocument(data)
	if err != nil {
		return "", err
	}

	var link string

	walk(doc.Root(), func(e *etree.Element) bool {
		if e.Tag == tagUpdateLink {
			link = strings.TrimSpace(e.Text())
			return false
		}

		return true
	})

	if link == "" {
		return "", fmt.Errorf("%s: %w", tagUpdateLink, errElementMissing)
	}

	return link, nil
}

func readDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	if doc.Root() == nil {
		return nil, errNoRoot
	}

	return doc, nil
}

// isEM reports whether e is the em:<tag> element.
func isEM(e *etree.Element, tag string) bool {
	if e.Tag != tag {
		return false
	}

	if uri := e.NamespaceURI(); uri != "" {
		return uri == emNamespace
	}

	return e.Space == "em"
}

// walk visits e and its descendants in document order until visit returns false.
// Returning false from visit also stops the whole walk.
func walk(e *etree.Element, visit func(*etree.Element) bool) bool {
	if !visit(e) {
		return false
	}

	for _, child := range e.ChildElements() {
		if !walk(child, visit) {
			return false
		}
	}

	return true
}

// findOwn returns the first em:<tag> that does not belong to a targetApplication block.
func findOwn(root *etree.Element, tag string) *etree.Element {
	var (
		found *etree.Element
		visit func(*etree.Element) bool
	)

	visit = func(e *etree.Element) bool {
		if isEM(e, tag) {
			found = e
			return false
		}

		if isEM(e, tagTargetApplication) {
			return true
		}

		for _, child := range e.ChildElements() {
			if !visit(child) {
				return false
			}
		}

		return true
	}

	visit(root)

	return found
}

// findFirst returns the first em:<tag> below e, at any depth.
func findFirst(e *etree.Element, tag string) *etree.Element {
	var found *etree.Element

	walk(e, func(candidate *etree.Element) bool {
		if candidate != e && isEM(candidate, tag) {
			found = candidate
			return false
		}

		return true
	})

	return found
}

func textOf(e *etree.Element) string {
	if e == nil {
		return ""
	}

	return strings.TrimSpace(e.Text())
}

// targets collects every targetApplication block in document order.
func targets(root *etree.Element) []xpi.TargetApplication {
	var result []xpi.TargetApplication

	walk(root, func(e *etree.Element) bool {
		if isEM(e, tagTargetApplication) {
			result = append(result, xpi.TargetApplication{
				ID:         textOf(findFirst(e, tagID)),
				MinVersion: textOf(findFirst(e, tagMinVersion)),
				MaxVersion: textOf(findFirst(e, tagMaxVersion)),
			})
		}

		return true
	})

	return result
}
