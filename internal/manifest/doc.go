// Package manifest reads and edits the extension metadata file (install.rdf)
// and produces the update descriptor (update.rdf) for installed copies.
//
// The metadata file is read from disk on every call: other tools may rewrite
// it between release steps, so nothing is cached. Edits go through etree so
// only the text of the version element changes and the rest of the document,
// namespaces included, is written back as it was.
package manifest
