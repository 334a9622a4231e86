// Package archive builds the extension archive (.xpi) from the source files.
//
// Entries are written in sorted order. All files are copied byte for byte
// except the metadata file, whose version element is rewritten to the build
// version on the way into the archive; the file on disk is never touched.
package archive
