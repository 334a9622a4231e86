package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/manifest"
)

// Extension is the archive file extension.
const Extension = ".xpi"

var (
	// errNoSources is returned when the patterns match nothing.
	errNoSources = errors.New("no archive sources")
	// errSourceMissing is returned for a literal source path that does not exist.
	errSourceMissing = errors.New("archive source missing")
	// errEntryMissing is returned by ReadEntry when the archive has no such entry.
	errEntryMissing = errors.New("archive entry missing")
)

// Options describes one archive build.
type Options struct {
	// Output is the archive path.
	Output string
	// Patterns are glob patterns (relative to the working directory) of the sources.
	Patterns []string
	// Manifest is the metadata file path among the sources.
	Manifest string
	// Version is written into the metadata file entry.
	Version string
}

// Build removes stale archives next to Output and writes a fresh archive.
// A partially written archive is removed on failure.
func Build(ctx context.Context, opts *Options) error {
	if err := RemoveStale(ctx, filepath.Dir(opts.Output)); err != nil {
		return err
	}

	sources, err := ExpandSources(opts.Patterns)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Building archive", "path", opts.Output, "version", opts.Version, "entries", len(sources))

	if err = write(ctx, opts, sources); err != nil {
		_ = os.Remove(opts.Output)

		return fmt.Errorf("build %s: %w", opts.Output, err)
	}

	return nil
}

// RemoveStale deletes every archive in dir so a new build cannot include an old one.
func RemoveStale(ctx context.Context, dir string) error {
	stale, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	if err != nil {
		return fmt.Errorf("list stale archives: %w", err)
	}

	for _, path := range stale {
		logger.DebugKV(ctx, "Removing stale archive", "path", path)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale archive: %w", err)
		}
	}

	return nil
}

// ExpandSources resolves patterns to a sorted, de-duplicated list of regular files.
// Matched directories contribute every file below them.
func ExpandSources(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 && !hasMeta(pattern) {
			return nil, fmt.Errorf("%s: %w", pattern, errSourceMissing)
		}

		for _, match := range matches {
			if err = collect(match, seen); err != nil {
				return nil, err
			}
		}
	}

	if len(seen) == 0 {
		return nil, errNoSources
	}

	sources := make([]string, 0, len(seen))
	for source := range seen {
		sources = append(sources, source)
	}

	sort.Strings(sources)

	return sources, nil
}

func collect(root string, seen map[string]struct{}) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.Type().IsRegular() {
			seen[filepath.ToSlash(filepath.Clean(path))] = struct{}{}
		}

		return nil
	})
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}

func write(ctx context.Context, opts *Options, sources []string) error {
	out, err := os.Create(opts.Output)
	if err != nil {
		return err
	}

	defer func() {
		_ = out.Close()
	}()

	writer := zip.NewWriter(out)
	manifestName := filepath.ToSlash(filepath.Clean(opts.Manifest))

	for _, source := range sources {
		if err = ctx.Err(); err != nil {
			return err
		}

		if source == manifestName {
			err = addManifest(writer, source, opts.Version)
		} else {
			err = addFile(writer, filepath.FromSlash(source), source)
		}

		if err != nil {
			return fmt.Errorf("add %s: %w", source, err)
		}
	}

	if err = writer.Close(); err != nil {
		return err
	}

	return out.Close()
}

func addManifest(writer *zip.Writer, source, version string) error {
	data, err := os.ReadFile(filepath.FromSlash(source))
	if err != nil {
		return err
	}

	rewritten, err := manifest.RewriteVersion(data, version)
	if err != nil {
		return err
	}

	entry, err := writer.CreateHeader(&zip.FileHeader{Name: source, Method: zip.Deflate})
	if err != nil {
		return err
	}

	_, err = entry.Write(rewritten)

	return err
}

// addFile copies the file at path into the archive as entry name.
func addFile(writer *zip.Writer, path, name string) error {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = name
	header.Method = zip.Deflate

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(entry, file)

	return err
}

// ReadEntry returns the contents of entry name inside the archive at path.
func ReadEntry(path, name string) ([]byte, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, file := range reader.File {
		if file.Name != name {
			continue
		}

		entry, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", name, err)
		}

		data, err := io.ReadAll(entry)
		_ = entry.Close()

		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", name, err)
		}

		return data, nil
	}

	return nil, fmt.Errorf("%s: %w", name, errEntryMissing)
}

// Entries lists the entry names of the archive at path in stored order.
func Entries(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}

	return names, nil
}
