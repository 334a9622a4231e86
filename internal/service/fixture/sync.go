package fixture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/service/archive"
)

// Options describes one fixture sync.
type Options struct {
	// Install is the fixture directory. Sync is skipped when it is empty.
	Install string
	// Sources are the desired fixture descriptors.
	Sources []string
	// Resolver resolves Sources. A default Resolver is used when nil.
	Resolver *Resolver
	// Env is consulted for OFFLINE.
	Env config.Environment
	// HTTPClient downloads remote fixtures.
	HTTPClient *http.Client
}

// Sync makes the install directory hold exactly the archives of the desired sources.
// Archives already present under their resolved name are kept unless they come from file: URLs.
func Sync(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "fixtures")

	if config.Offline(opts.Env) {
		logger.Info(ctx, "OFFLINE is set, fixture sync skipped")

		return nil
	}

	if opts.Install == "" {
		logger.Debug(ctx, "No fixture install directory configured")

		return nil
	}

	dir, err := filepath.Abs(opts.Install)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // fixtures are readable by test browsers.
		return fmt.Errorf("create %s: %w", dir, err)
	}

	installed, err := installedArchives(dir)
	if err != nil {
		return err
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver()
	}

	sources := make([]*xpi.FixtureSource, 0, len(opts.Sources))
	desired := make(map[string]struct{}, len(opts.Sources))

	for _, descriptor := range opts.Sources {
		source, err := resolver.Resolve(ctx, descriptor)
		if err != nil {
			return err
		}

		sources = append(sources, source)
		desired[source.Filename] = struct{}{}
	}

	for _, name := range installed {
		if _, ok := desired[name]; ok {
			continue
		}

		logger.InfoKV(ctx, "Removing fixture", "filename", name)

		if err = os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove fixture: %w", err)
		}
	}

	present := make(map[string]struct{}, len(installed))
	for _, name := range installed {
		present[name] = struct{}{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	for _, source := range sources {
		if _, ok := present[source.Filename]; ok && !source.IsLocal() {
			logger.DebugKV(ctx, "Fixture up to date", "filename", source.Filename)

			continue
		}

		target := filepath.Join(dir, source.Filename)
		if filepath.Dir(target) != dir {
			return fmt.Errorf("fixture %q outside %s: %w", source.Filename, dir, xpi.ErrUnsupportedSource)
		}

		if err = install(ctx, httpClient, source, target); err != nil {
			return fmt.Errorf("install %s: %w", source.Filename, err)
		}
	}

	return nil
}

func install(ctx context.Context, httpClient *http.Client, source *xpi.FixtureSource, target string) error {
	if source.IsSnapshot() {
		return archive.ZipTree(ctx, source.Checkout, target)
	}

	logger.InfoKV(ctx, "Downloading fixture", "url", source.URL, "filename", source.Filename)

	if !isRemote(source.URL) {
		path, err := LocalPath(source.URL)
		if err != nil {
			return err
		}

		file, err := os.Open(filepath.Clean(path))
		if err != nil {
			return err
		}

		defer func() {
			_ = file.Close()
		}()

		return writeAtomically(target, file)
	}

	response, err := httpGet(ctx, httpClient, source.URL)
	if err != nil {
		return err
	}

	defer closeBody(response)

	return writeAtomically(target, response.Body)
}

// writeAtomically streams r into a temporary file next to target and renames it into place.
func writeAtomically(target string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".fixture-*")
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()

		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	if err = os.Chmod(tmp.Name(), config.DefaultFilePermissions); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}

// installedArchives lists the archive file names in dir, sorted.
func installedArchives(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+archive.Extension))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, filepath.Base(match))
	}

	sort.Strings(names)

	return names, nil
}
