package release

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/logger"
)

// UpdateDescriptorFilename is the name of the published update descriptor.
const UpdateDescriptorFilename = "update.rdf"

// PublishResult describes a published build. It is nil when publishing was skipped.
type PublishResult struct {
	// Archive is the published versioned archive.
	Archive string
	// Descriptor is the published update descriptor.
	Descriptor string
	// Link is the download URL announced in the descriptor.
	Link string
}

// Publish copies the built archive under its versioned name into the publish
// directory next to a fresh update descriptor. Pull request builds and
// configurations without a publish directory are skipped.
func Publish(ctx context.Context, opts *Options) (*PublishResult, error) {
	ctx = logger.WithName(ctx, "publish")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return nil, err
	}

	if pr := r.resolver.PullRequest(); pr != "" {
		logger.InfoKV(ctx, "Pull request build, publish skipped", "pull_request", pr)

		return nil, nil //nolint:nilnil // Skipping is not an error.
	}

	if r.cfg.Publish.Dir == "" {
		logger.Info(ctx, "No publish directory configured, publish skipped")

		return nil, nil //nolint:nilnil // Skipping is not an error.
	}

	embedded, err := r.embeddedManifest(r.cfg.XPI)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(r.cfg.Publish.Dir, 0o755); err != nil { //nolint:gosec // Published files are public.
		return nil, fmt.Errorf("create %s: %w", r.cfg.Publish.Dir, err)
	}

	name := r.cfg.VersionedXPI(embedded.Version)
	result := &PublishResult{
		Archive:    filepath.Join(r.cfg.Publish.Dir, name),
		Descriptor: filepath.Join(r.cfg.Publish.Dir, UpdateDescriptorFilename),
		Link:       strings.TrimSuffix(r.cfg.Publish.URL, "/") + "/" + name,
	}

	logger.InfoKV(ctx, "Publishing", "archive", result.Archive, "link", result.Link)

	if err = copyFile(r.cfg.XPI, result.Archive); err != nil {
		return nil, err
	}

	err = r.editor.WithUpdateDescriptor(result.Link, r.cfg.Changelog, func(path string) error {
		return copyFile(path, result.Descriptor)
	})
	if err != nil {
		return nil, fmt.Errorf("publish update descriptor: %w", err)
	}

	logger.InfoKV(ctx, "Published", "descriptor", result.Descriptor)

	return result, nil
}

func copyFile(source, target string) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s to %s: %w", source, target, err)
	}

	return out.Close()
}
