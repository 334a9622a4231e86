package release

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/service/archive"
	"github.com/oshokin/xpi-release/internal/service/signing"
)

// BuildResult describes a finished build.
type BuildResult struct {
	// Archive is the archive path.
	Archive string
	// Version is the version embedded in the archive.
	Version string
	// Signing is where the signing state machine ended.
	Signing xpi.SigningState
	// DownloadURL is the signed file location when the archive was signed now.
	DownloadURL string
}

// Build assembles the archive for the resolved version and signs it.
// When signing fails the archive is removed so no half-signed file is left behind.
func Build(ctx context.Context, opts *Options) (*BuildResult, error) {
	ctx = logger.WithName(ctx, "build")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return nil, err
	}

	release, err := acquireMarker(ctx, MarkerFilename)
	if err != nil {
		return nil, err
	}

	defer release()

	version, err := r.resolver.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve version: %w", err)
	}

	buildOptions := &archive.Options{
		Output:   r.cfg.XPI,
		Patterns: r.cfg.Files,
		Manifest: r.cfg.Manifest,
		Version:  version,
	}

	if err = archive.Build(ctx, buildOptions); err != nil {
		return nil, err
	}

	result, err := r.sign(ctx)
	if err != nil {
		if removeErr := os.Remove(r.cfg.XPI); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove unsigned archive", "path", r.cfg.XPI, "error", removeErr)
		}

		return nil, err
	}

	logger.InfoKV(ctx, "Build finished", "archive", result.Archive, "version", result.Version, "signing", result.Signing)

	return result, nil
}

// sign submits the archive using the id and version read back from the archive itself.
func (r *runner) sign(ctx context.Context) (*BuildResult, error) {
	embedded, err := r.embeddedManifest(r.cfg.XPI)
	if err != nil {
		return nil, err
	}

	result := &BuildResult{
		Archive: r.cfg.XPI,
		Version: embedded.Version,
		Signing: xpi.SigningSkipped,
	}

	client, err := signing.FromConfig(r.cfg, r.env, r.opts.SigningOptions...)
	if errors.Is(err, xpi.ErrConfigurationMissing) {
		logger.InfoKV(ctx, "Signing skipped", "reason", err)

		return result, nil
	}

	if err != nil {
		return nil, err
	}

	signed, err := client.Sign(ctx, &signing.Request{
		ID:         embedded.ID,
		Version:    embedded.Version,
		Archive:    r.cfg.XPI,
		UploadName: r.cfg.VersionedXPI(embedded.Version),
	})
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", r.cfg.XPI, err)
	}

	result.Signing = signed.State
	result.DownloadURL = signed.DownloadURL

	return result, nil
}
