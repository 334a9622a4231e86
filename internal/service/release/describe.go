package release

import (
	"context"

	"github.com/oshokin/xpi-release/internal/logger"
)

// Description lists the facts the resolver derives for this build.
type Description struct {
	Release      string `json:"release" yaml:"release"`
	Branch       string `json:"branch" yaml:"branch"`
	Version      string `json:"version" yaml:"version"`
	ReleaseBuild bool   `json:"release_build" yaml:"release_build"`
	PullRequest  string `json:"pull_request,omitempty" yaml:"pull_request,omitempty"`
	VersionedXPI string `json:"versioned_xpi" yaml:"versioned_xpi"`
}

// Describe resolves release, branch and version without building anything.
func Describe(ctx context.Context, opts *Options) (*Description, error) {
	ctx = logger.WithName(ctx, "describe")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return nil, err
	}

	release, err := r.resolver.Release()
	if err != nil {
		return nil, err
	}

	branch, err := r.resolver.Branch()
	if err != nil {
		return nil, err
	}

	releaseBuild, err := r.resolver.IsReleaseBuild(ctx)
	if err != nil {
		return nil, err
	}

	version, err := r.resolver.Version(ctx)
	if err != nil {
		return nil, err
	}

	return &Description{
		Release:      release,
		Branch:       branch,
		Version:      version,
		ReleaseBuild: releaseBuild,
		PullRequest:  r.resolver.PullRequest(),
		VersionedXPI: r.cfg.VersionedXPI(version),
	}, nil
}
