package release

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/manifest"
	"github.com/oshokin/xpi-release/internal/service/archive"
	"github.com/oshokin/xpi-release/internal/service/buildversion"
	"github.com/oshokin/xpi-release/internal/service/signing"
	"github.com/oshokin/xpi-release/internal/vcs"
)

// Options are inputs shared by every release task.
// Paths in the configuration are relative to the working directory.
type Options struct {
	// ConfigPath is the configuration document, config.DefaultConfigFilename when empty.
	ConfigPath string
	// Config is used instead of loading ConfigPath when set.
	Config *config.Config
	// Env supplies CI, SIGN and credential variables. The process environment when nil.
	Env config.Environment
	// SigningOptions are passed to the signing client.
	SigningOptions []signing.Option
	// ResolverOptions are passed to the version resolver after the defaults.
	ResolverOptions []buildversion.Option
}

// runner holds what one task needs. Derived facts are memoized by the resolver.
type runner struct {
	cfg      *config.Config
	env      config.Environment
	editor   *manifest.Editor
	repo     *vcs.Repository
	resolver *buildversion.Resolver
	opts     *Options
}

func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	cfg := opts.Config
	if cfg == nil {
		configPath := opts.ConfigPath
		if configPath == "" {
			configPath = config.DefaultConfigFilename
		}

		var err error

		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	env := opts.Env
	if env == nil {
		env = config.OSEnvironment{}
	}

	r := &runner{
		cfg:    cfg,
		env:    env,
		editor: manifest.NewEditor(cfg.Manifest),
		opts:   opts,
	}

	resolverOptions := []buildversion.Option{buildversion.WithEnvironment(env)}

	repo, err := vcs.Open(".")

	switch {
	case err == nil:
		r.repo = repo
		resolverOptions = append(resolverOptions, buildversion.WithRepository(repo))
	case vcs.IsNotRepository(err):
		logger.Debug(ctx, "Working directory is not a git repository")
	default:
		return nil, err
	}

	resolverOptions = append(resolverOptions, opts.ResolverOptions...)
	r.resolver = buildversion.NewResolver(cfg, r.editor, resolverOptions...)

	return r, nil
}

// embeddedManifest reads the metadata file back from the archive at path.
func (r *runner) embeddedManifest(path string) (*xpi.Manifest, error) {
	data, err := archive.ReadEntry(path, filepath.ToSlash(filepath.Clean(r.cfg.Manifest)))
	if err != nil {
		return nil, err
	}

	descriptor, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", r.cfg.Manifest, path, err)
	}

	return descriptor, nil
}
