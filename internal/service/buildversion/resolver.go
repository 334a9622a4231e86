package buildversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/manifest"
)

// CI environment variables consulted by the resolver.
const (
	EnvTravisPullRequest = "TRAVIS_PULL_REQUEST"
	EnvCirclePullRequest = "CI_PULL_REQUESTS"
	EnvTravisBranch      = "TRAVIS_BRANCH"
	EnvCircleBranch      = "CIRCLE_BRANCH"
	EnvTravisBuildNumber = "TRAVIS_BUILD_NUMBER"
	EnvCircleBuildNumber = "CIRCLE_BUILD_NUM"
	EnvCircleCommit      = "CIRCLE_SHA1"
	EnvTravisCommit      = "TRAVIS_COMMIT"
)

// localCommit stands in for the commit id outside CI.
const localCommit = "local"

var (
	// errNoRelease is returned when neither the manifest nor the config carries a release version.
	errNoRelease = errors.New("release version is not set in manifest or config")
	// errNoRepository is returned when version control is needed but not configured.
	errNoRepository = errors.New("no git repository")
)

// Repository is the subset of version control the resolver needs.
type Repository interface {
	// Branch returns the checked out branch.
	Branch() (string, error)
	// LastCommitLine returns "<hash> <subject>" of the last commit.
	LastCommitLine() (string, error)
}

// Resolver computes versions for one process run.
type Resolver struct {
	cfg      *config.Config
	manifest *manifest.Editor
	env      config.Environment
	repo     Repository
	hostname func() (string, error)
	started  time.Time

	// Memoized on first use.
	branch       *string
	releaseBuild *bool
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithEnvironment replaces the process environment.
func WithEnvironment(env config.Environment) Option {
	return func(r *Resolver) {
		if env != nil {
			r.env = env
		}
	}
}

// WithRepository sets the version control source for branch and commit.
func WithRepository(repo Repository) Option {
	return func(r *Resolver) {
		r.repo = repo
	}
}

// WithHostname replaces os.Hostname.
func WithHostname(hostname func() (string, error)) Option {
	return func(r *Resolver) {
		if hostname != nil {
			r.hostname = hostname
		}
	}
}

// WithStartTime fixes the process start timestamp used by local builds.
func WithStartTime(started time.Time) Option {
	return func(r *Resolver) {
		r.started = started
	}
}

// NewResolver returns a Resolver for cfg reading the metadata file through editor.
func NewResolver(cfg *config.Config, editor *manifest.Editor, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:      cfg,
		manifest: editor,
		env:      config.OSEnvironment{},
		hostname: os.Hostname,
		started:  time.Now(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Release returns the release version, read from the metadata file on every call.
// The config value is used only when the manifest has no version.
func (r *Resolver) Release() (string, error) {
	version, err := r.manifest.Version()
	if err == nil && version != "" {
		return version, nil
	}

	if r.cfg.Release != "" {
		return r.cfg.Release, nil
	}

	if err != nil {
		return "", err
	}

	return "", errNoRelease
}

// ReleaseMessage is the commit message that marks a release commit.
func (r *Resolver) ReleaseMessage() (string, error) {
	release, err := r.Release()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("release: %s %s", r.cfg.XPI, release), nil
}

// PullRequest returns the pull request id from either CI system, or an empty string.
func (r *Resolver) PullRequest() string {
	if pr := config.Getenv(r.env, EnvTravisPullRequest); pr != "" && pr != "false" {
		return pr
	}

	return config.Getenv(r.env, EnvCirclePullRequest)
}

// Branch returns the build branch. Pull requests are reported as "pull-request-<id>".
func (r *Resolver) Branch() (string, error) {
	if r.branch != nil {
		return *r.branch, nil
	}

	branch, err := r.detectBranch()
	if err != nil {
		return "", err
	}

	r.branch = &branch

	return branch, nil
}

func (r *Resolver) detectBranch() (string, error) {
	if pr := r.PullRequest(); pr != "" {
		return "pull-request-" + pr, nil
	}

	for _, key := range []string{EnvTravisBranch, EnvCircleBranch} {
		if branch := config.Getenv(r.env, key); branch != "" {
			return branch, nil
		}
	}

	if r.repo == nil {
		return "", fmt.Errorf("detect branch: %w", errNoRepository)
	}

	branch, err := r.repo.Branch()
	if err != nil {
		return "", fmt.Errorf("detect branch: %w", err)
	}

	return branch, nil
}

// commitID returns the CI commit id, or "local".
func (r *Resolver) commitID() string {
	for _, key := range []string{EnvCircleCommit, EnvTravisCommit} {
		if commit := config.Getenv(r.env, key); commit != "" {
			return commit
		}
	}

	return localCommit
}

// IsReleaseBuild reports whether the last commit is the release commit of the
// current release and the branch is the default branch. The answer is memoized.
func (r *Resolver) IsReleaseBuild(ctx context.Context) (bool, error) {
	if r.releaseBuild != nil {
		return *r.releaseBuild, nil
	}

	if r.repo == nil {
		// Without history there is no release commit to match.
		logger.DebugKV(ctx, "Release build check", "reason", errNoRepository, "release_build", false)

		releaseBuild := false
		r.releaseBuild = &releaseBuild

		return false, nil
	}

	committed, err := r.repo.LastCommitLine()
	if err != nil {
		return false, fmt.Errorf("read last commit: %w", err)
	}

	message, err := r.ReleaseMessage()
	if err != nil {
		return false, err
	}

	branch, err := r.Branch()
	if err != nil {
		return false, err
	}

	expected := r.commitID() + " " + message
	releaseBuild := committed == expected && branch == r.cfg.DefaultBranch

	logger.DebugKV(ctx, "Release build check",
		"committed", committed,
		"release", expected,
		"branch", branch,
		"release_build", releaseBuild)

	r.releaseBuild = &releaseBuild

	return releaseBuild, nil
}

// Version returns the version string of this build: the release for release
// builds, otherwise the release with a CI or host qualifier.
func (r *Resolver) Version(ctx context.Context) (string, error) {
	release, err := r.Release()
	if err != nil {
		return "", err
	}

	releaseBuild, err := r.IsReleaseBuild(ctx)
	if err != nil {
		return "", err
	}

	if releaseBuild {
		return release, nil
	}

	branch, err := r.Branch()
	if err != nil {
		return "", err
	}

	suffix := ""
	if branch != r.cfg.DefaultBranch {
		suffix = "-" + branch
	}

	if build := config.Getenv(r.env, EnvTravisBuildNumber); build != "" {
		return release + "-travis" + suffix + "-" + build, nil
	}

	if build := config.Getenv(r.env, EnvCircleBuildNumber); build != "" {
		return release + "-circle" + suffix + "-" + build, nil
	}

	hostname, err := r.hostname()
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}

	return release + "-" + hostname + suffix + "-" + strconv.FormatInt(r.started.Unix(), 10), nil
}
