package release

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/logger"
)

// errNoRepository is returned by Bump outside a git working copy.
var errNoRepository = fmt.Errorf("bump requires a git repository: %w", xpi.ErrInvalidArgument)

// Bump increments the release version in the manifest by level, commits the
// manifest with the release message and tags the commit with the new version.
// It refuses to run while tracked files are modified.
func Bump(ctx context.Context, opts *Options, level xpi.BumpLevel) (string, error) {
	ctx = logger.WithName(ctx, "bump")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return "", err
	}

	if r.repo == nil {
		return "", errNoRepository
	}

	modified, err := r.repo.ModifiedFiles()
	if err != nil {
		return "", err
	}

	if len(modified) > 0 {
		return "", fmt.Errorf("%d modified files not checked in (%s): %w",
			len(modified), strings.Join(modified, ", "), xpi.ErrDirtyWorktree)
	}

	current, err := r.resolver.Release()
	if err != nil {
		return "", err
	}

	next, err := xpi.Bump(current, level)
	if err != nil {
		return "", err
	}

	tagged, err := r.repo.HasTag(next)
	if err != nil {
		return "", err
	}

	if tagged {
		return "", fmt.Errorf("tag %s already exists: %w", next, xpi.ErrInvalidArgument)
	}

	manifestPath, err := r.repositoryPath(r.cfg.Manifest)
	if err != nil {
		return "", err
	}

	var hash string

	err = withVersion(ctx, r.editor, current, next, func() error {
		message, err := r.resolver.ReleaseMessage()
		if err != nil {
			return err
		}

		hash, err = r.repo.CommitAndTag([]string{manifestPath}, message, next)

		return err
	})
	if err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Release bumped", "from", current, "to", next, "commit", hash)

	return next, nil
}

// withVersion writes next into the manifest and runs commit. When commit fails
// the manifest is set back to previous so the worktree stays clean.
func withVersion(ctx context.Context, editor versionWriter, previous, next string, commit func() error) error {
	if err := editor.SetVersion(next); err != nil {
		return err
	}

	err := commit()
	if err == nil {
		return nil
	}

	if restoreErr := editor.SetVersion(previous); restoreErr != nil {
		logger.WarnKV(ctx, "Unable to restore manifest version", "version", previous, "error", restoreErr)
	}

	return err
}

// versionWriter rewrites the manifest version.
type versionWriter interface {
	SetVersion(version string) error
}

// repositoryPath converts a working directory path to a slash path relative to the repository root.
func (r *runner) repositoryPath(path string) (string, error) {
	root, err := r.repo.Root()
	if err != nil {
		return "", err
	}

	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	absolute, err = filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", err
	}

	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", err
	}

	rel, err := filepath.Rel(root, absolute)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(rel), nil
}
