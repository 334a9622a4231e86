package vcs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	// ShortHashLength matches the default abbreviation of `git log --pretty=%h`.
	ShortHashLength = 7

	// detachedHead is reported as branch name when HEAD is not a branch,
	// like `git rev-parse --abbrev-ref HEAD` does.
	detachedHead = "HEAD"

	// fallbackAuthor signs commits when no user is configured.
	fallbackAuthor = "xpi-release"
)

// Repository is a git working copy.
type Repository struct {
	repo *git.Repository
	dir  string
}

// Open opens the repository containing dir, searching parent directories.
func Open(dir string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", dir, err)
	}

	return &Repository{repo: repo, dir: dir}, nil
}

// Branch returns the short name of the checked out branch, or HEAD when detached.
func (r *Repository) Branch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}

	if !head.Name().IsBranch() {
		return detachedHead, nil
	}

	return head.Name().Short(), nil
}

// LastCommitLine returns "<full hash> <subject>" of HEAD,
// the format of `git log -n 1 --pretty=oneline`.
func (r *Repository) LastCommitLine() (string, error) {
	commit, err := r.headCommit()
	if err != nil {
		return "", err
	}

	subject, _, _ := strings.Cut(strings.TrimSpace(commit.Message), "\n")

	return commit.Hash.String() + " " + strings.TrimSpace(subject), nil
}

// ShortRevision returns the abbreviated hash of HEAD.
func (r *Repository) ShortRevision() (string, error) {
	commit, err := r.headCommit()
	if err != nil {
		return "", err
	}

	return commit.Hash.String()[:ShortHashLength], nil
}

// ModifiedFiles lists tracked files with unstaged or staged modifications, sorted.
// Untracked files are ignored, as with `git ls-files -m`.
func (r *Repository) ModifiedFiles() ([]string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}

	var modified []string

	for path, fileStatus := range status {
		if fileStatus.Worktree == git.Untracked {
			continue
		}

		if fileStatus.Worktree != git.Unmodified || fileStatus.Staging != git.Unmodified {
			modified = append(modified, path)
		}
	}

	sort.Strings(modified)

	return modified, nil
}

// CommitAndTag stages paths, commits them with message and tags the new commit.
func (r *Repository) CommitAndTag(paths []string, message, tag string) (string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	for _, path := range paths {
		if _, err = worktree.Add(path); err != nil {
			return "", fmt.Errorf("stage %s: %w", path, err)
		}
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{Author: r.signature()})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if _, err = r.repo.CreateTag(tag, hash, nil); err != nil {
		return "", fmt.Errorf("tag %s: %w", tag, err)
	}

	return hash.String(), nil
}

// HasTag reports whether tag exists.
func (r *Repository) HasTag(tag string) (bool, error) {
	_, err := r.repo.Tag(tag)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, git.ErrTagNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("look up tag %s: %w", tag, err)
	}
}

// Root returns the working tree root of the repository.
func (r *Repository) Root() (string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	return worktree.Filesystem.Root(), nil
}

func (r *Repository) headCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}

	return commit, nil
}

// signature picks the committer from repository or global git config.
func (r *Repository) signature() *object.Signature {
	name, email := fallbackAuthor, fallbackAuthor+"@localhost"

	for _, scope := range []gitconfig.Scope{gitconfig.LocalScope, gitconfig.GlobalScope} {
		cfg, err := r.repo.ConfigScoped(scope)
		if err != nil || cfg.User.Name == "" {
			continue
		}

		name = cfg.User.Name
		if cfg.User.Email != "" {
			email = cfg.User.Email
		}

		break
	}

	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// IsNotRepository reports whether err means no repository was found.
func IsNotRepository(err error) bool {
	return errors.Is(err, git.ErrRepositoryNotExists)
}
