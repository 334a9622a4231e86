// Package vcstest creates throwaway git repositories for tests.
package vcstest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// Init creates a repository in dir on branch master, writes files and commits them with message.
// It returns the hash of the new commit.
func Init(t *testing.T, dir string, files map[string]string, message string) string {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))
	require.NoError(t, repo.Storer.SetReference(head))

	return Commit(t, dir, files, message)
}

// Commit writes files into the repository at dir and commits them with message.
func Commit(t *testing.T, dir string, files map[string]string, message string) string {
	t.Helper()

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	for name, contents := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

		_, err = worktree.Add(name)
		require.NoError(t, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return hash.String()
}

// Checkout switches the repository at dir to a new branch created from HEAD.
func Checkout(t *testing.T, dir, branch string) {
	t.Helper()

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)

	worktree, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}))
}
