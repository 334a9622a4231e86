// Package vcs reads and updates the git repository the release is built from.
//
// It replaces shelling out to git with go-git: current branch, last commit
// line, short revisions of fixture checkouts, modified-file detection, and
// the commit and tag created by a version bump.
package vcs
