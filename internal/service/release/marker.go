package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/logger"
)

// MarkerFilename guards the working directory against concurrent releases.
// It holds the PID of the running release.
const MarkerFilename = ".xpi-release.lock"

// acquireMarker writes the marker at path and returns a func removing it.
// A marker left by a process that no longer exists is replaced.
func acquireMarker(ctx context.Context, path string) (func(), error) {
	holder, err := markerHolder(path)
	if err != nil {
		return nil, err
	}

	if holder != nil {
		return nil, fmt.Errorf("%s held by %s (pid %d): %w", path, holder.Executable(), holder.Pid(), xpi.ErrReleaseRunning)
	}

	pid := strconv.Itoa(os.Getpid())
	if err = os.WriteFile(path, []byte(pid+"\n"), config.DefaultFilePermissions); err != nil {
		return nil, fmt.Errorf("write release marker: %w", err)
	}

	logger.DebugKV(ctx, "Release marker acquired", "path", path, "pid", pid)

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove release marker", "path", path, "error", err)
		}
	}, nil
}

// markerHolder returns the live process recorded in the marker, or nil
// when there is no marker or it is stale.
func markerHolder(path string) (ps.Process, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil //nolint:nilnil // No marker means no holder.
	}

	if err != nil {
		return nil, fmt.Errorf("read release marker: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return nil, nil //nolint:nilnil // An unreadable marker is stale.
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("look up release marker pid %d: %w", pid, err)
	}

	return process, nil
}
