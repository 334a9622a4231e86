package release

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/xpi-release/internal/domain/xpi"
)

// unusedPID is above the Linux pid_max limit, so no process can hold it.
const unusedPID = 1 << 23

func TestAcquireMarker(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), MarkerFilename)

	release, err := acquireMarker(context.Background(), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))

	_, err = acquireMarker(context.Background(), path)
	require.ErrorIs(t, err, xpi.ErrReleaseRunning)

	release()
	require.NoFileExists(t, path)
}

func TestAcquireMarker_ReplacesStale(t *testing.T) {
	t.Parallel()

	for _, contents := range []string{strconv.Itoa(unusedPID), "garbage", ""} {
		path := filepath.Join(t.TempDir(), MarkerFilename)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

		release, err := acquireMarker(context.Background(), path)
		require.NoError(t, err, "marker %q", contents)

		release()
		require.NoFileExists(t, path)
	}
}
