package fixture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/service/archive"
	"github.com/oshokin/xpi-release/internal/vcs/vcstest"
)

// fileServer serves /files/{name} and counts downloads per name.
type fileServer struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newFileServer(t *testing.T) *fileServer {
	t.Helper()

	s := &fileServer{hits: make(map[string]int)}

	router := chi.NewRouter()
	router.Get("/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		s.mu.Lock()
		s.hits[name]++
		s.mu.Unlock()

		_, _ = w.Write([]byte("remote " + name))
	})

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)

	return s
}

func (s *fileServer) hitsFor(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hits[name]
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestSync_Reconciles(t *testing.T) {
	t.Parallel()

	server := newFileServer(t)
	install := t.TempDir()

	writeFile(t, filepath.Join(install, "obsolete.xpi"), "old")
	writeFile(t, filepath.Join(install, "present.xpi"), "cached")
	writeFile(t, filepath.Join(install, "notes.txt"), "not an archive")

	err := Sync(context.Background(), &Options{
		Install: install,
		Sources: []string{
			server.URL + "/files/present.xpi",
			server.URL + "/files/missing.xpi?src=ci",
		},
		HTTPClient: server.Client(),
		Resolver:   NewResolver(WithHTTPClient(server.Client())),
	})
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(install, "obsolete.xpi"))
	require.FileExists(t, filepath.Join(install, "notes.txt"))
	require.Equal(t, "cached", readFile(t, filepath.Join(install, "present.xpi")))
	require.Equal(t, "remote missing.xpi", readFile(t, filepath.Join(install, "missing.xpi")))
	require.Zero(t, server.hitsFor("present.xpi"))
	require.Equal(t, 1, server.hitsFor("missing.xpi"))

	names, err := installedArchives(install)
	require.NoError(t, err)
	require.Equal(t, []string{"missing.xpi", "present.xpi"}, names)
}

func TestSync_LocalFilesAlwaysCopied(t *testing.T) {
	t.Parallel()

	install := t.TempDir()
	source := filepath.Join(t.TempDir(), "local.xpi")

	writeFile(t, filepath.Join(install, "local.xpi"), "stale")
	writeFile(t, source, "fresh")

	err := Sync(context.Background(), &Options{
		Install: install,
		Sources: []string{"file://" + filepath.ToSlash(source)},
	})
	require.NoError(t, err)
	require.Equal(t, "fresh", readFile(t, filepath.Join(install, "local.xpi")))
}

func TestSync_Snapshot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	checkout := filepath.Join(root, "zotero")
	hash := vcstest.Init(t, checkout, map[string]string{
		"install.rdf":            "<RDF/>\n",
		"chrome/content/main.js": "main();\n",
	}, "initial")

	install := filepath.Join(t.TempDir(), "fixtures")

	err := Sync(context.Background(), &Options{
		Install:  install,
		Sources:  []string{"https://github.com/zotero/zotero/zipball/master"},
		Resolver: NewResolver(WithCheckoutRoot(root)),
	})
	require.NoError(t, err)

	names, err := archive.Entries(filepath.Join(install, "zotero-master-"+hash[:7]+".xpi"))
	require.NoError(t, err)
	require.Equal(t, []string{"chrome/content/main.js", "install.rdf"}, names)
}

func TestSync_ResolutionFailureKeepsInstalled(t *testing.T) {
	t.Parallel()

	install := t.TempDir()
	writeFile(t, filepath.Join(install, "obsolete.xpi"), "old")

	err := Sync(context.Background(), &Options{
		Install: install,
		Sources: []string{"ftp://example.com/fixture.zip"},
	})
	require.ErrorIs(t, err, xpi.ErrUnsupportedSource)
	require.FileExists(t, filepath.Join(install, "obsolete.xpi"))
}

func TestSync_Skipped(t *testing.T) {
	t.Parallel()

	install := filepath.Join(t.TempDir(), "fixtures")

	err := Sync(context.Background(), &Options{
		Install: install,
		Sources: []string{"ftp://example.com/fixture.zip"},
		Env:     config.MapEnvironment{"OFFLINE": "TRUE"},
	})
	require.NoError(t, err)
	require.NoDirExists(t, install)

	require.NoError(t, Sync(context.Background(), &Options{Sources: []string{"ftp://example.com/fixture.zip"}}))
}

func TestSync_EncodedSeparatorStaysInside(t *testing.T) {
	t.Parallel()

	server := newFileServer(t)
	root := t.TempDir()
	install := filepath.Join(root, "profile", "extensions")

	err := Sync(context.Background(), &Options{
		Install:    install,
		Sources:    []string{server.URL + "/files/..%2F..%2Fescaped.xpi"},
		HTTPClient: server.Client(),
		Resolver:   NewResolver(WithHTTPClient(server.Client())),
	})
	require.ErrorIs(t, err, xpi.ErrUnsupportedSource)
	require.NoFileExists(t, filepath.Join(root, "escaped.xpi"))
	require.Zero(t, server.hitsFor("../../escaped.xpi"))
	require.Zero(t, server.hitsFor("..%2F..%2Fescaped.xpi"))
}
