package fixture

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/manifest"
	"github.com/oshokin/xpi-release/internal/vcs/vcstest"
)

const listingPage = `<!DOCTYPE html>
<html><body>
  <div class="addon">
    <p class="description">A fixture add-on</p>
    <p class="install-button"><a class="button" href="%s">Add to Firefox</a></p>
  </div>
</body></html>`

// newListingSite serves listing pages, a roadblock, a redirecting install link and the file itself.
func newListingSite(t *testing.T) *httptest.Server {
	t.Helper()

	router := chi.NewRouter()

	page := func(href string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, listingPage, href)
		}
	}

	router.Get("/addon/direct/", page("/downloads/latest/direct"))
	router.Get("/addon/blocked/", page("/addon/blocked/contribute/roadblock/?src=addon-detail"))
	router.Get("/addon/blocked/contribute/roadblock/", page("/downloads/latest/direct"))
	router.Get("/addon/loop/contribute/roadblock/", page("/addon/loop/contribute/roadblock/"))
	router.Get("/addon/empty/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Not available</p></body></html>"))
	})
	router.Get("/downloads/latest/direct", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/files/direct-2.0.1-fx.xpi?src=dp-btn-primary", http.StatusFound)
	})
	router.Get("/addon/empty-tail/", page("/downloads/latest/empty-tail"))
	router.Get("/downloads/latest/empty-tail", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/files/", http.StatusFound)
	})
	router.Get("/files/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("index"))
	})
	router.Get("/files/{name}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("archive"))
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server
}

func TestResolve_Direct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source   string
		filename string
	}{
		{source: "https://example.com/files/fixture.xpi", filename: "fixture.xpi"},
		{source: "https://example.com/files/fixture.xpi?src=ci", filename: "fixture.xpi"},
		{source: "file:///tmp/fixtures/local.xpi", filename: "local.xpi"},
		{source: "file:relative/other", filename: "other"},
	}

	resolver := NewResolver()

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			t.Parallel()

			resolved, err := resolver.Resolve(context.Background(), tt.source)
			require.NoError(t, err)
			require.Equal(t, tt.source, resolved.Source)
			require.Equal(t, tt.source, resolved.URL)
			require.Equal(t, tt.filename, resolved.Filename)
			require.False(t, resolved.IsSnapshot())
		})
	}
}

func TestResolve_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := NewResolver().Resolve(context.Background(), "https://example.com/fixture.zip")
	require.ErrorIs(t, err, xpi.ErrUnsupportedSource)
}

func TestResolve_Snapshot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	hash := vcstest.Init(t, filepath.Join(root, "zotero"), map[string]string{"chrome.manifest": "content zotero\n"}, "initial")

	resolver := NewResolver(WithCheckoutRoot(root))

	source := "https://github.com/zotero/zotero/zipball/master"

	resolved, err := resolver.Resolve(context.Background(), source)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^zotero-master-[0-9a-f]{7}\.xpi$`), resolved.Filename)
	require.Equal(t, "zotero-master-"+hash[:7]+".xpi", resolved.Filename)
	require.Equal(t, filepath.Join(root, "zotero"), resolved.Checkout)
	require.Equal(t, source, resolved.URL)
	require.True(t, resolved.IsSnapshot())
}

func TestResolve_SnapshotWithoutCheckout(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(WithCheckoutRoot(t.TempDir()))

	_, err := resolver.Resolve(context.Background(), "https://github.com/zotero/missing/zipball/master")
	require.Error(t, err)
}

func TestResolve_UpdateDescriptor(t *testing.T) {
	t.Parallel()

	site := newListingSite(t)
	link := site.URL + "/files/linked-1.0.xpi"

	descriptor, err := manifest.BuildUpdateDescriptor(&xpi.Manifest{
		ID:      "linked@example.com",
		Version: "1.0",
		Targets: []xpi.TargetApplication{{ID: "{ec8030f7-c20a-464f-9b0e-13a3a9e97384}", MinVersion: "52.0", MaxVersion: "60.*"}},
	}, link, "https://example.com/changelog")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "update.rdf")
	require.NoError(t, os.WriteFile(path, descriptor, 0o644))

	resolved, err := NewResolver().Resolve(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, link, resolved.URL)
	require.Equal(t, "linked-1.0.xpi", resolved.Filename)
	require.Equal(t, path, resolved.Source)
}

func TestResolve_ListingPage(t *testing.T) {
	t.Parallel()

	site := newListingSite(t)
	resolver := NewResolver(WithHTTPClient(site.Client()), WithListingPrefix(site.URL+"/addon/"))

	tests := []struct {
		name string
		page string
	}{
		{name: "install link redirects", page: "/addon/direct/"},
		{name: "roadblock page", page: "/addon/blocked/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolved, err := resolver.Resolve(context.Background(), site.URL+tt.page)
			require.NoError(t, err)
			require.Equal(t, site.URL+"/files/direct-2.0.1-fx.xpi?src=dp-btn-primary", resolved.URL)
			require.Equal(t, "direct-2.0.1-fx.xpi", resolved.Filename)
		})
	}
}

func TestResolve_ListingPageFailures(t *testing.T) {
	t.Parallel()

	site := newListingSite(t)
	resolver := NewResolver(WithHTTPClient(site.Client()), WithListingPrefix(site.URL+"/addon/"))

	_, err := resolver.Resolve(context.Background(), site.URL+"/addon/loop/contribute/roadblock/")
	require.ErrorIs(t, err, xpi.ErrTooManyIndirections)

	_, err = resolver.Resolve(context.Background(), site.URL+"/addon/empty/")
	require.ErrorIs(t, err, xpi.ErrUnsupportedSource)

	_, err = resolver.Resolve(context.Background(), site.URL+"/addon/empty-tail/")
	require.ErrorIs(t, err, xpi.ErrUnsupportedSource)

	_, err = resolver.Resolve(context.Background(), site.URL+"/addon/missing/")
	require.ErrorIs(t, err, xpi.ErrBadHTTPStatus)
}

func TestFilenameOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a.xpi", FilenameOf("https://example.com/x/a.xpi?b=c/d"))
	require.Equal(t, "a b.xpi", FilenameOf("https://example.com/x/a%20b.xpi#top"))
	require.Equal(t, "a.xpi", FilenameOf("file:a.xpi"))
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	path, err := LocalPath("file:///tmp/a.xpi")
	require.NoError(t, err)
	require.Equal(t, filepath.FromSlash("/tmp/a.xpi"), path)

	path, err = LocalPath("fixtures/a.xpi")
	require.NoError(t, err)
	require.Equal(t, "fixtures/a.xpi", path)
}

func TestResolve_RejectsEscapingFilenames(t *testing.T) {
	t.Parallel()

	resolver := NewResolver()

	for _, source := range []string{
		"https://example.com/files/..%2F..%2Fescaped.xpi",
		"https://example.com/files/%2Fetc%2Fescaped.xpi?src=ci",
		"https://example.com/files/..%5Cescaped.xpi",
		"file:///tmp/fixtures/",
	} {
		_, err := resolver.Resolve(context.Background(), source)
		require.ErrorIs(t, err, xpi.ErrUnsupportedSource, source)
	}
}

func TestResolve_UpdateDescriptorChain(t *testing.T) {
	t.Parallel()

	descriptor, err := manifest.BuildUpdateDescriptor(&xpi.Manifest{
		ID:      "linked@example.com",
		Version: "1.0",
		Targets: []xpi.TargetApplication{{ID: "{ec8030f7-c20a-464f-9b0e-13a3a9e97384}", MinVersion: "52.0", MaxVersion: "60.*"}},
	}, "https://example.com/next/update.rdf", "https://example.com/changelog")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "update.rdf")
	require.NoError(t, os.WriteFile(path, descriptor, 0o644))

	_, err = NewResolver().Resolve(context.Background(), path)
	require.ErrorIs(t, err, xpi.ErrTooManyIndirections)
}
