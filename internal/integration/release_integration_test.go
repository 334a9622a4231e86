package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/manifest"
	"github.com/oshokin/xpi-release/internal/service/archive"
	"github.com/oshokin/xpi-release/internal/service/fixture"
	"github.com/oshokin/xpi-release/internal/service/release"
	"github.com/oshokin/xpi-release/internal/service/signing"
	"github.com/oshokin/xpi-release/internal/vcs/vcstest"
)

const installRDF = `<?xml version="1.0" encoding="UTF-8"?>
<RDF xmlns="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:em="http://www.mozilla.org/2004/em-rdf#">
  <Description about="urn:mozilla:install-manifest">
    <em:id>zotero-better-bibtex@example.org</em:id>
    <em:version>5.0.1</em:version>
    <em:targetApplication>
      <Description>
        <em:id>zotero@chnm.gmu.edu</em:id>
        <em:minVersion>5.0</em:minVersion>
        <em:maxVersion>5.*</em:maxVersion>
      </Description>
    </em:targetApplication>
  </Description>
</RDF>
`

// amo is a fake signing service that signs after two polls and serves
// the uploaded archive back as the signed file.
type amo struct {
	*httptest.Server

	mu       sync.Mutex
	uploaded []byte
	polls    int
}

func newAMO(t *testing.T) *amo {
	t.Helper()

	a := &amo{}

	router := chi.NewRouter()
	router.Route("/addons/{id}/versions/{version}", func(r chi.Router) {
		r.Put("/", func(w http.ResponseWriter, r *http.Request) {
			file, _, err := r.FormFile("upload")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)

				return
			}

			defer file.Close()

			data, _ := io.ReadAll(file)

			a.mu.Lock()
			a.uploaded = data
			a.mu.Unlock()

			w.WriteHeader(http.StatusAccepted)
		})
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			a.mu.Lock()
			a.polls++
			signed := a.polls > 2
			a.mu.Unlock()

			_ = json.NewEncoder(w).Encode(xpi.SigningStatus{
				Files: []xpi.SignedFile{{DownloadURL: a.URL + "/downloads/signed.xpi", Signed: signed}},
			})
		})
	})
	router.Get("/downloads/signed.xpi", func(w http.ResponseWriter, _ *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()

		_, _ = w.Write(a.uploaded)
	})
	router.Get("/fixtures/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fixture " + chi.URLParam(r, "name")))
	})

	a.Server = httptest.NewServer(router)
	t.Cleanup(a.Close)

	return a
}

// TestReleasePipeline builds, signs and publishes a project, then syncs its fixtures.
func TestReleasePipeline(t *testing.T) {
	t.Chdir(t.TempDir())

	service := newAMO(t)
	www := filepath.Join(t.TempDir(), "www")

	vcstest.Init(t, ".", map[string]string{
		"install.rdf":              installRDF,
		"chrome.manifest":          "content zotero-better-bibtex chrome/content/\n",
		"chrome/content/bbt.js":    "Zotero.BetterBibTeX = {};\n",
		"chrome/locale/en/bbt.dtd": "<!ENTITY bbt \"Better BibTeX\">\n",
	}, "initial import")

	settings := `xpi: zotero-better-bibtex.xpi
files: [install.rdf, chrome.manifest, chrome]
changelog: https://example.org/changelog
amo:
  issuer: AMO_ISSUER
  secret: AMO_SECRET
  endpoint: ` + service.URL + `/
test:
  xpis:
    install: test/fixtures/profile/extensions
    download:
      - ` + service.URL + `/fixtures/zotero-5.0.xpi
publish:
  dir: ` + www + `
  url: https://example.org/download
`
	require.NoError(t, os.WriteFile(config.DefaultConfigFilename, []byte(settings), 0o644))

	env := config.MapEnvironment{
		"CIRCLE_BRANCH":    "master",
		"CIRCLE_BUILD_NUM": "7",
		"AMO_ISSUER":       "user:42",
		"AMO_SECRET":       "secret",
	}

	opts := &release.Options{
		Env: env,
		SigningOptions: []signing.Option{
			signing.WithHTTPClient(service.Client()),
			signing.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		},
	}

	ctx := context.Background()

	built, err := release.Build(ctx, opts)
	require.NoError(t, err)
	require.Equal(t, xpi.SigningSigned, built.Signing)
	require.Equal(t, "5.0.1-circle-7", built.Version)

	data, err := archive.ReadEntry("zotero-better-bibtex.xpi", "install.rdf")
	require.NoError(t, err)

	embedded, err := manifest.Parse(data)
	require.NoError(t, err)
	require.Equal(t, built.Version, embedded.Version)

	published, err := release.Publish(ctx, opts)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(www, "zotero-better-bibtex-5.0.1-circle-7.xpi"))
	require.FileExists(t, filepath.Join(www, release.UpdateDescriptorFilename))
	require.Equal(t, "https://example.org/download/zotero-better-bibtex-5.0.1-circle-7.xpi", published.Link)

	cfg, err := config.Load(config.DefaultConfigFilename)
	require.NoError(t, err)

	err = fixture.Sync(ctx, &fixture.Options{
		Install:    cfg.Test.XPIs.Install,
		Sources:    cfg.Test.XPIs.Download,
		Env:        env,
		HTTPClient: service.Client(),
		Resolver:   fixture.NewResolver(fixture.WithHTTPClient(service.Client())),
	})
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(cfg.Test.XPIs.Install, "zotero-5.0.xpi"))
	require.NoError(t, err)
	require.Equal(t, "fixture zotero-5.0.xpi", string(contents))
}
