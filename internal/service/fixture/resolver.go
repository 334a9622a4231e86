package fixture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/oshokin/xpi-release/internal/buildinfo"
	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/logger"
	"github.com/oshokin/xpi-release/internal/manifest"
	"github.com/oshokin/xpi-release/internal/vcs"
)

const (
	// DefaultListingPrefix is the public listing site of the signing authority.
	DefaultListingPrefix = "https://addons.mozilla.org/"
	// DefaultTimeout bounds every single HTTP request.
	DefaultTimeout = time.Minute

	// maxIndirections bounds descriptor chains such as listing page to roadblock page.
	maxIndirections = 5

	updateDescriptorSuffix = "update.rdf"
	installButtonSelector  = "p.install-button a"
	roadblockPath          = "/contribute/roadblock/"
)

var (
	// DefaultSnapshotPattern matches source snapshot URLs; the first group names the checkout.
	DefaultSnapshotPattern = regexp.MustCompile(`^https://github\.com/zotero/([^/]+)/zipball/master$`)

	directPattern = regexp.MustCompile(`\.xpi(\?|$)`)
)

// Resolver maps fixture descriptors to fixture sources.
type Resolver struct {
	httpClient      *http.Client
	listingPrefix   string
	snapshotPattern *regexp.Regexp
	checkoutRoot    string
	strategies      []strategy
}

// strategy is one entry of the ordered resolution table.
type strategy struct {
	name    string
	matches func(source string) bool
	resolve func(ctx context.Context, source string, depth int) (*xpi.FixtureSource, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(r *Resolver) {
		if httpClient != nil {
			r.httpClient = httpClient
		}
	}
}

// WithListingPrefix replaces the listing site prefix.
func WithListingPrefix(prefix string) Option {
	return func(r *Resolver) {
		r.listingPrefix = prefix
	}
}

// WithSnapshotPattern replaces the snapshot URL pattern. It must have one capture group.
func WithSnapshotPattern(pattern *regexp.Regexp) Option {
	return func(r *Resolver) {
		if pattern != nil {
			r.snapshotPattern = pattern
		}
	}
}

// WithCheckoutRoot sets the directory holding the local checkouts of snapshot projects.
func WithCheckoutRoot(dir string) Option {
	return func(r *Resolver) {
		r.checkoutRoot = dir
	}
}

// NewResolver returns a Resolver. Checkouts are looked up in the working directory by default.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient:      &http.Client{Timeout: DefaultTimeout},
		listingPrefix:   DefaultListingPrefix,
		snapshotPattern: DefaultSnapshotPattern,
		checkoutRoot:    ".",
	}

	for _, opt := range opts {
		opt(r)
	}

	r.strategies = []strategy{
		{name: "update-descriptor", matches: isUpdateDescriptor, resolve: r.resolveUpdateDescriptor},
		{name: "listing-page", matches: r.isListingPage, resolve: r.resolveListingPage},
		{name: "snapshot", matches: r.snapshotPattern.MatchString, resolve: r.resolveSnapshot},
		{name: "direct", matches: isDirect, resolve: resolveDirect},
	}

	return r
}

// Resolve maps source to a fixture source.
func (r *Resolver) Resolve(ctx context.Context, source string) (*xpi.FixtureSource, error) {
	resolved, err := r.resolve(ctx, source, 0)
	if err != nil {
		return nil, err
	}

	if err = checkFilename(resolved.Filename); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", source, err)
	}

	resolved.Source = source

	logger.InfoKV(ctx, "Resolved fixture", "source", source, "url", resolved.URL, "filename", resolved.Filename)

	return resolved, nil
}

func (r *Resolver) resolve(ctx context.Context, source string, depth int) (*xpi.FixtureSource, error) {
	if depth > maxIndirections {
		return nil, fmt.Errorf("%s: %w", source, xpi.ErrTooManyIndirections)
	}

	for _, s := range r.strategies {
		if !s.matches(source) {
			continue
		}

		logger.DebugKV(ctx, "Resolving fixture", "source", source, "strategy", s.name, "depth", depth)

		resolved, err := s.resolve(ctx, source, depth)
		if err != nil {
			return nil, fmt.Errorf("resolve %s as %s: %w", source, s.name, err)
		}

		return resolved, nil
	}

	return nil, fmt.Errorf("%s: %w", source, xpi.ErrUnsupportedSource)
}

func isUpdateDescriptor(source string) bool {
	return strings.HasSuffix(source, updateDescriptorSuffix)
}

func (r *Resolver) isListingPage(source string) bool {
	return r.listingPrefix != "" && strings.HasPrefix(source, r.listingPrefix)
}

func isDirect(source string) bool {
	return strings.HasPrefix(source, "file:") || directPattern.MatchString(source)
}

// resolveUpdateDescriptor reads the descriptor and resolves its update link.
func (r *Resolver) resolveUpdateDescriptor(ctx context.Context, source string, depth int) (*xpi.FixtureSource, error) {
	data, err := r.read(ctx, source)
	if err != nil {
		return nil, err
	}

	link, err := manifest.ParseUpdateLink(data)
	if err != nil {
		return nil, err
	}

	if isUpdateDescriptor(link) {
		return nil, fmt.Errorf("update link %s is another update descriptor: %w", link, xpi.ErrTooManyIndirections)
	}

	return r.resolve(ctx, link, depth+1)
}

// resolveListingPage scrapes the install button of a listing page.
func (r *Resolver) resolveListingPage(ctx context.Context, source string, depth int) (*xpi.FixtureSource, error) {
	response, err := r.get(ctx, source)
	if err != nil {
		return nil, err
	}

	defer closeBody(response)

	document, err := goquery.NewDocumentFromReader(response.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	href, ok := document.Find(installButtonSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, fmt.Errorf("no %q link on listing page: %w", installButtonSelector, xpi.ErrUnsupportedSource)
	}

	link, err := response.Request.URL.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, fmt.Errorf("install link %q: %w", href, err)
	}

	if strings.Contains(link.Path, roadblockPath) {
		return r.resolve(ctx, link.String(), depth+1)
	}

	// The install link redirects to the real file, whose name is only known at the end of the chain.
	final, err := r.finalURL(ctx, link.String())
	if err != nil {
		return nil, err
	}

	return &xpi.FixtureSource{URL: final, Filename: FilenameOf(final)}, nil
}

// resolveSnapshot names the archive after the checkout and its current revision.
func (r *Resolver) resolveSnapshot(_ context.Context, source string, _ int) (*xpi.FixtureSource, error) {
	match := r.snapshotPattern.FindStringSubmatch(source)
	if len(match) < 2 || match[1] == "" {
		return nil, fmt.Errorf("snapshot pattern has no project group: %w", xpi.ErrUnsupportedSource)
	}

	project := match[1]
	checkout := filepath.Join(r.checkoutRoot, project)

	repo, err := vcs.Open(checkout)
	if err != nil {
		return nil, err
	}

	revision, err := repo.ShortRevision()
	if err != nil {
		return nil, err
	}

	return &xpi.FixtureSource{
		URL:      source,
		Filename: project + "-master-" + revision + ".xpi",
		Checkout: checkout,
	}, nil
}

func resolveDirect(_ context.Context, source string, _ int) (*xpi.FixtureSource, error) {
	return &xpi.FixtureSource{URL: source, Filename: FilenameOf(source)}, nil
}

// checkFilename rejects names that would not land directly inside the install directory.
func checkFilename(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("fixture filename %q: %w", name, xpi.ErrUnsupportedSource)
	}

	return nil
}

// FilenameOf returns the last path segment of rawURL without its query string.
func FilenameOf(rawURL string) string {
	name, _, _ := strings.Cut(rawURL, "?")
	name, _, _ = strings.Cut(name, "#")

	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}

	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	return name
}

// read returns the body of an http(s) URL, a file: URL or a local path.
func (r *Resolver) read(ctx context.Context, source string) ([]byte, error) {
	if !isRemote(source) {
		path, err := LocalPath(source)
		if err != nil {
			return nil, err
		}

		return os.ReadFile(filepath.Clean(path))
	}

	response, err := r.get(ctx, source)
	if err != nil {
		return nil, err
	}

	defer closeBody(response)

	return io.ReadAll(response.Body)
}

// finalURL follows redirects from target without reading the body.
func (r *Resolver) finalURL(ctx context.Context, target string) (string, error) {
	response, err := r.get(ctx, target)
	if err != nil {
		return "", err
	}

	_ = response.Body.Close()

	return response.Request.URL.String(), nil
}

// get performs a GET that must end in 200 OK.
func (r *Resolver) get(ctx context.Context, target string) (*http.Response, error) {
	return httpGet(ctx, r.httpClient, target)
}

func httpGet(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", buildinfo.UserAgent())

	response, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		closeBody(response)

		return nil, fmt.Errorf("GET %s: %w: %s", target, xpi.ErrBadHTTPStatus, response.Status)
	}

	return response, nil
}

func closeBody(response *http.Response) {
	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// LocalPath converts a file: URL, or a plain path, to a filesystem path.
func LocalPath(source string) (string, error) {
	if !strings.HasPrefix(source, "file:") {
		return source, nil
	}

	parsed, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", source, err)
	}

	if parsed.Opaque != "" {
		return filepath.FromSlash(parsed.Opaque), nil
	}

	return filepath.FromSlash(parsed.Path), nil
}
