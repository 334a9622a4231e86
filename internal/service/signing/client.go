package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/xpi-release/internal/buildinfo"
	"github.com/oshokin/xpi-release/internal/config"
	"github.com/oshokin/xpi-release/internal/domain/xpi"
	"github.com/oshokin/xpi-release/internal/logger"
)

const (
	// DefaultAttempts is the number of status polls before giving up.
	DefaultAttempts = 100
	// DefaultPollInterval is the pause between status polls.
	DefaultPollInterval = 5 * time.Second
	// DefaultInitialWait is the pause between submission and the first poll.
	DefaultInitialWait = 10 * time.Second
	// DefaultTimeout bounds every single HTTP request.
	DefaultTimeout = 2 * time.Minute

	// uploadField is the multipart field carrying the archive.
	uploadField = "upload"
	// archiveMode is the file mode of the replaced archive.
	archiveMode os.FileMode = 0o644
	// maxErrorBody caps response bodies quoted in errors.
	maxErrorBody = 512
)

// Client talks to the signing service.
type Client struct {
	endpoint     string
	issuer       string
	secret       string
	httpClient   *http.Client
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	attempts     int
	pollInterval time.Duration
	initialWait  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithSleeper replaces the context-aware sleep used between requests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithClock replaces time.Now for token timestamps and progress durations.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Request identifies the archive to sign.
type Request struct {
	// ID is the extension identifier.
	ID string
	// Version is the build version embedded in the archive.
	Version string
	// Archive is the local archive path, replaced by the signed archive on success.
	Archive string
	// UploadName is the file name announced in the upload, defaults to the archive base name.
	UploadName string
}

// Result reports where the state machine ended.
type Result struct {
	// State is the final signing state.
	State xpi.SigningState
	// Polls is the number of status requests made.
	Polls int
	// DownloadURL is the signed file location when State is SigningSigned.
	DownloadURL string
}

// NewClient returns a Client for the API at endpoint using the given credentials.
func NewClient(endpoint, issuer, secret string, opts ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		issuer:       issuer,
		secret:       secret,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		sleep:        sleepContext,
		now:          time.Now,
		attempts:     DefaultAttempts,
		pollInterval: DefaultPollInterval,
		initialWait:  DefaultInitialWait,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FromConfig builds a Client from the configured credential variable names.
// It returns xpi.ErrConfigurationMissing when signing is disabled or credentials are absent.
func FromConfig(cfg *config.Config, env config.Environment, opts ...Option) (*Client, error) {
	if config.SigningDisabled(env) {
		return nil, fmt.Errorf("SIGN=false: %w", xpi.ErrConfigurationMissing)
	}

	if !cfg.SigningConfigured() {
		return nil, fmt.Errorf("amo.issuer and amo.secret are not configured: %w", xpi.ErrConfigurationMissing)
	}

	issuer := config.Getenv(env, cfg.AMO.Issuer)
	secret := config.Getenv(env, cfg.AMO.Secret)

	if issuer == "" || secret == "" {
		return nil, fmt.Errorf("%s or %s is not set: %w", cfg.AMO.Issuer, cfg.AMO.Secret, xpi.ErrConfigurationMissing)
	}

	return NewClient(cfg.AMO.Endpoint, issuer, secret, opts...), nil
}

// Sign runs the submit, poll and fetch sequence for req.
func (c *Client) Sign(ctx context.Context, req *Request) (*Result, error) {
	versionURL := c.endpoint + "/addons/" + url.PathEscape(req.ID) + "/versions/" + url.PathEscape(req.Version) + "/"
	ctx = logger.WithKV(ctx, "id", req.ID, "version", req.Version)

	logger.InfoKV(ctx, "Submitting archive for signing", "archive", req.Archive, "url", versionURL)

	conflict, err := c.submit(ctx, versionURL, req)
	if err != nil {
		return &Result{State: xpi.SigningFailed}, err
	}

	started := c.now()

	if conflict {
		logger.InfoKV(ctx, "Archive already signed", "archive", req.Archive)

		return &Result{State: xpi.SigningAlreadySigned}, nil
	}

	if err = c.sleep(ctx, c.initialWait); err != nil {
		return &Result{State: xpi.SigningSubmitted}, err
	}

	status, polls, err := c.poll(ctx, versionURL, started)
	if err != nil {
		return &Result{State: xpi.SigningFailed, Polls: polls}, err
	}

	downloadURL := status.Files[0].DownloadURL

	logger.InfoKV(ctx, "Fetching signed archive", "url", downloadURL)

	if err = c.fetch(ctx, downloadURL, req.Archive); err != nil {
		return &Result{State: xpi.SigningFailed, Polls: polls}, err
	}

	return &Result{State: xpi.SigningSigned, Polls: polls, DownloadURL: downloadURL}, nil
}

// submit uploads the archive. It reports true when the service answers with a conflict.
func (c *Client) submit(ctx context.Context, versionURL string, req *Request) (bool, error) {
	body, contentType, err := multipartArchive(req)
	if err != nil {
		return false, err
	}

	response, err := c.do(ctx, http.MethodPut, versionURL, body, contentType)
	if err != nil {
		return false, fmt.Errorf("submit archive: %w", err)
	}

	defer closeBody(response)

	switch {
	case response.StatusCode == http.StatusConflict:
		return true, nil
	case response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices:
		return false, nil
	default:
		return false, fmt.Errorf("submit archive: %w", badStatus(response))
	}
}

// poll requests the signing status until the file is signed or the attempts run out.
func (c *Client) poll(ctx context.Context, versionURL string, started time.Time) (*xpi.SigningStatus, int, error) {
	var status *xpi.SigningStatus

	for attempt := 1; attempt <= c.attempts; attempt++ {
		var err error

		status, err = c.status(ctx, versionURL)
		if err != nil {
			return nil, attempt, err
		}

		if err = checkShape(status); err != nil {
			return nil, attempt, err
		}

		logger.InfoKV(ctx, "Signing status",
			"attempt", attempt,
			"elapsed", c.now().Sub(started).Round(time.Second).String(),
			"files", len(status.Files),
			"signed", status.Signed())

		if status.Signed() {
			return status, attempt, nil
		}

		if attempt == c.attempts {
			break
		}

		if err = c.sleep(ctx, c.pollInterval); err != nil {
			return nil, attempt, err
		}
	}

	return nil, c.attempts, fmt.Errorf("not signed after %d attempts: %w: %s", c.attempts, xpi.ErrSigningTimeout, describe(status))
}

// checkShape rejects payloads that are not exactly one file with a download URL.
func checkShape(status *xpi.SigningStatus) error {
	if len(status.Files) != 1 || status.Files[0].DownloadURL == "" {
		return fmt.Errorf("%w: %s", xpi.ErrUnexpectedSigningResponse, describe(status))
	}

	return nil
}

func (c *Client) status(ctx context.Context, versionURL string) (*xpi.SigningStatus, error) {
	response, err := c.do(ctx, http.MethodGet, versionURL, nil, "")
	if err != nil {
		return nil, fmt.Errorf("signing status: %w", err)
	}

	defer closeBody(response)

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signing status: %w", badStatus(response))
	}

	var status xpi.SigningStatus
	if err = json.NewDecoder(response.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode signing status: %w: %w", xpi.ErrUnexpectedSigningResponse, err)
	}

	return &status, nil
}

// fetch downloads the signed archive and swaps it in place of the local one.
// The body is read completely before the swap, so a failed download leaves
// the unsigned archive untouched.
func (c *Client) fetch(ctx context.Context, downloadURL, archive string) error {
	response, err := c.do(ctx, http.MethodGet, downloadURL, nil, "")
	if err != nil {
		return fmt.Errorf("fetch signed archive: %w", err)
	}

	defer closeBody(response)

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch signed archive: %w", badStatus(response))
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read signed archive: %w", err)
	}

	options := goupdate.Options{
		TargetPath: archive,
		TargetMode: archiveMode,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}

	return nil
}

// do sends an authorized request with a fresh token.
func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := mintToken(c.issuer, c.secret, c.now())
	if err != nil {
		return nil, err
	}

	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "JWT "+token)
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

// multipartArchive encodes the archive as the upload form field.
func multipartArchive(req *Request) (io.Reader, string, error) {
	file, err := os.Open(filepath.Clean(req.Archive))
	if err != nil {
		return nil, "", fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	name := req.UploadName
	if name == "" {
		name = filepath.Base(req.Archive)
	}

	var buffer bytes.Buffer

	writer := multipart.NewWriter(&buffer)

	part, err := writer.CreateFormFile(uploadField, name)
	if err != nil {
		return nil, "", err
	}

	if _, err = io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read archive: %w", err)
	}

	if err = writer.Close(); err != nil {
		return nil, "", err
	}

	return &buffer, writer.FormDataContentType(), nil
}

func badStatus(response *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))

	return fmt.Errorf("%s %s: %w: %s", response.Request.Method, response.Request.URL, xpi.ErrBadHTTPStatus,
		bytes.TrimSpace(append([]byte(response.Status+" "), snippet...)))
}

func describe(status *xpi.SigningStatus) string {
	if status == nil {
		return "<no status>"
	}

	data, err := json.Marshal(status.Files)
	if err != nil {
		return fmt.Sprintf("%+v", status.Files)
	}

	return string(data)
}

func closeBody(response *http.Response) {
	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
