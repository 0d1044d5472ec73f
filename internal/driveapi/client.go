package driveapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/VictoriaMetrics/metrics"
)

// Defaults for the public Drive v2 endpoints.
const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v2"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v2"
	defaultUserAgent = "drivevfs/0.1"

	// maxErrorBody caps how much of an error response is kept as the message.
	maxErrorBody = 64 << 10
)

// ErrDecode is returned when a 200 response body is not the expected JSON.
var ErrDecode = errors.New("driveapi: decoding response")

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authorizer supplies the Authorization header value and drops the cached
// credential when the backend rejects it. *auth.Cache satisfies it.
type Authorizer interface {
	Authorization(ctx context.Context) (string, error)
	Invalidate()
}

// Options configures a Client.
type Options struct {
	BaseURL     string // e.g. DefaultBaseURL
	UploadURL   string // e.g. DefaultUploadURL
	HTTP        Doer
	Credentials Authorizer
	Logger      *slog.Logger
	UserAgent   string
	Metrics     *metrics.Set
}

// Client issues single authenticated request/response cycles against the
// Drive v2 API.
type Client struct {
	baseURL   string
	uploadURL string
	http      Doer
	creds     Authorizer
	logger    *slog.Logger
	userAgent string
	metrics   *metrics.Set
}

// NewClient creates a Drive API client. Zero-valued options fall back to the
// public endpoints, http.DefaultClient, and slog.Default().
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		uploadURL: strings.TrimSuffix(opts.UploadURL, "/"),
		http:      opts.HTTP,
		creds:     opts.Credentials,
		logger:    opts.Logger,
		userAgent: opts.UserAgent,
		metrics:   opts.Metrics,
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	if c.uploadURL == "" {
		c.uploadURL = DefaultUploadURL
	}

	if c.http == nil {
		c.http = http.DefaultClient
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}

	if c.metrics == nil {
		c.metrics = metrics.NewSet()
	}

	return c
}

// Metrics returns the set the client's request counters live in.
func (c *Client) Metrics() *metrics.Set {
	return c.metrics
}

// Execute performs one request. A non-nil body is sent as JSON with an
// explicit Content-Length. A 200 response is decoded into out (ignored when
// out is nil); any other status is an *APIError. A 401 invalidates the
// credential before returning.
func (c *Client) Execute(ctx context.Context, method, url string, body, out any) error {
	var (
		reader io.Reader
		length int64
	)

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("driveapi: encoding %s request: %w", method, err)
		}

		reader = bytes.NewReader(data)
		length = int64(len(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("driveapi: creating request: %w", err)
	}

	if body != nil {
		req.ContentLength = length
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(req, resp)
	}

	c.count("ok")

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse

		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if !isDecodeError(err) {
			c.count("transport_error")

			return &TransportError{
				Method: req.Method,
				URL:    req.URL.Host + req.URL.Path,
				Err:    fmt.Errorf("reading response body: %w", err),
			}
		}

		c.count("decode_error")

		return fmt.Errorf("%w: %s %s: %w", ErrDecode, method, req.URL.Path, err)
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("path", req.URL.Path),
	)

	return nil
}

// isDecodeError separates a body that arrived but is not the expected JSON
// from a body whose read failed part way. An empty body counts as the former.
func isDecodeError(err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF)
}

// ExecuteAsync runs Execute in its own goroutine and reports the outcome to
// done exactly once.
func (c *Client) ExecuteAsync(ctx context.Context, method, url string, body, out any, done func(error)) {
	deliver := DeliverOnce(done, c.logger)

	go func() {
		deliver(c.Execute(ctx, method, url, body, out))
	}()
}

// do attaches the credential and sends req. A transport that hands back a
// response together with an error is treated as a single failure.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	authz, err := c.creds.Authorization(ctx)
	if err != nil {
		c.count("credential_error")

		return nil, fmt.Errorf("driveapi: %s %s: %w", req.Method, req.URL.Path, err)
	}

	req.Header.Set("Authorization", authz)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			c.logger.Warn("transport returned a response alongside an error",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", resp.StatusCode),
				slog.String("error", err.Error()),
			)
			resp.Body.Close()
		}

		c.count("transport_error")

		return nil, &TransportError{
			Method: req.Method,
			URL:    req.URL.Host + req.URL.Path,
			Err:    err,
		}
	}

	return resp, nil
}

// statusError builds the *APIError for a non-success response and closes its
// body. A 401 drops the cached credential.
func (c *Client) statusError(req *http.Request, resp *http.Response) error {
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	msg := errorMessage(data)
	if readErr != nil {
		msg = "(failed to read response body)"
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info("credential rejected, invalidating",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)
		c.creds.Invalidate()
		c.count("unauthorized")
	} else {
		c.count("status_error")
	}

	c.logger.Debug("request failed",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
	)

	return &APIError{
		Method:     req.Method,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Err:        classifyStatus(resp.StatusCode),
	}
}

// errorMessage extracts error.message from a Google API error document, or
// returns the trimmed raw body.
func errorMessage(data []byte) string {
	var doc struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if json.Unmarshal(data, &doc) == nil && doc.Error.Message != "" {
		return doc.Error.Message
	}

	return strings.TrimSpace(string(data))
}

func (c *Client) count(outcome string) {
	c.metrics.GetOrCreateCounter(`drivevfs_api_requests_total{outcome="` + outcome + `"}`).Inc()
}
