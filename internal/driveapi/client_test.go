package driveapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCreds is a test Authorizer with a fixed header value.
type fakeCreds struct {
	header      string
	err         error
	invalidated atomic.Int32
}

func (f *fakeCreds) Authorization(context.Context) (string, error) {
	return f.header, f.err
}

func (f *fakeCreds) Invalidate() {
	f.invalidated.Add(1)
}

// newTestClient creates a Client pointing at the given httptest server.
func newTestClient(t *testing.T, url string) (*Client, *fakeCreds) {
	t.Helper()

	creds := &fakeCreds{header: "OAuth test-token"}

	c := NewClient(Options{
		BaseURL:     url,
		UploadURL:   url + "/upload",
		HTTP:        http.DefaultClient,
		Credentials: creds,
		Logger:      slog.Default(),
		UserAgent:   "test-agent",
	})

	return c, creds
}

func TestExecute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OAuth test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "/files/abc", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"abc","title":"hello.txt"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	var out struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	err := client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/abc", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.ID)
	assert.Equal(t, "hello.txt", out.Title)
}

func TestExecute_JSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, int64(len(data)), r.ContentLength)
		assert.JSONEq(t, `{"title":"x"}`, string(data))

		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	err := client.Execute(context.Background(), http.MethodPost, srv.URL+"/files", map[string]string{"title": "x"}, nil)
	require.NoError(t, err)
}

func TestExecute_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{"bad request", http.StatusBadRequest, "nope", ErrBadRequest, "nope"},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"Rate Limit Exceeded"}}`, ErrForbidden, "Rate Limit Exceeded"},
		{"not found", http.StatusNotFound, "", ErrNotFound, ""},
		{"throttled", http.StatusTooManyRequests, "slow down", ErrThrottled, "slow down"},
		{"server error", http.StatusServiceUnavailable, "", ErrServerError, ""},
		{"created is not ok", http.StatusCreated, "{}", ErrUnexpected, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, creds := newTestClient(t, srv.URL)

			err := client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/x", nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, int32(0), creds.invalidated.Load())
		})
	}
}

func TestExecute_UnauthorizedInvalidatesCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL)

	err := client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/x", nil, nil)
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Equal(t, int32(1), creds.invalidated.Load())
}

func TestExecute_CredentialError(t *testing.T) {
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client, creds := newTestClient(t, srv.URL)
	creds.err = errors.New("no token for you")

	err := client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/x", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token for you")
	assert.Equal(t, int32(0), hits.Load(), "no request without a credential")
}

func TestExecute_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, _ := newTestClient(t, url)

	err := client.Execute(context.Background(), http.MethodGet, url+"/files/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.MethodGet, te.Method)
	assert.Equal(t, 0, StatusCode(err))
}

func TestExecute_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	var out map[string]any

	err := client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/x", nil, &out)
	assert.ErrorIs(t, err, ErrDecode)
}

// brokenBody yields part of a JSON document and then fails the read.
type brokenBody struct {
	r io.Reader
}

func (b *brokenBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errors.New("connection reset by peer")
	}

	return n, err
}

func (b *brokenBody) Close() error { return nil }

type bodyDoer struct {
	body io.ReadCloser
}

func (d *bodyDoer) Do(*http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusOK, Body: d.body}, nil
}

func TestExecute_BodyReadFailureIsTransport(t *testing.T) {
	client := NewClient(Options{
		BaseURL:     "http://drive.invalid",
		HTTP:        &bodyDoer{body: &brokenBody{r: strings.NewReader(`{"id": "ab`)}},
		Credentials: &fakeCreds{header: "OAuth t"},
	})

	var out map[string]any

	err := client.Execute(context.Background(), http.MethodGet, "http://drive.invalid/files/x", nil, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "connection reset by peer")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "drive.invalid/files/x", te.URL)
}

func TestExecute_EmptyBodyIsDecodeError(t *testing.T) {
	client := NewClient(Options{
		BaseURL:     "http://drive.invalid",
		HTTP:        &bodyDoer{body: io.NopCloser(strings.NewReader(""))},
		Credentials: &fakeCreds{header: "OAuth t"},
	})

	var out map[string]any

	err := client.Execute(context.Background(), http.MethodGet, "http://drive.invalid/files/x", nil, &out)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestExecute_CountsOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)

	require.NoError(t, client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/a", nil, nil))
	require.NoError(t, client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/b", nil, nil))
	require.Error(t, client.Execute(context.Background(), http.MethodGet, srv.URL+"/files/missing", nil, nil))

	set := client.Metrics()
	assert.Equal(t, uint64(2), set.GetOrCreateCounter(`drivevfs_api_requests_total{outcome="ok"}`).Get())
	assert.Equal(t, uint64(1), set.GetOrCreateCounter(`drivevfs_api_requests_total{outcome="status_error"}`).Get())
}

// bothDoer simulates a transport that delivers a response and then also
// reports an error for the same request.
type bothDoer struct {
	body *trackingBody
}

type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

func (d *bothDoer) Do(*http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusOK, Body: d.body}, errors.New("connection reset after response")
}

func TestExecuteAsync_ResponseAndErrorDeliversOnce(t *testing.T) {
	doer := &bothDoer{body: &trackingBody{Reader: strings.NewReader(`{}`)}}

	client := NewClient(Options{
		BaseURL:     "http://drive.invalid",
		HTTP:        doer,
		Credentials: &fakeCreds{header: "OAuth t"},
	})

	var (
		calls atomic.Int32
		mu    sync.Mutex
		got   error
	)

	finished := make(chan struct{})

	client.ExecuteAsync(context.Background(), http.MethodGet, "http://drive.invalid/files/x", nil, nil, func(err error) {
		calls.Add(1)
		mu.Lock()
		got = err
		mu.Unlock()
		close(finished)
	})

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}

	// Give a hypothetical second delivery a chance to happen.
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, doer.body.closed.Load(), "stray response body must be closed")

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, got, ErrTransport)
}

func TestDeliverOnce(t *testing.T) {
	var calls []error

	deliver := DeliverOnce(func(err error) { calls = append(calls, err) }, nil)

	first := errors.New("first")
	deliver(first)
	deliver(nil)
	deliver(errors.New("third"))

	require.Len(t, calls, 1)
	assert.Equal(t, first, calls[0])
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{Credentials: &fakeCreds{}})

	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultUploadURL, c.uploadURL)
	assert.Equal(t, defaultUserAgent, c.userAgent)
	assert.NotNil(t, c.Metrics())
}

func TestErrorMessage(t *testing.T) {
	doc, err := json.Marshal(map[string]any{"error": map[string]any{"message": "File not found: x"}})
	require.NoError(t, err)

	assert.Equal(t, "File not found: x", errorMessage(doc))
	assert.Equal(t, "plain text", errorMessage([]byte("  plain text\n")))
}
