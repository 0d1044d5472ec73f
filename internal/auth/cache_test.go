package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider hands out "tok-1", "tok-2", ... and counts acquisitions.
type countingProvider struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (p *countingProvider) Acquire(ctx context.Context) (string, error) {
	n := p.calls.Add(1)

	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "tok-" + string(rune('0'+n)), nil
}

func TestCache_AcquiresOnce(t *testing.T) {
	p := &countingProvider{}
	c := NewCache(p, slog.Default())

	for range 3 {
		cred, err := c.Credential(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", cred.Token)
		assert.Equal(t, "OAuth tok-1", cred.Header())
	}

	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCache_InvalidateReacquires(t *testing.T) {
	p := &countingProvider{}
	c := NewCache(p, slog.Default())

	_, err := c.Credential(context.Background())
	require.NoError(t, err)

	c.Invalidate()

	hdr, err := c.Authorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OAuth tok-2", hdr)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestCache_ConcurrentFirstCallersShareAcquisition(t *testing.T) {
	p := &countingProvider{gate: make(chan struct{})}
	c := NewCache(p, slog.Default())

	var wg sync.WaitGroup

	results := make([]string, 8)

	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			cred, err := c.Credential(context.Background())
			assert.NoError(t, err)
			results[i] = cred.Token
		}()
	}

	// Let the waiters pile up on the single in-flight acquisition.
	time.Sleep(20 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load())

	for _, r := range results {
		assert.Equal(t, "tok-1", r)
	}
}

func TestCache_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("user closed the prompt")
	c := NewCache(ProviderFunc(func(context.Context) (string, error) {
		return "", boom
	}), slog.Default())

	_, err := c.Credential(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCache_EmptyToken(t *testing.T) {
	c := NewCache(StaticToken(""), slog.Default())

	_, err := c.Credential(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestCache_WithScheme(t *testing.T) {
	c := NewCache(StaticToken("abc"), nil, WithScheme("Bearer"))

	hdr, err := c.Authorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", hdr)
}

func TestCache_ContextCanceledWhileWaiting(t *testing.T) {
	p := &countingProvider{gate: make(chan struct{})}
	t.Cleanup(func() { close(p.gate) })
	c := NewCache(p, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Credential(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCache_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	p := &countingProvider{gate: make(chan struct{})}
	c := NewCache(p, slog.Default())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)

	go func() {
		_, err := c.Credential(ctxA)
		errA <- err
	}()

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		cred Credential
		err  error
	}

	resB := make(chan result, 1)

	go func() {
		cred, err := c.Credential(context.Background())
		resB <- result{cred, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(p.gate)

	res := <-resB
	require.NoError(t, res.err)
	assert.Equal(t, "tok-1", res.cred.Token)
	assert.Equal(t, int32(1), p.calls.Load())
}
