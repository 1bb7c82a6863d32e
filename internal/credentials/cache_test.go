package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func validBundle(expires time.Time) Bundle {
	return Bundle{
		AccessKeyID:     "STS.access",
		AccessKeySecret: "secret",
		SessionToken:    "token",
		ExpiresAt:       expires,
	}
}

// countingIssuer hands out bundles expiring ttl after the clock's now.
type countingIssuer struct {
	calls atomic.Int32
	clk   *clock
	ttl   time.Duration
}

func (i *countingIssuer) IssueCredentials(context.Context) (Bundle, error) {
	i.calls.Add(1)
	return validBundle(i.clk.Now().Add(i.ttl)), nil
}

func keyFactory(b Bundle) (string, error) { return "client:" + b.AccessKeyID, nil }

func TestCache_ConcurrentCallersShareOneIssuance(t *testing.T) {
	clk := &clock{now: t0}
	release := make(chan struct{})
	var calls atomic.Int32
	issuer := IssuerFunc(func(ctx context.Context) (Bundle, error) {
		calls.Add(1)
		<-release
		return validBundle(clk.Now().Add(time.Hour)), nil
	})
	c := New(issuer, keyFactory, WithClock(clk.Now))

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Client(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "client:STS.access", results[i])
	}
}

func TestCache_SafetyMarginBoundary(t *testing.T) {
	clk := &clock{now: t0}
	issuer := &countingIssuer{clk: clk, ttl: 10 * time.Minute}
	c := New(issuer, keyFactory, WithClock(clk.Now), WithSafetyMargin(5*time.Minute))
	ctx := context.Background()

	_, err := c.Bundle(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, issuer.calls.Load())

	clk.Set(t0.Add(5*time.Minute - time.Second))
	_, err = c.Bundle(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, issuer.calls.Load(), "bundle still outside the margin")

	clk.Set(t0.Add(5 * time.Minute))
	b, err := c.Bundle(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, issuer.calls.Load(), "now == expiry - margin must refresh")
	assert.Equal(t, t0.Add(15*time.Minute), b.ExpiresAt)
	assert.Equal(t, t0.Add(15*time.Minute), c.Expiry())
}

func TestCache_ValidationFailure(t *testing.T) {
	issuer := IssuerFunc(func(context.Context) (Bundle, error) {
		return Bundle{AccessKeyID: "id", AccessKeySecret: "secret", ExpiresAt: t0.Add(time.Hour)}, nil
	})
	c := New(issuer, keyFactory, WithClock(func() time.Time { return t0 }))

	_, err := c.Bundle(context.Background())
	require.Error(t, err)
	assert.Equal(t, transport.KindValidation, transport.KindOf(err))
	assert.Contains(t, err.Error(), "hasAccessKeyId=true")
	assert.Contains(t, err.Error(), "hasSecurityToken=false")
	assert.True(t, c.Expiry().IsZero(), "nothing is published")
}

func TestCache_IssuerFailurePropagates(t *testing.T) {
	cause := &transport.Error{Kind: transport.KindBusiness, Op: "/oss/get", Message: "quota exceeded"}
	var calls atomic.Int32
	issuer := IssuerFunc(func(context.Context) (Bundle, error) {
		calls.Add(1)
		return Bundle{}, cause
	})
	c := New(issuer, keyFactory)

	_, err := c.Bundle(context.Background())
	assert.Same(t, cause, err)

	// A failed refresh leaves nothing in flight.
	_, err = c.Bundle(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCache_FactoryFailure(t *testing.T) {
	clk := &clock{now: t0}
	issuer := &countingIssuer{clk: clk, ttl: time.Hour}
	c := New(issuer, func(Bundle) (int, error) { return 0, errors.New("bad endpoint") }, WithClock(clk.Now))

	_, err := c.Client(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad endpoint")
	assert.True(t, c.Expiry().IsZero())
}

func TestCache_Clear(t *testing.T) {
	clk := &clock{now: t0}
	issuer := &countingIssuer{clk: clk, ttl: time.Hour}
	c := New(issuer, keyFactory, WithClock(clk.Now))
	ctx := context.Background()

	_, err := c.Bundle(ctx)
	require.NoError(t, err)
	c.Clear()
	assert.True(t, c.Expiry().IsZero())

	_, err = c.Bundle(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, issuer.calls.Load())
}

func TestCache_ClearDuringRefreshDoesNotRepublish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	issuer := IssuerFunc(func(context.Context) (Bundle, error) {
		close(started)
		<-release
		return validBundle(t0.Add(time.Hour)), nil
	})
	c := New(issuer, keyFactory, WithClock(func() time.Time { return t0 }))

	done := make(chan error, 1)
	go func() {
		_, err := c.Bundle(context.Background())
		done <- err
	}()

	<-started
	c.Clear()
	close(release)

	require.NoError(t, <-done, "the waiter still gets its bundle")
	assert.True(t, c.Expiry().IsZero(), "cleared cache must stay empty")
}

func TestCache_CancelledWaiterDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	issuer := IssuerFunc(func(ctx context.Context) (Bundle, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return Bundle{}, ctx.Err()
		}
		return validBundle(t0.Add(time.Hour)), nil
	})
	c := New(issuer, keyFactory, WithClock(func() time.Time { return t0 }))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Bundle(ctx)
		first <- err
	}()

	second := make(chan error, 1)
	go func() {
		_, err := c.Bundle(context.Background())
		second <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.NoError(t, <-second)
}

func TestCache_RefreshTimeout(t *testing.T) {
	issuer := IssuerFunc(func(ctx context.Context) (Bundle, error) {
		<-ctx.Done()
		return Bundle{}, ctx.Err()
	})
	c := New(issuer, keyFactory, WithRefreshTimeout(20*time.Millisecond))

	_, err := c.Bundle(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBundle_LogValueRedacts(t *testing.T) {
	v := validBundle(t0).LogValue().String()
	assert.NotContains(t, v, "secret")
	assert.NotContains(t, v, "token")
	assert.Contains(t, v, "STS.****")
}
