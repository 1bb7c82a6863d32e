package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/util/flowcontrol"

	"github.com/aravindh-murugesan/paperscout-go/internal/credentials"
	"github.com/aravindh-murugesan/paperscout-go/internal/failure"
	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

type recordingNavigator struct {
	mu       sync.Mutex
	requests []failure.NavigationRequest
}

func (n *recordingNavigator) OnErrorSurface() bool { return false }

func (n *recordingNavigator) Navigate(_ context.Context, req failure.NavigationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return nil
}

type fixture struct {
	client *Client
	nav    *recordingNavigator
	rep    *failure.Reporter
}

func newFixture(t *testing.T, baseURL string, opts ...func(*Options)) fixture {
	t.Helper()
	nav := &recordingNavigator{}
	rep := failure.New(failure.WithNavigator(nav))
	o := Options{
		BaseURL:  baseURL,
		Timeout:  time.Second,
		Retry:    transport.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
		Reporter: rep,
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	require.NoError(t, err)
	return fixture{client: c, nav: nav, rep: rep}
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": 0, "success": true, "message": "", "other": nil, "data": data,
	})
}

// scripted replies with the given statuses in order, then 200 with data.
func scripted(hits *atomic.Int32, data any, statuses ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		writeEnvelope(w, data)
	}
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "localhost"})
	assert.Error(t, err)
}

func TestTaskState_ExhaustedServerFailureIsLoggedUnderAPI(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(scripted(&hits, nil, 503, 503, 503))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.client.TaskState(context.Background(), 7)

	require.Error(t, err)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, transport.KindServerFailure, transport.KindOf(err))

	logs := f.rep.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, failure.CategoryAPI, logs[0].Category)
	assert.Equal(t, "/task/state?id=7", logs[0].Source)
	assert.Equal(t, 503, logs[0].StatusCode)
	assert.Equal(t, []failure.NavigationRequest{{Code: 503, Detail: failure.FriendlyMessage(503)}}, f.nav.requests)
}

func TestTaskState_RecoversAfterTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(scripted(&hits, map[string]any{"state": "RUNNING", "errorMessage": nil}, 503, 503))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	st, err := f.client.TaskState(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, TaskStatus{State: StateRunning}, st)
	assert.EqualValues(t, 3, hits.Load())
	assert.Empty(t, f.rep.Logs(), "absorbed failures are not recorded")
}

func TestMutatingCallsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(scripted(&hits, true, 503, 503))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.client.CancelTask(context.Background(), 9)

	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, 503, transport.StatusOf(err))
}

func TestClientFailureIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(scripted(&hits, nil, 404))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.client.TaskKeywords(context.Background(), 1)

	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, transport.KindClientFailure, transport.KindOf(err))
	require.Len(t, f.nav.requests, 1)
	assert.Equal(t, failure.FriendlyMessage(404), f.nav.requests[0].Detail)
}

func TestBusinessFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":1,"success":false,"message":"task not found","other":null,"data":null}`)
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.client.TaskState(context.Background(), 404)

	require.Error(t, err)
	assert.Equal(t, transport.KindBusiness, transport.KindOf(err))
	assert.Contains(t, err.Error(), "task not found")
	logs := f.rep.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, 0, logs[0].StatusCode)
	assert.Empty(t, f.nav.requests, "business failures do not navigate")
}

func TestIssueCredentials(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/oss/get", r.URL.Path)
			writeEnvelope(w, map[string]any{
				"accessKeyId":     "STS.id",
				"accessKeySecret": "secret",
				"securityToken":   "token",
				"expiration":      "2026-05-04T13:00:00Z",
			})
		}))
		defer srv.Close()
		f := newFixture(t, srv.URL)

		b, err := f.client.IssueCredentials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, credentials.Bundle{
			AccessKeyID:     "STS.id",
			AccessKeySecret: "secret",
			SessionToken:    "token",
			ExpiresAt:       time.Date(2026, 5, 4, 13, 0, 0, 0, time.UTC),
		}, b)
	})

	t.Run("rejected without message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"code":500,"success":false,"message":"","data":null}`)
		}))
		defer srv.Close()
		f := newFixture(t, srv.URL)

		_, err := f.client.IssueCredentials(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), credentials.FallbackIssueMessage)
	})
}

func TestNetworkFailureNavigatesWith503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	f := newFixture(t, url)

	_, err := f.client.DeleteTask(context.Background(), 3)

	require.Error(t, err)
	assert.Equal(t, transport.KindTransport, transport.KindOf(err))
	logs := f.rep.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, failure.CategoryNetwork, logs[0].Category)
	assert.Equal(t, "/task/delete?id=3", logs[0].Source)
	require.Len(t, f.nav.requests, 1)
	assert.Equal(t, 503, f.nav.requests[0].Code)
}

func TestTimeoutIsReportedAsNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	f := newFixture(t, srv.URL, func(o *Options) { o.Timeout = 30 * time.Millisecond })

	_, err := f.client.SubmitSearch(context.Background(), SearchRequest{SearchWord: "x"})

	require.Error(t, err)
	assert.Equal(t, transport.KindTimeout, transport.KindOf(err))
	assert.Equal(t, failure.CategoryNetwork, f.rep.Logs()[0].Category)
}

// stallingBody sends the headers and the start of an envelope, then stops
// writing until released or the client goes away.
func stallingBody(hits *atomic.Int32, release <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":0,`))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}
}

func TestStalledBodyTimesOutPerAttempt(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(stallingBody(&hits, release))
	defer srv.Close()
	defer close(release)
	f := newFixture(t, srv.URL, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	_, err := f.client.TaskState(ctx, 1)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, transport.KindTimeout, transport.KindOf(err))
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, int32(3), hits.Load(), "each stalled attempt is retried")
	logs := f.rep.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, failure.CategoryNetwork, logs[0].Category)
}

func TestCallerDeadlineIsNotRecorded(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(stallingBody(&hits, release))
	defer srv.Close()
	defer close(release)
	f := newFixture(t, srv.URL, func(o *Options) {
		o.Timeout = time.Minute
		o.Retry = transport.RetryPolicy{MaxAttempts: 1}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.client.TaskState(ctx, 1)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, f.rep.Logs())
	assert.Empty(t, f.nav.requests)
}

func TestCallerCancellationIsNotRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL, func(o *Options) {
		o.Retry = transport.RetryPolicy{MaxAttempts: 3, Delay: time.Hour}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := f.client.TaskState(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.rep.Logs())
}

func TestRequestHeaders(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "paperscout-test", r.Header.Get("User-Agent"))
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-Id"))
		mu.Unlock()
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeEnvelope(w, []string{"a"})
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL, func(o *Options) { o.UserAgent = "paperscout-test" })

	_, err := f.client.TaskKeywords(context.Background(), 1)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[1], "retries reuse the request id")
}

type countingLimiter struct {
	flowcontrol.RateLimiter
	waits atomic.Int32
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits.Add(1)
	return l.RateLimiter.Wait(ctx)
}

func TestLimiterGatesEveryAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(scripted(&hits, []string{}, 500))
	defer srv.Close()
	lim := &countingLimiter{RateLimiter: flowcontrol.NewTokenBucketRateLimiter(1000, 10)}
	f := newFixture(t, srv.URL, func(o *Options) { o.Limiter = lim })

	_, err := f.client.ExtractKeywords(context.Background(), "graph learning", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, lim.waits.Load())
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>gateway</html>`)
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.client.RecentSearches(context.Background(), 1, 10)
	assert.Equal(t, transport.KindValidation, transport.KindOf(err))
	assert.Len(t, f.rep.Logs(), 1)
}
