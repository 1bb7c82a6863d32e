package failure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
)

type fakeNavigator struct {
	mu       sync.Mutex
	onError  bool
	requests []NavigationRequest
	err      error
}

func (f *fakeNavigator) OnErrorSurface() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onError
}

func (f *fakeNavigator) Navigate(_ context.Context, req NavigationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) RecordFailure(category string) {
	c.counts[category]++
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestReporter(opts ...Option) *Reporter {
	opts = append([]Option{withClock(func() time.Time { return fixedNow }), WithSignature("test-agent")}, opts...)
	return New(opts...)
}

func TestHandleAPIError_RecordsAndNavigates(t *testing.T) {
	nav := &fakeNavigator{}
	r := newTestReporter(WithNavigator(nav))
	cause := errors.New("HTTP error! status: 503")

	got := r.HandleAPIError(context.Background(), cause, "/task/state?id=7", 503)

	assert.Same(t, cause, got, "error must be returned unchanged")
	logs := r.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, Entry{
		Timestamp:       fixedNow,
		Category:        CategoryAPI,
		Message:         "HTTP error! status: 503",
		Source:          "/task/state?id=7",
		StatusCode:      503,
		ClientSignature: "test-agent",
	}, logs[0])
	assert.Equal(t, []NavigationRequest{{Code: 503, Detail: FriendlyMessage(503)}}, nav.requests)
}

func TestHandleAPIError_NoStatusDoesNotNavigate(t *testing.T) {
	nav := &fakeNavigator{}
	r := newTestReporter(WithNavigator(nav))

	r.HandleAPIError(context.Background(), errors.New("credential response is missing fields"), "/oss/get", 0)

	assert.Len(t, r.Logs(), 1)
	assert.Empty(t, nav.requests)
}

func TestHandleAPIError_NilError(t *testing.T) {
	r := newTestReporter()
	r.HandleAPIError(context.Background(), nil, "/x", 500)
	assert.Equal(t, "unknown API error", r.Logs()[0].Message)
}

func TestHandleNetworkError_Synthetic503(t *testing.T) {
	nav := &fakeNavigator{}
	r := newTestReporter(WithNavigator(nav))

	r.HandleNetworkError(context.Background(), errors.New("dial tcp: connection refused"), "/paper/get")

	logs := r.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, CategoryNetwork, logs[0].Category)
	assert.Equal(t, networkFailureMessage, logs[0].Message)
	assert.Equal(t, "dial tcp: connection refused", logs[0].Cause)
	assert.Empty(t, logs[0].Stack, "stack is reserved for real stack traces")
	require.Len(t, nav.requests, 1)
	assert.Equal(t, 503, nav.requests[0].Code)
	assert.Equal(t, networkFailureDetail, nav.requests[0].Detail)
}

func TestNavigate_SuppressedOnErrorSurface(t *testing.T) {
	nav := &fakeNavigator{onError: true}
	r := newTestReporter(WithNavigator(nav))

	r.HandleAPIError(context.Background(), errors.New("boom"), "/x", 500)
	r.HandleNetworkError(context.Background(), errors.New("boom"), "/y")

	assert.Empty(t, nav.requests)
	assert.Len(t, r.Logs(), 2, "failures are still logged")
}

func TestNavigate_FailureBecomesRouteEntry(t *testing.T) {
	nav := &fakeNavigator{err: errors.New("webhook unreachable")}
	r := newTestReporter(WithNavigator(nav))

	r.HandleAPIError(context.Background(), errors.New("boom"), "/x", 404)

	logs := r.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, CategoryAPI, logs[0].Category)
	assert.Equal(t, CategoryRoute, logs[1].Category)
	assert.Contains(t, logs[1].Message, "webhook unreachable")
	assert.Equal(t, "error/404", logs[1].Source)
}

func TestNetworkCauseIsExportedSeparately(t *testing.T) {
	r := newTestReporter()
	r.HandleNetworkError(context.Background(), errors.New("dial tcp: connection refused"), "/paper/get")

	out, err := r.Export("")
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "dial tcp: connection refused", decoded[0]["cause"])
	assert.NotContains(t, decoded[0], "stack")
}

// blockingNavigator never completes a navigation on its own.
type blockingNavigator struct{}

func (blockingNavigator) OnErrorSurface() bool { return false }

func (blockingNavigator) Navigate(ctx context.Context, _ NavigationRequest) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestNavigate_BoundedByTimeout(t *testing.T) {
	r := newTestReporter(WithNavigator(blockingNavigator{}), WithNavigationTimeout(30*time.Millisecond))

	start := time.Now()
	r.HandleNetworkError(context.Background(), errors.New("connection refused"), "/task/state")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second)
	logs := r.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, CategoryNetwork, logs[0].Category)
	assert.Equal(t, CategoryRoute, logs[1].Category)
	assert.Contains(t, logs[1].Message, context.DeadlineExceeded.Error())
	assert.Equal(t, "error/503", logs[1].Source)
}

func TestHandleRuntimeError_NeverNavigates(t *testing.T) {
	nav := &fakeNavigator{}
	r := newTestReporter(WithNavigator(nav))

	r.HandleRuntimeError(errors.New("nil map write"), "goroutine 1 [running]")

	assert.Empty(t, nav.requests)
	assert.Equal(t, CategoryRuntime, r.Logs()[0].Category)
	assert.Equal(t, "goroutine 1 [running]", r.Logs()[0].Stack)
}

func TestLog_BoundedAtCapacity(t *testing.T) {
	r := newTestReporter()
	for i := 1; i <= DefaultCapacity+1; i++ {
		r.HandleAPIError(context.Background(), fmt.Errorf("failure %d", i), "/x", 0)
	}

	logs := r.Logs()
	require.Len(t, logs, DefaultCapacity)
	assert.Equal(t, "failure 2", logs[0].Message, "oldest entry is evicted")
	assert.Equal(t, fmt.Sprintf("failure %d", DefaultCapacity+1), logs[DefaultCapacity-1].Message)
}

func TestClear(t *testing.T) {
	r := newTestReporter()
	r.HandleRuntimeError(errors.New("x"), "")
	r.Clear()
	assert.Empty(t, r.Logs())
}

func TestRecorder(t *testing.T) {
	rec := &countingRecorder{counts: map[string]int{}}
	r := newTestReporter(WithRecorder(rec))

	r.HandleAPIError(context.Background(), errors.New("x"), "/a", 0)
	r.HandleAPIError(context.Background(), errors.New("x"), "/b", 0)
	r.HandleNetworkError(context.Background(), errors.New("x"), "/c")

	assert.Equal(t, map[string]int{"api": 2, "network": 1}, rec.counts)
}

func TestExport(t *testing.T) {
	r := newTestReporter()
	r.HandleAPIError(context.Background(), errors.New("HTTP error! status: 500"), "/task/tasks", 500)

	t.Run("json", func(t *testing.T) {
		out, err := r.Export("")
		require.NoError(t, err)
		assert.Contains(t, string(out), "\n  {\n    \"timestamp\"")

		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(out, &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "api", decoded[0]["type"])
		assert.Equal(t, "/task/tasks", decoded[0]["url"])
		assert.EqualValues(t, 500, decoded[0]["statusCode"])
		assert.Equal(t, "test-agent", decoded[0]["userAgent"])
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := r.Export("yaml")
		require.NoError(t, err)

		var decoded []map[string]any
		require.NoError(t, yaml.Unmarshal(out, &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "api", decoded[0]["type"])
		assert.Equal(t, 500, decoded[0]["statusCode"])
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := r.Export("xml")
		assert.Error(t, err)
	})
}

func TestFriendlyMessage(t *testing.T) {
	seen := map[string]int{}
	for _, status := range []int{400, 401, 403, 404, 500, 502, 503, 504} {
		msg := FriendlyMessage(status)
		if prev, dup := seen[msg]; dup {
			t.Errorf("status %d shares its message with %d", status, prev)
		}
		seen[msg] = status
	}
	assert.Equal(t, "Request failed, please try again later", FriendlyMessage(418))
}

func TestClientSignature(t *testing.T) {
	sig := ClientSignature("1.2.0")
	assert.Contains(t, sig, "paperscout-go/1.2.0")
	assert.Contains(t, sig, "session/"+sessionID)
	assert.Contains(t, ClientSignature(""), "paperscout-go/dev")
}

func TestInstall_CapturesUnhandledErrors(t *testing.T) {
	r := newTestReporter()
	r.Install()
	defer r.Uninstall()

	utilruntime.HandleError(errors.New("watch stream closed"))

	logs := r.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, CategoryRuntime, logs[0].Category)
	assert.Contains(t, logs[0].Message, "watch stream closed")
}

func TestInstall_CapturesPanics(t *testing.T) {
	prevCrash := utilruntime.ReallyCrash
	utilruntime.ReallyCrash = false
	defer func() { utilruntime.ReallyCrash = prevCrash }()

	r := newTestReporter()
	r.Install()
	defer r.Uninstall()

	func() {
		defer utilruntime.HandleCrash()
		panic("index out of range")
	}()

	logs := r.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "panic: index out of range", logs[0].Message)
	assert.NotEmpty(t, logs[0].Stack)
}

func TestUninstall_RestoresHandlers(t *testing.T) {
	before := len(utilruntime.PanicHandlers)
	r := newTestReporter()
	r.Install()
	r.Install()
	assert.Len(t, utilruntime.PanicHandlers, before+1)
	r.Uninstall()
	assert.Len(t, utilruntime.PanicHandlers, before)

	utilruntime.HandleError(errors.New("after uninstall"))
	assert.Empty(t, r.Logs())
}
