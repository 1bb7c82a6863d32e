// Package failure records every failure observed by the remote-call layer in
// a bounded log and turns the ones a user should see into a single
// navigation request towards an error surface.
package failure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
)

// Category tags an Entry with the layer the failure came from.
type Category string

const (
	CategoryAPI     Category = "api"
	CategoryRuntime Category = "runtime"
	CategoryNetwork Category = "network"
	CategoryRoute   Category = "route"
)

// Entry is one record of the failure log.
type Entry struct {
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	Category        Category  `json:"type" yaml:"type"`
	Message         string    `json:"message" yaml:"message"`
	Stack           string    `json:"stack,omitempty" yaml:"stack,omitempty"`
	Cause           string    `json:"cause,omitempty" yaml:"cause,omitempty"`
	Source          string    `json:"url,omitempty" yaml:"url,omitempty"`
	StatusCode      int       `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	ClientSignature string    `json:"userAgent" yaml:"userAgent"`
}

// NavigationRequest asks the embedding application to show its error surface.
type NavigationRequest struct {
	Code   int    `json:"code"`
	Detail string `json:"detail"`
}

// Navigator is implemented by the embedding application, which owns the
// actual error surface.
type Navigator interface {
	// OnErrorSurface reports whether the error surface is already showing.
	OnErrorSurface() bool
	// Navigate shows the error surface for req.
	Navigate(ctx context.Context, req NavigationRequest) error
}

// Recorder receives a count of recorded failures per category.
type Recorder interface {
	RecordFailure(category string)
}

// DefaultNavigationTimeout bounds a single navigation request.
const DefaultNavigationTimeout = 5 * time.Second

const (
	networkFailureMessage = "network connection failed"
	networkFailureDetail  = "Cannot reach the server, check the network or backend status"
)

var sessionID = uuid.NewString()

// ClientSignature identifies this client instance in log entries and the
// User-Agent header.
func ClientSignature(version string) string {
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("paperscout-go/%s (%s/%s) session/%s", version, runtime.GOOS, runtime.GOARCH, sessionID)
}

// Reporter classifies and records failures. The zero value is not usable;
// construct one with New.
type Reporter struct {
	log       *Ring
	navigator Navigator
	signature string
	logger    *slog.Logger
	recorder  Recorder
	navWait   time.Duration
	now       func() time.Time

	mu         sync.Mutex
	installed  bool
	prevErrors []utilruntime.ErrorHandler
	prevPanics []func(context.Context, interface{})
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithNavigator sets the error-surface target. Without one, failures are
// only logged.
func WithNavigator(n Navigator) Option {
	return func(r *Reporter) { r.navigator = n }
}

// WithLogger sets the structured logger used for diagnostic output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithCapacity overrides the log capacity.
func WithCapacity(n int) Option {
	return func(r *Reporter) { r.log = NewRing(n) }
}

// WithSignature overrides the client signature stamped on entries.
func WithSignature(s string) Option {
	return func(r *Reporter) { r.signature = s }
}

// WithRecorder counts failures, e.g. into Prometheus.
func WithRecorder(rec Recorder) Option {
	return func(r *Reporter) { r.recorder = rec }
}

// WithNavigationTimeout caps how long a failing call waits for the error
// surface to accept a navigation request. Non-positive values keep
// DefaultNavigationTimeout.
func WithNavigationTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.navWait = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// New returns a Reporter with a log of DefaultCapacity entries.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		log:       NewRing(DefaultCapacity),
		signature: ClientSignature(""),
		logger:    slog.Default(),
		navWait:   DefaultNavigationTimeout,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With("component", "failure-reporter")
	return r
}

// HandleAPIError records a failed backend call. When status is known, the
// matching friendly message is sent to the error surface. err is returned
// unchanged so callers keep control of the final disposition.
func (r *Reporter) HandleAPIError(ctx context.Context, err error, endpoint string, status int) error {
	message := "unknown API error"
	if err != nil {
		message = err.Error()
	}
	r.record(Entry{
		Category:   CategoryAPI,
		Message:    message,
		Source:     endpoint,
		StatusCode: status,
	})

	if status != 0 {
		r.navigate(ctx, NavigationRequest{Code: status, Detail: FriendlyMessage(status)})
	}
	return err
}

// HandleNetworkError records a call that never reached the server. It always
// requests the error surface with a synthetic 503.
func (r *Reporter) HandleNetworkError(ctx context.Context, err error, endpoint string) error {
	entry := Entry{
		Category: CategoryNetwork,
		Message:  networkFailureMessage,
		Source:   endpoint,
	}
	if err != nil {
		entry.Cause = err.Error()
	}
	r.record(entry)
	r.navigate(ctx, NavigationRequest{Code: http.StatusServiceUnavailable, Detail: networkFailureDetail})
	return err
}

// HandleRuntimeError records a failure raised outside any backend call.
// It never navigates.
func (r *Reporter) HandleRuntimeError(err error, stack string) {
	message := "unhandled failure"
	if err != nil {
		message = err.Error()
	}
	r.record(Entry{Category: CategoryRuntime, Message: message, Stack: stack})
}

// HandleRouteError records a failure to deliver a navigation request.
func (r *Reporter) HandleRouteError(err error, target string) {
	r.record(Entry{Category: CategoryRoute, Message: err.Error(), Source: target})
}

// Logs returns a copy of the log, oldest first.
func (r *Reporter) Logs() []Entry {
	return r.log.Snapshot()
}

// Clear empties the log.
func (r *Reporter) Clear() {
	r.log.Reset()
}

func (r *Reporter) record(e Entry) {
	e.Timestamp = r.now().UTC()
	e.ClientSignature = r.signature
	r.log.Push(e)

	if r.recorder != nil {
		r.recorder.RecordFailure(string(e.Category))
	}

	attrs := []any{"type", e.Category, "message", e.Message}
	if e.Source != "" {
		attrs = append(attrs, "url", e.Source)
	}
	if e.StatusCode != 0 {
		attrs = append(attrs, "status_code", e.StatusCode)
	}
	if e.Cause != "" {
		attrs = append(attrs, "cause", e.Cause)
	}
	if e.Stack != "" {
		attrs = append(attrs, "stack", e.Stack)
	}
	r.logger.Debug("Failure recorded", attrs...)
}

func (r *Reporter) navigate(ctx context.Context, req NavigationRequest) {
	if r.navigator == nil {
		return
	}
	// Never stack one error surface on top of another.
	if r.navigator.OnErrorSurface() {
		r.logger.Debug("Error surface already active, navigation suppressed", "code", req.Code)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.navWait)
	defer cancel()
	if err := r.navigator.Navigate(ctx, req); err != nil {
		r.HandleRouteError(fmt.Errorf("navigate to error surface: %w", err), fmt.Sprintf("error/%d", req.Code))
	}
}

// FriendlyMessage maps an HTTP status to the text shown to users.
func FriendlyMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Invalid request parameters, please check and try again"
	case http.StatusUnauthorized:
		return "Unauthorized, please sign in first"
	case http.StatusForbidden:
		return "You do not have permission to access this resource"
	case http.StatusNotFound:
		return "The requested resource does not exist"
	case http.StatusInternalServerError:
		return "Internal server error, please try again later"
	case http.StatusBadGateway:
		return "Bad gateway, please try again later"
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable, please try again later"
	case http.StatusGatewayTimeout:
		return "The request timed out, check the network and try again"
	default:
		return "Request failed, please try again later"
	}
}
