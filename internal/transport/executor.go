package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout is the per-attempt deadline applied when none is configured.
const DefaultTimeout = 30 * time.Second

var errDeadline = errors.New("attempt deadline exceeded")

// Doer is the subset of *http.Client used by the Executor.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor performs single HTTP calls under a hard deadline.
type Executor struct {
	client Doer
}

// NewExecutor wraps client. A nil client falls back to a plain *http.Client
// without its own timeout, since the deadline is enforced per attempt.
func NewExecutor(client Doer) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{client: client}
}

// Do sends req and bounds the whole exchange, body included, by timeout.
//
// When the deadline fires first the request context is cancelled, which
// tears down the connection, and a KindTimeout error is returned. On success
// the returned body owns the timer and the request context: reads past the
// deadline fail with KindTimeout, and Close releases both.
func (e *Executor) Do(ctx context.Context, req *http.Request, timeout time.Duration) (*http.Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	op := req.URL.Path

	attemptCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(timeout, func() { cancel(errDeadline) })

	resp, err := e.client.Do(req.WithContext(attemptCtx))
	if err != nil {
		timer.Stop()
		timedOut := errors.Is(context.Cause(attemptCtx), errDeadline)
		cancel(nil)
		if timedOut {
			return nil, &Error{
				Kind:    KindTimeout,
				Op:      op,
				Message: fmt.Sprintf("request timed out (%s): %s", timeout, req.URL.Redacted()),
				Err:     errDeadline,
			}
		}
		if ctx.Err() != nil {
			// The caller gave up; that is not a transport failure.
			return nil, ctx.Err()
		}
		kind, reason := diagnose(err)
		return nil, &Error{Kind: kind, Op: op, Message: reason, Err: err}
	}

	resp.Body = &releasingBody{
		ReadCloser: resp.Body,
		ctx:        ctx,
		attemptCtx: attemptCtx,
		op:         op,
		message:    fmt.Sprintf("response body timed out (%s): %s", timeout, req.URL.Redacted()),
		release: func() {
			timer.Stop()
			cancel(nil)
		},
	}
	return resp, nil
}

// releasingBody keeps the attempt deadline armed while the body is read and
// cancels the attempt context once the caller is done with it.
type releasingBody struct {
	io.ReadCloser
	ctx        context.Context
	attemptCtx context.Context
	op         string
	message    string
	once       sync.Once
	release    func()
}

func (b *releasingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	switch {
	case errors.Is(context.Cause(b.attemptCtx), errDeadline):
		return n, &Error{Kind: KindTimeout, Op: b.op, Message: b.message, Err: errDeadline}
	case b.ctx.Err() != nil:
		return n, b.ctx.Err()
	}
	kind, reason := diagnose(err)
	return n, &Error{Kind: kind, Op: b.op, Message: reason, Err: err}
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
