package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	utilnet "k8s.io/apimachinery/pkg/util/net"
)

// Kind classifies a failure observed by the remote-call layer.
type Kind string

const (
	// KindTimeout means the per-attempt deadline elapsed before a response arrived.
	KindTimeout Kind = "timeout"
	// KindTransport means the connection failed (DNS, refused, reset, EOF).
	KindTransport Kind = "transport"
	// KindServerFailure means the server answered with a status >= 500.
	KindServerFailure Kind = "server_failure"
	// KindClientFailure means the server answered with a 4xx status.
	KindClientFailure Kind = "client_failure"
	// KindValidation means a response was well-formed but its content was unusable.
	KindValidation Kind = "validation"
	// KindBusiness means the backend reported a logical failure in its envelope.
	KindBusiness Kind = "business"
)

// Error is the structured failure returned by every component of the
// remote-call layer. Callers inspect it with errors.As or KindOf.
type Error struct {
	Kind Kind
	// Op is the endpoint or operation that failed.
	Op string
	// Status is the HTTP status when one was observed, 0 otherwise.
	Status int
	// Message is a human-readable summary; Err carries the underlying cause.
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	switch {
	case e.Status != 0 && e.Op != "":
		return fmt.Sprintf("%s %s (status %d): %s", e.Kind, e.Op, e.Status, msg)
	case e.Op != "":
		return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the Retry Coordinator may absorb this failure.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindTransport, KindServerFailure:
		return true
	default:
		return false
	}
}

// StatusError builds the failure for an unsuccessful HTTP status.
func StatusError(op string, status int) *Error {
	kind := KindClientFailure
	if status >= http.StatusInternalServerError {
		kind = KindServerFailure
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Status:  status,
		Message: fmt.Sprintf("HTTP error! status: %d", status),
	}
}

// KindOf returns the Kind of err. Errors that never passed through this
// package are classified by inspecting the network error chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return classify(err)
}

// IsRetryable reports whether err is a timeout, connection or server failure.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindTransport, KindServerFailure:
		return true
	default:
		return false
	}
}

// IsConnectivity reports whether err means the server could not be reached,
// as opposed to a reply the server sent.
func IsConnectivity(err error) bool {
	k := KindOf(err)
	return k == KindTimeout || k == KindTransport
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}

func classify(err error) Kind {
	kind, _ := diagnose(err)
	return kind
}

// diagnose classifies an error raised before any response existed and names
// the connection condition behind it.
func diagnose(err error) (Kind, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), utilnet.IsTimeout(err):
		return KindTimeout, "timeout"
	case utilnet.IsConnectionRefused(err):
		return KindTransport, "connection refused"
	case utilnet.IsConnectionReset(err):
		return KindTransport, "connection reset"
	case utilnet.IsProbableEOF(err):
		return KindTransport, "connection closed"
	default:
		return KindTransport, ""
	}
}
