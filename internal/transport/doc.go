// Package transport bounds and repeats outbound HTTP calls.
//
// Executor applies a hard per-attempt deadline and cancels the request when
// it fires. Retry drives attempts sequentially under a RetryPolicy. Every
// failure leaving this package is an *Error tagged with a Kind.
package transport
