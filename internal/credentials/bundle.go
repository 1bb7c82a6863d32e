// Package credentials holds the short-lived storage credential bundle and the
// signing client built from it, refreshing both shortly before expiry.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

// FallbackIssueMessage is used when the issuer rejects a request without
// saying why.
const FallbackIssueMessage = "failed to obtain storage credentials"

// Bundle is a temporary security credential. Once published it is never
// mutated; a refresh replaces it wholesale.
type Bundle struct {
	AccessKeyID     string    `mapstructure:"accessKeyId"`
	AccessKeySecret string    `mapstructure:"accessKeySecret"`
	SessionToken    string    `mapstructure:"securityToken"`
	ExpiresAt       time.Time `mapstructure:"expiration"`
}

// Validate rejects bundles with any empty credential field.
func (b Bundle) Validate() error {
	if b.AccessKeyID != "" && b.AccessKeySecret != "" && b.SessionToken != "" {
		return nil
	}
	return &transport.Error{
		Kind: transport.KindValidation,
		Op:   "credentials",
		Message: fmt.Sprintf(
			"credential response is missing fields (hasAccessKeyId=%t, hasAccessKeySecret=%t, hasSecurityToken=%t)",
			b.AccessKeyID != "", b.AccessKeySecret != "", b.SessionToken != "",
		),
	}
}

// LogValue keeps secrets out of structured logs.
func (b Bundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access_key_id", redact(b.AccessKeyID)),
		slog.Time("expires_at", b.ExpiresAt),
	)
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// Issuer obtains a fresh bundle from the backend.
type Issuer interface {
	IssueCredentials(ctx context.Context) (Bundle, error)
}

// IssuerFunc adapts a function to the Issuer interface.
type IssuerFunc func(ctx context.Context) (Bundle, error)

func (f IssuerFunc) IssueCredentials(ctx context.Context) (Bundle, error) {
	return f(ctx)
}

// ClientFactory builds the signing client that depends on a bundle.
type ClientFactory[C any] func(b Bundle) (C, error)
