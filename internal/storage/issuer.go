// Package storage mints time-limited object URLs from the cached storage
// credentials and uses them to preview or download papers.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aravindh-murugesan/paperscout-go/internal/credentials"
	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

const (
	// DefaultExpires is the lifetime of a signed URL.
	DefaultExpires = time.Hour
	// DefaultFileName is used when the object path has no trailing segment.
	DefaultFileName = "document.pdf"
)

// Disposition is how a browser should treat the signed object.
type Disposition string

const (
	Inline     Disposition = "inline"
	Attachment Disposition = "attachment"
)

// Header renders the Content-Disposition value for fileName.
func (d Disposition) Header(fileName string) string {
	return fmt.Sprintf("%s; filename=%q", d, encodeFileName(fileName))
}

// Issuer signs object URLs. Each call goes through the credential cache, so
// an expired bundle is refreshed transparently.
type Issuer struct {
	cache     *credentials.Cache[Signer]
	expires   time.Duration
	exec      *transport.Executor
	timeout   time.Duration
	opener    Opener
	logger    *slog.Logger
	newSigner func(Target, credentials.Bundle) (Signer, error)

	mu     sync.RWMutex
	target Target
}

// Option configures an Issuer.
type Option func(*issuerOptions)

type issuerOptions struct {
	expires      time.Duration
	timeout      time.Duration
	exec         *transport.Executor
	opener       Opener
	logger       *slog.Logger
	cacheOptions []credentials.Option
	newSigner    func(Target, credentials.Bundle) (Signer, error)
}

// WithExpires sets the signed URL lifetime.
func WithExpires(d time.Duration) Option {
	return func(o *issuerOptions) {
		if d > 0 {
			o.expires = d
		}
	}
}

// WithExecutor sets the executor and per-download deadline used by Download.
func WithExecutor(e *transport.Executor, timeout time.Duration) Option {
	return func(o *issuerOptions) {
		o.exec = e
		o.timeout = timeout
	}
}

// WithOpener replaces the browser launcher used by Preview.
func WithOpener(op Opener) Option {
	return func(o *issuerOptions) { o.opener = op }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *issuerOptions) { o.logger = l }
}

// WithCacheOptions passes options through to the credential cache.
func WithCacheOptions(opts ...credentials.Option) Option {
	return func(o *issuerOptions) { o.cacheOptions = append(o.cacheOptions, opts...) }
}

// WithSignerFactory replaces NewSigner.
func WithSignerFactory(f func(Target, credentials.Bundle) (Signer, error)) Option {
	return func(o *issuerOptions) { o.newSigner = f }
}

// NewIssuer returns an Issuer signing objects in target with credentials
// obtained from source.
func NewIssuer(source credentials.Issuer, target Target, opts ...Option) *Issuer {
	o := issuerOptions{
		expires:   DefaultExpires,
		timeout:   transport.DefaultTimeout,
		opener:    BrowserOpener{},
		logger:    slog.Default(),
		newSigner: NewSigner,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.exec == nil {
		o.exec = transport.NewExecutor(nil)
	}

	i := &Issuer{
		expires:   o.expires,
		exec:      o.exec,
		timeout:   o.timeout,
		opener:    o.opener,
		logger:    o.logger.With("component", "storage"),
		newSigner: o.newSigner,
		target:    target,
	}
	i.cache = credentials.New(source, i.buildSigner, o.cacheOptions...)
	return i
}

// Credentials exposes the underlying cache, e.g. for status reporting or
// pre-warming.
func (i *Issuer) Credentials() *credentials.Cache[Signer] {
	return i.cache
}

// Target returns the current region and bucket.
func (i *Issuer) Target() Target {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.target
}

// SetTarget switches region and bucket. The cache is cleared so the next
// call builds a signer for the new target.
func (i *Issuer) SetTarget(region, bucket string) {
	i.mu.Lock()
	i.target.Region = region
	i.target.Bucket = bucket
	i.mu.Unlock()

	i.cache.Clear()
	i.logger.Info("Storage target changed", "region", region, "bucket", bucket)
}

func (i *Issuer) buildSigner(b credentials.Bundle) (Signer, error) {
	return i.newSigner(i.Target(), b)
}

// SignURL returns a time-limited GET URL for objectPath, which may be a bare
// key or a full object URL. Credential failures propagate unchanged.
func (i *Issuer) SignURL(ctx context.Context, objectPath string, d Disposition) (string, error) {
	signer, err := i.cache.Client(ctx)
	if err != nil {
		return "", err
	}

	key := ObjectKey(objectPath)
	signed, err := signer.Sign(ctx, SignRequest{
		Key:         key,
		FileName:    FileName(key),
		Disposition: d,
		Expires:     i.expires,
	})
	if err != nil {
		return "", err
	}
	i.logger.Debug("Signed object URL", "key", key, "disposition", d, "expires_in", i.expires)
	return signed, nil
}

// Preview signs objectPath for inline display and opens it.
func (i *Issuer) Preview(ctx context.Context, objectPath string) (string, error) {
	signed, err := i.SignURL(ctx, objectPath, Inline)
	if err != nil {
		return "", err
	}
	if err := i.opener.Open(ctx, signed); err != nil {
		return signed, fmt.Errorf("open preview: %w", err)
	}
	return signed, nil
}

// Download signs objectPath as an attachment and saves it into dir. The
// object is written to a transient file first and renamed into place, so a
// failed download never leaves a partial file behind.
func (i *Issuer) Download(ctx context.Context, objectPath, dir string) (string, error) {
	signed, err := i.SignURL(ctx, objectPath, Attachment)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return "", err
	}
	resp, err := i.exec.Do(ctx, req, i.timeout)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", transport.StatusError(ObjectKey(objectPath), resp.StatusCode)
	}

	dest := filepath.Join(dir, FileName(ObjectKey(objectPath)))
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	defer func() {
		// No-op once renamed.
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}

	i.logger.Info("Downloaded object", "key", ObjectKey(objectPath), "path", dest, "bytes", n)
	return dest, nil
}

// ObjectKey extracts the storage key from a bare path or an absolute URL.
func ObjectKey(objectPath string) string {
	p := objectPath
	if u, err := url.Parse(objectPath); err == nil && u.IsAbs() {
		p = u.Path
	}
	return strings.TrimPrefix(p, "/")
}

// FileName is the trailing segment of key, or DefaultFileName.
func FileName(key string) string {
	name := key[strings.LastIndex(key, "/")+1:]
	if name == "" {
		return DefaultFileName
	}
	return name
}

// unreserved restores the characters URI components leave as they are.
var unreserved = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeFileName percent-encodes name for use in a header parameter, leaving
// !'()* readable.
func encodeFileName(name string) string {
	return unreserved.Replace(url.QueryEscape(name))
}
