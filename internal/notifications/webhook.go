package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/aravindh-murugesan/paperscout-go/internal/failure"
)

// Webhook posts navigation requests as JSON. Within Cooldown of the last
// delivery it reports itself as already showing an error, so a burst of
// failures produces one notification.
type Webhook struct {
	URL           string
	Username      string
	Password      string
	SkipTLSVerify bool
	Cooldown      time.Duration
	// Service and Client label the payload.
	Service string
	Client  string

	once   sync.Once
	client *retryablehttp.Client

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

var _ failure.Navigator = (*Webhook)(nil)

func (w *Webhook) retryClient() *retryablehttp.Client {
	w.once.Do(func() {
		rc := retryablehttp.NewClient()
		rc.RetryMax = 3
		rc.RetryWaitMin = 500 * time.Millisecond
		rc.RetryWaitMax = 5 * time.Second
		rc.Logger = nil
		rc.HTTPClient.Timeout = 30 * time.Second
		if w.SkipTLSVerify {
			if tr, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
				tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
			}
		}
		w.client = rc
	})
	return w.client
}

func (w *Webhook) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// OnErrorSurface reports whether a notification went out within Cooldown.
func (w *Webhook) OnErrorSurface() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.last.IsZero() && w.clock().Sub(w.last) < w.Cooldown
}

// Navigate delivers req. Transient failures are retried by the client.
func (w *Webhook) Navigate(ctx context.Context, req failure.NavigationRequest) error {
	if w.URL == "" {
		return nil
	}
	now := w.clock()

	payload, err := json.Marshal(newEvent(w.Service, w.Client, req, now))
	if err != nil {
		return err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.Username != "" || w.Password != "" {
		httpReq.SetBasicAuth(w.Username, w.Password)
	}

	resp, err := w.retryClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send webhook notification: status %d", resp.StatusCode)
	}

	w.mu.Lock()
	w.last = now
	w.mu.Unlock()
	return nil
}
