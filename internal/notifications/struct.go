// Package notifications delivers failure navigation requests to a human:
// a boxed message on the terminal, a webhook, or both.
package notifications

import (
	"time"

	"github.com/aravindh-murugesan/paperscout-go/internal/failure"
)

// Event is the webhook payload for one navigation request.
type Event struct {
	Service   string    `json:"service"`
	Code      int       `json:"code"`
	Detail    string    `json:"detail"`
	Client    string    `json:"client,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(service, client string, req failure.NavigationRequest, now time.Time) Event {
	if service == "" {
		service = "paperscout"
	}
	return Event{
		Service:   service,
		Code:      req.Code,
		Detail:    req.Detail,
		Client:    client,
		Timestamp: now.UTC(),
	}
}
