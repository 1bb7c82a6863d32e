package notifications

import (
	"context"
	"errors"

	"github.com/aravindh-murugesan/paperscout-go/internal/failure"
)

// Fanout forwards a request to every navigator not already showing an error.
type Fanout []failure.Navigator

var _ failure.Navigator = Fanout(nil)

// OnErrorSurface is true when every navigator is already showing an error.
func (f Fanout) OnErrorSurface() bool {
	for _, n := range f {
		if !n.OnErrorSurface() {
			return false
		}
	}
	return len(f) > 0
}

func (f Fanout) Navigate(ctx context.Context, req failure.NavigationRequest) error {
	var errs []error
	for _, n := range f {
		if n.OnErrorSurface() {
			continue
		}
		if err := n.Navigate(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
