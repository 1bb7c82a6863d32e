package notifications

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/aravindh-murugesan/paperscout-go/internal/failure"
)

var errorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#C0392B")).
	Padding(1, 3).
	MarginTop(1).
	Border(lipgloss.RoundedBorder())

// Console renders the first navigation request of a process as an error
// box. Later requests are suppressed until Reset.
type Console struct {
	Out io.Writer

	mu    sync.Mutex
	shown bool
}

var _ failure.Navigator = (*Console)(nil)

// NewConsole writes to out, or stderr when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{Out: out}
}

func (c *Console) OnErrorSurface() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shown
}

func (c *Console) Navigate(_ context.Context, req failure.NavigationRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shown {
		return nil
	}
	body := fmt.Sprintf("Error %d\n\n%s", req.Code, req.Detail)
	if _, err := fmt.Fprintln(c.Out, errorStyle.Render(body)); err != nil {
		return err
	}
	c.shown = true
	return nil
}

// Reset allows the next request to be shown.
func (c *Console) Reset() {
	c.mu.Lock()
	c.shown = false
	c.mu.Unlock()
}
