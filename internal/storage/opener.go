package storage

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Opener hands a URL to something that can display it.
type Opener interface {
	Open(ctx context.Context, rawURL string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, rawURL string) error

func (f OpenerFunc) Open(ctx context.Context, rawURL string) error { return f(ctx, rawURL) }

// BrowserOpener launches the platform's default browser.
type BrowserOpener struct{}

func (BrowserOpener) Open(ctx context.Context, rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", rawURL)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", rawURL)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	// The browser outlives this process; reap the launcher in the background.
	go func() { _ = cmd.Wait() }()
	return nil
}
