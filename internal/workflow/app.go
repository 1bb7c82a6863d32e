// Package workflow assembles the remote-call layer from configuration and
// runs the jobs the CLI and daemon expose.
package workflow

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/util/flowcontrol"

	"github.com/aravindh-murugesan/paperscout-go/internal/api"
	"github.com/aravindh-murugesan/paperscout-go/internal/config"
	"github.com/aravindh-murugesan/paperscout-go/internal/credentials"
	"github.com/aravindh-murugesan/paperscout-go/internal/failure"
	"github.com/aravindh-murugesan/paperscout-go/internal/metrics"
	"github.com/aravindh-murugesan/paperscout-go/internal/notifications"
	"github.com/aravindh-murugesan/paperscout-go/internal/storage"
	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

// Options control how an App is assembled.
type Options struct {
	Version string
	// Console, when set, receives the boxed error shown to a terminal user.
	Console io.Writer
	// Registerer receives the metrics. Nil disables instrumentation.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	// Opener replaces the browser launcher used by previews.
	Opener storage.Opener
}

// App is one fully wired remote-call layer.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Reporter *failure.Reporter
	Metrics  *metrics.Metrics
	Client   *api.Client
	Storage  *storage.Issuer
	Console  *notifications.Console
}

// NewApp builds every component from cfg.
func NewApp(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = SetupLogger(cfg.LogLevel, cfg.Verbose, cfg.BaseURL)
	}
	signature := failure.ClientSignature(opts.Version)

	// 1. Metrics are optional; a nil *Metrics records nothing.
	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.New(opts.Registerer)
	}

	// 2. Navigators: the terminal box for interactive runs, the webhook when configured.
	var (
		fanout  notifications.Fanout
		console *notifications.Console
	)
	if opts.Console != nil {
		console = notifications.NewConsole(opts.Console)
		fanout = append(fanout, console)
	}
	if cfg.Webhook.URL != "" {
		fanout = append(fanout, &notifications.Webhook{
			URL:           cfg.Webhook.URL,
			Username:      cfg.Webhook.Username,
			Password:      cfg.Webhook.Password,
			SkipTLSVerify: cfg.Webhook.SkipTLSVerify,
			Cooldown:      cfg.Webhook.Cooldown,
			Client:        signature,
		})
		logger.Debug("Webhook navigator enabled", "url", cfg.Webhook.URL)
	}

	reporterOpts := []failure.Option{
		failure.WithLogger(logger),
		failure.WithSignature(signature),
		failure.WithRecorder(m),
		failure.WithNavigationTimeout(cfg.Webhook.Timeout),
	}
	if len(fanout) > 0 {
		reporterOpts = append(reporterOpts, failure.WithNavigator(fanout))
	}
	reporter := failure.New(reporterOpts...)

	// 3. Outbound limiter, only when a rate is configured.
	var limiter flowcontrol.RateLimiter
	if cfg.RateLimit.QPS > 0 {
		limiter = flowcontrol.NewTokenBucketRateLimiter(cfg.RateLimit.QPS, cfg.RateLimit.Burst)
	}

	client, err := api.New(api.Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
		Retry: transport.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
			Retryable:   transport.ServerFailureRetryable,
		},
		Limiter:   limiter,
		Reporter:  reporter,
		Metrics:   m,
		UserAgent: signature,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}

	// 4. Signed URLs draw credentials from the backend through the cache.
	storageOpts := []storage.Option{
		storage.WithExpires(cfg.Storage.SignatureExpires),
		storage.WithExecutor(transport.NewExecutor(nil), cfg.RequestTimeout),
		storage.WithLogger(logger),
		storage.WithCacheOptions(
			credentials.WithSafetyMargin(cfg.Credentials.SafetyMargin),
			credentials.WithRefreshTimeout(cfg.Credentials.RefreshTimeout),
			credentials.WithLogger(logger),
			credentials.WithRecorder(m),
		),
	}
	if opts.Opener != nil {
		storageOpts = append(storageOpts, storage.WithOpener(opts.Opener))
	}
	issuer := storage.NewIssuer(client, cfg.Storage.Target, storageOpts...)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Reporter: reporter,
		Metrics:  m,
		Client:   client,
		Storage:  issuer,
		Console:  console,
	}, nil
}
