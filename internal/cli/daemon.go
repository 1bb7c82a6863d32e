package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron-ui/server"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"

	"github.com/aravindh-murugesan/paperscout-go/internal/workflow"
)

// headlessAnnotation marks commands that run without a terminal user: no
// console navigator, metrics on.
const headlessAnnotation = "paperscout/headless"

// daemonRegistry collects the daemon's metrics; interactive commands run
// without instrumentation.
var daemonRegistry = newDaemonRegistry()

func newDaemonRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

var daemonCommand = &cobra.Command{
	Use:         "daemon",
	Annotations: map[string]string{headlessAnnotation: "true"},
	Short:       "Run PaperScout in daemon mode",
	GroupID:     "service",
	Long: `Starts PaperScout as a background service that keeps storage credentials warm,
sweeps task states into Prometheus gauges and serves /metrics next to the scheduler dashboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		banner := fmt.Sprintf("PaperScout - Daemon Mode \n\nVersion: %s\nBuild Date: %s", PaperscoutVersion, PaperscoutDate)
		fmt.Println(headerStyle.Render(banner))

		app := application
		cfg := app.Config
		utilruntime.ReallyCrash = false

		dlog := app.Logger.With("component", "daemon")

		s, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		s.Start()
		dlog.Info("Scheduler started", "base_url", cfg.BaseURL)

		// 1. Credential pre-warm
		if err := scheduleJob(s, dlog, "Credential Pre-warm Workflow", cfg.Daemon.PrewarmSchedule, func(ctx context.Context) error {
			return workflow.RunCredentialPrewarm(ctx, app)
		}); err != nil {
			return err
		}

		// 2. Task sweep
		if err := scheduleJob(s, dlog, "Task Sweep Workflow", cfg.Daemon.SweepSchedule, func(ctx context.Context) error {
			_, err := workflow.RunTaskSweep(ctx, app)
			return err
		}); err != nil {
			return err
		}

		// 3. Dashboard and metrics share one listener
		ui := server.NewServer(s, cfg.Daemon.UIPort, server.WithTitle("PaperScout - Dashboard"))
		mux := http.NewServeMux()
		mux.Handle(cfg.Daemon.MetricsPath, promhttp.HandlerFor(daemonRegistry, promhttp.HandlerOpts{Registry: daemonRegistry}))
		mux.Handle("/", ui.Router)

		httpServer := &http.Server{
			Addr:              cfg.Daemon.BindAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			dlog.Info("PaperScout dashboard started", "address", cfg.Daemon.BindAddress, "metrics_path", cfg.Daemon.MetricsPath)
			serveErr <- httpServer.ListenAndServe()
		}()

		// 4. Block Main Thread until Signal or listener failure
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			dlog.Warn("Shutting down scheduler due to system signal...")
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				dlog.Error("Failed to start dashboard server", "error", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return s.Shutdown()
	},
}

// scheduleJob registers run under a cron expression in singleton mode and
// logs its next run before and after every execution. A panic inside run is
// recorded by the failure reporter and does not take the daemon down.
func scheduleJob(s gocron.Scheduler, dlog *slog.Logger, name, schedule string, run func(context.Context) error) error {
	// 1. Declare the variable first so it can be used INSIDE the task closure
	var job gocron.Job

	// 2. Define the Job
	job, err := s.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			defer utilruntime.HandleCrash()

			// A. Run the Workflow
			ctx := context.Background()
			if err := run(ctx); err != nil {
				dlog.Warn("Job run failed", "job_name", name, "error", err)
			}

			// B. Calculate and Log the Next Run (Post-Execution)
			if job != nil {
				if nextRun, err := job.NextRun(); err == nil {
					dlog.Info("Job run completed",
						"job_name", name,
						"next_run", nextRun.Format(time.RFC3339),
						"job_id", job.ID())
				}
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	// 3. Log the Initial Next Run (Pre-Execution)
	if nextRun, err := job.NextRun(); err == nil {
		dlog.Info("Job Scheduled",
			"job_name", job.Name(),
			"job_id", job.ID(),
			"schedule", schedule,
			"next_run", nextRun.Format(time.RFC3339))
	}
	return nil
}

func init() {
	rootCommand.AddCommand(daemonCommand)
	daemonCommand.Flags().String("prewarm-schedule", "*/5 * * * *", "Cron schedule for the credential pre-warm")
	daemonCommand.Flags().String("sweep-schedule", "* * * * *", "Cron schedule for the task sweep")
	daemonCommand.Flags().String("bind-address", "0.0.0.0:8080", "Address to bind the dashboard and metrics server")
}
