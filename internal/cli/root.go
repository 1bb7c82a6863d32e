package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aravindh-murugesan/paperscout-go/internal/config"
	"github.com/aravindh-murugesan/paperscout-go/internal/workflow"
)

var (
	configFile, baseURL, logLevel string
	verbose                       bool
	requestTimeout                time.Duration
	dumpErrors, outputFormat      string
)

// application is assembled in PersistentPreRunE for every command that
// talks to the backend.
var application *workflow.App

var rootCommand = &cobra.Command{
	Use:     "paperscout",
	Aliases: []string{"paperscout-go"},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Allow 'version' (and 'help') to run without a backend
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// 2. Resolve flags, PAPERSCOUT_* env and the config file into one tree
		v, err := config.New(configFile)
		if err != nil {
			return err
		}
		bindFlags(cmd, v)

		cfg, err := config.Load(v)
		if err != nil {
			return err
		}

		// 3. Wire the remote-call layer
		opts := workflow.Options{Version: PaperscoutVersion, Console: cmd.ErrOrStderr()}
		if cmd.Annotations[headlessAnnotation] != "" {
			opts.Console = nil
			opts.Registerer = daemonRegistry
		}
		app, err := workflow.NewApp(cfg, opts)
		if err != nil {
			return err
		}
		slog.SetDefault(app.Logger)
		app.Reporter.Install()
		application = app
		return nil
	},
	Short:         "PaperScout: resilient client for the paper search backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `PaperScout talks to the paper search backend: it submits and tracks search
tasks, pages through the papers they find and mints signed URLs for stored PDFs.
Every call runs under a deadline, transient failures are retried, and every
failure that reaches the user is recorded in a bounded log that can be dumped
with --dump-errors.`,
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"base-url":         "base_url",
	"log-level":        "log_level",
	"verbose":          "verbose",
	"timeout":          "request_timeout",
	"prewarm-schedule": "daemon.prewarm_schedule",
	"sweep-schedule":   "daemon.sweep_schedule",
	"bind-address":     "daemon.bind_address",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// Execute runs the command tree. With --dump-errors the failure log is
// written to stdout afterwards, whether or not the command failed.
func Execute() error {
	err := rootCommand.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
	}
	if application != nil {
		application.Reporter.Uninstall()
		if dumpErrors != "" {
			out, dumpErr := application.Reporter.Export(dumpErrors)
			if dumpErr != nil {
				return dumpErr
			}
			_, _ = os.Stdout.Write(append(out, '\n'))
		}
	}
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCommand.AddGroup(&cobra.Group{ID: "search", Title: "Search"})
	rootCommand.AddGroup(&cobra.Group{ID: "storage", Title: "Storage"})
	rootCommand.AddGroup(&cobra.Group{ID: "service", Title: "Service"})

	// Global Persistent Flags; each one also reads PAPERSCOUT_<KEY>
	rootCommand.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file (default ./paperscout.yaml)")
	rootCommand.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8080/api", "Backend API base URL")
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")
	rootCommand.PersistentFlags().DurationVar(&requestTimeout, "timeout", 30*time.Second, "Deadline of a single request attempt")
	rootCommand.PersistentFlags().StringVar(&dumpErrors, "dump-errors", "", "Print the recorded failure log on exit (json, yaml)")
	rootCommand.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json, yaml)")
}
