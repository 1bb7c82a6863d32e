package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/aravindh-murugesan/paperscout-go/internal/api"
)

// sweepPageSize is how many tasks one sweep request fetches.
const sweepPageSize = 50

// RunCredentialPrewarm makes sure a storage credential bundle is cached and
// fresh, so the next signing request does not wait on issuance.
func RunCredentialPrewarm(ctx context.Context, app *App) error {
	logger := app.Logger.With("workflow", "credential-prewarm")

	b, err := app.Storage.Credentials().Bundle(ctx)
	if err != nil {
		logger.Error("Credential pre-warm failed", "error", err)
		return fmt.Errorf("pre-warm credentials: %w", err)
	}

	logger.Info("Storage credentials ready",
		"credentials", b,
		"valid_for", time.Until(b.ExpiresAt).Round(time.Second).String())
	return nil
}

// RunTaskSweep pages through every task, counts them per display status and
// publishes the counts as a gauge.
func RunTaskSweep(ctx context.Context, app *App) (map[string]int, error) {
	logger := app.Logger.With("workflow", "task-sweep")
	counts := map[string]int{
		api.StatusSearching: 0,
		api.StatusSuccess:   0,
		api.StatusFailed:    0,
		api.StatusCancelled: 0,
	}

	// 1. Walk the pages until the reported total is covered.
	seen := 0
	for page := 1; ; page++ {
		list, err := app.Client.ListTasks(ctx, api.TaskQuery{PageIndex: page, PageSize: sweepPageSize})
		if err != nil {
			logger.Error("Task sweep failed", "page", page, "error", err)
			return nil, fmt.Errorf("list tasks page %d: %w", page, err)
		}
		for _, t := range list.Tasks {
			counts[t.Status]++
		}
		seen += len(list.Tasks)
		if len(list.Tasks) == 0 || seen >= list.Total {
			break
		}
	}

	// 2. Publish.
	app.Metrics.SetTaskCounts(counts)
	logger.Info("Task sweep completed",
		"tasks", seen,
		"searching", counts[api.StatusSearching],
		"failed", counts[api.StatusFailed])
	return counts, nil
}
