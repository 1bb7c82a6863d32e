package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aravindh-murugesan/paperscout-go/internal/api"
)

var (
	taskOrderWord string
	taskOrderAsc  bool
	watchInterval time.Duration
)

var taskCommand = &cobra.Command{
	Use:     "task",
	Short:   "Inspect and control search tasks",
	GroupID: "search",
}

var taskListCommand = &cobra.Command{
	Use:   "list",
	Short: "List search tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := api.TaskQuery{PageIndex: pageIndex, PageSize: pageSize, OrderWord: taskOrderWord}
		if taskOrderWord != "" {
			order := api.OrderDesc
			if taskOrderAsc {
				order = api.OrderAsc
			}
			q.OrderID = &order
		}
		list, err := application.Client.ListTasks(commandContext(cmd), q)
		if err != nil {
			return err
		}
		return render(cmd, list, func(w io.Writer) {
			for _, t := range list.Tasks {
				fmt.Fprintf(w, "%s  %-10s %s  %s\n",
					labelStyle.Render(t.TaskName), t.Progress, mutedStyle.Render(t.Date), t.SearchTerm)
				if t.ErrorMessage != "" {
					fmt.Fprintf(w, "    %s\n", errorStyle.Render(t.ErrorMessage))
				}
			}
			fmt.Fprintf(w, "\n%d tasks\n", list.Total)
		})
	},
}

var taskStateCommand = &cobra.Command{
	Use:   "state <task id>",
	Short: "Show the live state of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		st, err := application.Client.TaskState(commandContext(cmd), id)
		if err != nil {
			return err
		}
		return render(cmd, st, func(w io.Writer) { printState(w, id, st) })
	},
}

var taskWatchCommand = &cobra.Command{
	Use:   "watch <task id>",
	Short: "Poll a task until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		st, err := application.Client.WatchTask(commandContext(cmd), id, watchInterval, func(st api.TaskStatus) {
			if outputFormat == "text" {
				printState(out, id, st)
			}
		})
		if err != nil {
			return err
		}
		if outputFormat != "text" {
			return render(cmd, st, nil)
		}
		return nil
	},
}

var taskKeywordsCommand = &cobra.Command{
	Use:   "keywords <task id>",
	Short: "Show the keywords a task searched with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		words, err := application.Client.TaskKeywords(commandContext(cmd), id)
		if err != nil {
			return err
		}
		return render(cmd, words, func(w io.Writer) {
			fmt.Fprintln(w, strings.Join(words, ", "))
		})
	},
}

// lifecycleCommand builds cancel, restart and delete, which share a shape.
func lifecycleCommand(use, short, done string, call func(*api.Client) func(context.Context, int64) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ok, err := call(application.Client)(commandContext(cmd), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("backend refused to %s task %d", use, id)
			}
			return render(cmd, map[string]any{"taskId": id, "ok": ok}, func(w io.Writer) {
				label(w, done, id)
			})
		},
	}
}

func printState(w io.Writer, id int64, st api.TaskStatus) {
	line := fmt.Sprintf("task %d: %s", id, st.State)
	if st.ErrorMessage != "" {
		line += " " + errorStyle.Render(st.ErrorMessage)
	}
	fmt.Fprintln(w, line)
}

func init() {
	rootCommand.AddCommand(taskCommand)
	taskCommand.AddCommand(
		taskListCommand,
		taskStateCommand,
		taskWatchCommand,
		taskKeywordsCommand,
		lifecycleCommand("cancel", "Stop a running task", "Task cancelled",
			func(c *api.Client) func(context.Context, int64) (bool, error) { return c.CancelTask }),
		lifecycleCommand("restart", "Re-queue a finished task", "Task restarted",
			func(c *api.Client) func(context.Context, int64) (bool, error) { return c.RestartTask }),
		lifecycleCommand("delete", "Remove a task", "Task deleted",
			func(c *api.Client) func(context.Context, int64) (bool, error) { return c.DeleteTask }),
	)

	addPageFlags(taskListCommand)
	taskListCommand.Flags().StringVar(&taskOrderWord, "order-by", "", "Sort key, e.g. search_time")
	taskListCommand.Flags().BoolVar(&taskOrderAsc, "asc", false, "Sort ascending")
	taskWatchCommand.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Polling interval")
}
