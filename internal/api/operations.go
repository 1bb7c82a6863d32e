package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/aravindh-murugesan/paperscout-go/internal/credentials"
	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

// Reads are retried; calls that change backend state are not, so a lost
// reply never submits or deletes twice.
const (
	retryReads  = true
	singleShot  = false
	defaultSize = 10
)

func pageQuery(page, size int) url.Values {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultSize
	}
	return url.Values{
		"pageIndex": {strconv.Itoa(page)},
		"pageSize":  {strconv.Itoa(size)},
	}
}

func idQuery(id int64) url.Values {
	return url.Values{"id": {strconv.FormatInt(id, 10)}}
}

// RecentSearches returns one page of the search history.
func (c *Client) RecentSearches(ctx context.Context, page, size int) (Page[RecentSearch], error) {
	return Do[Page[RecentSearch]](ctx, c, "/task/recent", RequestOptions{Query: pageQuery(page, size)}, retryReads)
}

// SearchPapers returns one page of papers found by a task. A nil order uses
// DefaultPaperOrder.
func (c *Client) SearchPapers(ctx context.Context, taskID int64, page, size int, order []OrderInfo) (*SearchResult, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultSize
	}
	if order == nil {
		order = DefaultPaperOrder()
	}
	raw, err := Do[Page[rawPaper]](ctx, c, "/paper/get", RequestOptions{
		Method: http.MethodPost,
		Body:   paperQuery{TaskID: taskID, PageIndex: page, PageSize: size, OrderInfo: order},
	}, retryReads)
	if err != nil {
		return nil, err
	}

	papers := make([]Paper, 0, len(raw.List))
	for _, p := range raw.List {
		papers = append(papers, convertPaper(p))
	}
	return &SearchResult{
		Papers:       papers,
		TotalPages:   raw.Pages,
		CurrentPage:  raw.PageNumber,
		PageSize:     raw.PageSize,
		TotalResults: raw.Total,
	}, nil
}

// ExtractKeywords asks the backend for n keywords describing word.
func (c *Client) ExtractKeywords(ctx context.Context, word string, n int) ([]string, error) {
	if n < 1 {
		n = 3
	}
	return Do[[]string](ctx, c, "/ai/keywords", RequestOptions{
		Query: url.Values{"searchWord": {word}, "wordNumber": {strconv.Itoa(n)}},
	}, retryReads)
}

// SubmitSearch creates a search task and returns its id.
func (c *Client) SubmitSearch(ctx context.Context, req SearchRequest) (int64, error) {
	if req.Keywords == nil {
		req.Keywords = []string{}
	}
	if req.Tags.SourceTag == "" {
		req.Tags.SourceTag = "ALL"
	}
	return Do[int64](ctx, c, "/task/submit", RequestOptions{Method: http.MethodPost, Body: req}, singleShot)
}

// ListTasks returns one page of search tasks.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) (*TaskList, error) {
	if q.PageIndex < 1 {
		q.PageIndex = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultSize
	}
	raw, err := Do[Page[rawTask]](ctx, c, "/task/tasks", RequestOptions{Method: http.MethodPost, Body: q}, retryReads)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(raw.List))
	for _, t := range raw.List {
		tasks = append(tasks, convertTask(t))
	}
	return &TaskList{Tasks: tasks, Total: raw.Total, Page: raw.PageNumber, PageSize: raw.PageSize}, nil
}

// TaskState returns the live state of a task.
func (c *Client) TaskState(ctx context.Context, id int64) (TaskStatus, error) {
	return Do[TaskStatus](ctx, c, "/task/state", RequestOptions{Query: idQuery(id)}, retryReads)
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) (bool, error) {
	return Do[bool](ctx, c, "/task/delete", RequestOptions{Method: http.MethodDelete, Query: idQuery(id)}, singleShot)
}

// CancelTask stops a running task.
func (c *Client) CancelTask(ctx context.Context, id int64) (bool, error) {
	return Do[bool](ctx, c, "/task/cancel", RequestOptions{Query: idQuery(id)}, singleShot)
}

// RestartTask re-queues a finished task.
func (c *Client) RestartTask(ctx context.Context, id int64) (bool, error) {
	return Do[bool](ctx, c, "/task/restart", RequestOptions{Query: idQuery(id)}, singleShot)
}

// TaskKeywords returns the keywords a task searched with.
func (c *Client) TaskKeywords(ctx context.Context, id int64) ([]string, error) {
	return Do[[]string](ctx, c, "/task/keywords", RequestOptions{Query: idQuery(id)}, retryReads)
}

// IssueCredentials obtains a temporary storage credential bundle. It
// satisfies credentials.Issuer; validation is left to the cache.
func (c *Client) IssueCredentials(ctx context.Context) (credentials.Bundle, error) {
	return Do[credentials.Bundle](ctx, c, "/oss/get", RequestOptions{
		FailureMessage: credentials.FallbackIssueMessage,
	}, retryReads)
}

// WatchTask polls TaskState every interval until the task reaches a terminal
// state or ctx ends. onChange, when set, sees every state transition.
// Retryable failures between polls are logged and polled through.
func (c *Client) WatchTask(ctx context.Context, id int64, interval time.Duration, onChange func(TaskStatus)) (TaskStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	var last TaskStatus
	err := wait.PollUntilContextCancel(ctx, interval, true, func(ctx context.Context) (bool, error) {
		st, err := c.TaskState(ctx, id)
		if err != nil {
			if transport.IsRetryable(err) && ctx.Err() == nil {
				c.logger.Warn("Task state poll failed, will poll again", "task_id", id, "error", err)
				return false, nil
			}
			return false, err
		}
		if st != last {
			c.logger.Info("Task state changed", "task_id", id, "from", last.State, "to", st.State)
			last = st
			if onChange != nil {
				onChange(st)
			}
		}
		return st.Terminal(), nil
	})
	return last, err
}
