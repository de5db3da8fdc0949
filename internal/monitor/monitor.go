package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"product-enhancer/pkg/api"
)

const DefaultInterval = 2 * time.Second

type Fetcher interface {
	Fetch(ctx context.Context, id string) (*api.Task, error)
}

type Lister interface {
	ListAll(ctx context.Context) []api.Task
}

type Monitor struct {
	fetcher  Fetcher
	interval time.Duration
}

func New(fetcher Fetcher, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{fetcher: fetcher, interval: interval}
}

// Handle controls one polling loop.
type Handle struct {
	cancelled atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func newHandle() *Handle {
	return &Handle{stop: make(chan struct{}), done: make(chan struct{})}
}

// Cancel stops the loop. A fetch already in flight still delivers its result,
// but no further fetch is scheduled. Safe to call more than once.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// wait blocks for one interval and reports whether the loop should continue.
func (h *Handle) wait(ctx context.Context, interval time.Duration) bool {
	if h.cancelled.Load() || ctx.Err() != nil {
		return false
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !h.cancelled.Load()
	case <-h.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// Watch polls the task until it reaches a terminal status, the handle is
// cancelled or ctx is done. Fetch errors and unknown tasks do not stop polling.
// Snapshots whose status or progress would move backwards are dropped.
func (m *Monitor) Watch(ctx context.Context, id string, onUpdate func(api.Task)) *Handle {
	h := newHandle()

	go func() {
		defer close(h.done)

		var (
			last         api.TaskStatus
			lastProgress int
		)
		for {
			task, err := m.fetcher.Fetch(ctx, id)
			switch {
			case err != nil:
				slog.Warn("error polling task status", "task_id", id, "error", err)
			case task == nil:
				slog.Debug("task not found yet", "task_id", id)
			case task.Status.Rank() < last.Rank(),
				task.Status == last && task.Progress < lastProgress:
				slog.Debug("dropping stale task snapshot", "task_id", id, "status", task.Status, "progress", task.Progress, "last_status", last)
			default:
				last, lastProgress = task.Status, task.Progress
				onUpdate(*task)
				if task.Status.Terminal() {
					return
				}
			}

			if !h.wait(ctx, m.interval) {
				return
			}
		}
	}()

	return h
}

// WatchList refreshes the whole task collection until cancelled.
func WatchList(ctx context.Context, lister Lister, interval time.Duration, onList func([]api.Task)) *Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	h := newHandle()

	go func() {
		defer close(h.done)
		for {
			onList(lister.ListAll(ctx))
			if !h.wait(ctx, interval) {
				return
			}
		}
	}()

	return h
}
