package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SunilSharmaNP/fvt/worker/delivery"
	"github.com/SunilSharmaNP/fvt/worker/jobspec"
	"github.com/SunilSharmaNP/fvt/worker/progress"
)

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusAcquiring  Status = "acquiring"
	StatusProcessing Status = "processing"
	StatusDelivering Status = "delivering"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Event is one state or progress change pushed to subscribers. The
// terminal event is always the last one before the channel closes.
type Event struct {
	TaskID   string
	Status   Status
	Progress *progress.Snapshot
	Err      *TaskError
	Receipt  *delivery.Receipt
}

// Task is the engine's record of one job from admission to its
// terminal state.
type Task struct {
	job     *jobspec.Descriptor
	created time.Time

	mu         sync.Mutex
	status     Status
	err        *TaskError
	receipt    delivery.Receipt
	progress   progress.Snapshot
	started    time.Time
	finished   time.Time
	cancel     context.CancelFunc
	subs       []chan Event
	subsClosed bool

	cancelled atomic.Bool
	admitted  atomic.Bool
	cleanup   sync.Once
	workDir   string
}

func (t *Task) ID() string { return t.job.ID }

func (t *Task) setCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
}

func (t *Task) setProgress(snap progress.Snapshot) {
	t.mu.Lock()
	t.progress = snap
	t.mu.Unlock()
}

func (t *Task) setReceipt(r delivery.Receipt) {
	t.mu.Lock()
	t.receipt = r
	t.mu.Unlock()
}

func (t *Task) markStarted() {
	t.mu.Lock()
	t.started = time.Now()
	t.mu.Unlock()
}

// View is a point-in-time copy of a task's externally visible state.
type View struct {
	ID       string
	Tool     jobspec.Tool
	Status   Status
	Err      *TaskError
	Receipt  delivery.Receipt
	Progress progress.Snapshot
	Created  time.Time
	Started  time.Time
	Finished time.Time
}

func (t *Task) view() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return View{
		ID:       t.job.ID,
		Tool:     t.job.Tool,
		Status:   t.status,
		Err:      t.err,
		Receipt:  t.receipt,
		Progress: t.progress,
		Created:  t.created,
		Started:  t.started,
		Finished: t.finished,
	}
}

func caption(job *jobspec.Descriptor) string {
	if job.Tool == jobspec.ToolMerge {
		return fmt.Sprintf("Merged %d clips", len(job.Inputs))
	}
	return fmt.Sprintf("%s complete", job.Tool)
}
