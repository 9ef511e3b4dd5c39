package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/worker/delivery"
	"github.com/SunilSharmaNP/fvt/worker/jobspec"
	"github.com/SunilSharmaNP/fvt/worker/progress"
	"github.com/SunilSharmaNP/fvt/worker/queue"
)

const sinkTimeout = 5 * time.Second

// Gate decides whether a requester may submit at all. Gate failures
// are treated as allow; the gate is advisory infrastructure, not a
// task dependency.
type Gate interface {
	Allowed(ctx context.Context, requesterID int64) (bool, error)
}

// Acquirer materializes one input reference into a local file.
type Acquirer interface {
	Fetch(ctx context.Context, ref jobspec.InputRef, destDir string) (string, error)
}

// Transcoder turns fetched inputs into the finished artifact,
// reporting progress as it goes.
type Transcoder interface {
	Run(ctx context.Context, job *jobspec.Descriptor, inputs []string, workDir string, emit func(progress.Snapshot)) (string, error)
}

// StatusSink receives best-effort state mirrors for external readers.
type StatusSink interface {
	SetStatus(ctx context.Context, id string, status string) error
	SetProgress(ctx context.Context, id string, snap progress.Snapshot) error
	SetTerminal(ctx context.Context, id string, status string, detail string) error
	SetQueue(ctx context.Context, requesterID int64, refs []string) error
}

// TerminalRecord is what gets archived when a task reaches a terminal
// state.
type TerminalRecord struct {
	ID        string
	Requester int64
	Tool      string
	Status    Status
	Detail    string
	Location  string
	Finished  time.Time
}

// Archiver persists terminal task records. Failures are logged, never
// surfaced to the task.
type Archiver interface {
	SaveTerminal(ctx context.Context, rec TerminalRecord) error
}

type Config struct {
	MaxConcurrent    int
	MaxPerRequester  int
	MaxQueueLen      int
	AcquireTimeout   time.Duration
	ProcessTimeout   time.Duration
	ProgressInterval time.Duration
	FailedRetention  time.Duration
	WorkDir          string
}

func (c *Config) fillDefaults() {
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 4
	}
	if c.MaxPerRequester < 1 {
		c.MaxPerRequester = 1
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 20 * time.Minute
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = time.Hour
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = 10 * time.Minute
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "fvt")
	}
}

type Deps struct {
	Gate       Gate
	Acquirer   Acquirer
	Transcoder Transcoder
	Primary    delivery.Deliverer
	Fallback   delivery.Deliverer
	Archiver   Archiver
	Sink       StatusSink
}

// Engine runs validated jobs through acquisition, transcode and
// delivery under the configured concurrency budgets.
type Engine struct {
	cfg        Config
	gate       Gate
	acquirer   Acquirer
	transcoder Transcoder
	primary    delivery.Deliverer
	fallback   delivery.Deliverer
	archiver   Archiver
	sink       StatusSink
	queues     *queue.Queue
	admission  *admission
	logger     *zap.Logger

	mu       sync.Mutex
	tasks    map[string]*Task
	draining bool
	wg       sync.WaitGroup
}

func New(cfg Config, deps Deps, logger *zap.Logger) *Engine {
	cfg.fillDefaults()
	return &Engine{
		cfg:        cfg,
		gate:       deps.Gate,
		acquirer:   deps.Acquirer,
		transcoder: deps.Transcoder,
		primary:    deps.Primary,
		fallback:   deps.Fallback,
		archiver:   deps.Archiver,
		sink:       deps.Sink,
		queues:     queue.New(cfg.MaxQueueLen),
		admission:  newAdmission(cfg.MaxConcurrent, cfg.MaxPerRequester),
		tasks:      make(map[string]*Task),
		logger:     logger,
	}
}

// Submit validates and admits a job. The returned task is already
// running; rejection errors are *TaskError with ReasonRejected.
func (e *Engine) Submit(ctx context.Context, job *jobspec.Descriptor) (*Task, error) {
	e.mu.Lock()
	draining := e.draining
	e.mu.Unlock()
	if draining {
		return nil, ErrShuttingDown
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	if e.gate != nil {
		allowed, err := e.gate.Allowed(ctx, job.RequesterID)
		if err != nil {
			e.logger.Warn("Gate check failed, allowing task",
				zap.String("task_id", job.ID),
				zap.Error(err))
		} else if !allowed {
			return nil, newTaskError(ReasonRejected, ErrBotHeld)
		}
	}

	// A merge without explicit inputs consumes the requester's queue,
	// in insertion order. An underfilled queue survives the rejection.
	if job.Tool == jobspec.ToolMerge && len(job.Inputs) == 0 {
		refs := e.queues.DequeueAll(job.RequesterID)
		if len(refs) < 2 {
			for _, ref := range refs {
				e.queues.Enqueue(job.RequesterID, ref)
			}
			return nil, newTaskError(ReasonRejected,
				fmt.Errorf("merge needs at least 2 queued inputs, have %d", len(refs)))
		}
		job.Inputs = refs
		e.mirrorQueue(job.RequesterID)
	}

	if err := job.Validate(); err != nil {
		return nil, newTaskError(ReasonRejected, err)
	}

	t := &Task{job: job, status: StatusQueued, created: time.Now()}

	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, exists := e.tasks[job.ID]; exists {
		e.mu.Unlock()
		return nil, newTaskError(ReasonRejected, fmt.Errorf("task %s already exists", job.ID))
	}
	e.tasks[job.ID] = t
	e.wg.Add(1)
	e.mu.Unlock()

	tk := e.admission.reserve(job.RequesterID)
	e.sinkStatus(job.ID, StatusQueued)
	e.logger.Info("Task accepted",
		zap.String("task_id", job.ID),
		zap.String("tool", string(job.Tool)),
		zap.Int64("requester_id", job.RequesterID),
		zap.Int("inputs", len(job.Inputs)))

	go e.runTask(t, tk)
	return t, nil
}

func (e *Engine) runTask(t *Task, tk *ticket) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Task panicked",
				zap.String("task_id", t.job.ID),
				zap.Any("panic", r))
			e.finish(t, StatusFailed, newTaskError(ReasonInternal, fmt.Errorf("panic: %v", r)))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t.setCancel(cancel)
	if t.cancelled.Load() {
		cancel()
	}

	if err := tk.wait(ctx); err != nil {
		if t.cancelled.Load() {
			e.finish(t, StatusCancelled, newTaskError(ReasonCancelled, nil))
		} else {
			e.finish(t, StatusFailed, newTaskError(ReasonInternal, err))
		}
		return
	}
	t.admitted.Store(true)
	t.markStarted()

	workDir := filepath.Join(e.cfg.WorkDir, t.job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		e.finish(t, StatusFailed, newTaskError(ReasonInternal, err))
		return
	}
	t.workDir = workDir

	e.transition(t, StatusAcquiring)
	acqCtx, acqCancel := context.WithTimeout(ctx, e.cfg.AcquireTimeout)
	inputs, err := e.fetchAll(acqCtx, t, workDir)
	acqCancel()
	if err != nil {
		st, terr := e.classifyFailure(t, acqCtx, ReasonAcquisition, err)
		e.finish(t, st, terr)
		return
	}

	e.transition(t, StatusProcessing)
	limiter := &progressLimiter{interval: e.cfg.ProgressInterval}
	procCtx, procCancel := context.WithTimeout(ctx, e.cfg.ProcessTimeout)
	outPath, err := e.transcoder.Run(procCtx, t.job, inputs, workDir, func(snap progress.Snapshot) {
		t.setProgress(snap)
		if limiter.allow(time.Now()) {
			e.pushProgress(t, snap)
		}
	})
	procCancel()
	if err != nil {
		st, terr := e.classifyFailure(t, procCtx, ReasonTranscode, err)
		e.finish(t, st, terr)
		return
	}

	info, err := os.Stat(outPath)
	if err != nil {
		e.finish(t, StatusFailed, newTaskError(ReasonTranscode, err))
		return
	}

	t.mu.Lock()
	total := t.progress.Total
	t.mu.Unlock()

	e.transition(t, StatusDelivering)
	receipt, err := e.deliver(ctx, delivery.Artifact{
		ID:       t.job.ID,
		Path:     outPath,
		Size:     info.Size(),
		Tool:     string(t.job.Tool),
		Caption:  caption(t.job),
		ChatID:   t.job.ChatID,
		Duration: total,
	})
	if err != nil {
		st, terr := e.classifyFailure(t, nil, ReasonDelivery, err)
		e.finish(t, st, terr)
		return
	}
	t.setReceipt(receipt)
	e.finish(t, StatusCompleted, nil)
}

func (e *Engine) fetchAll(ctx context.Context, t *Task, workDir string) ([]string, error) {
	inputs := make([]string, 0, len(t.job.Inputs))
	for _, ref := range t.job.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := e.acquirer.Fetch(ctx, ref, workDir)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, p)
	}
	return inputs, nil
}

// classifyFailure maps an operation error to the terminal state,
// preferring user cancellation over timeouts over the operation's own
// failure class.
func (e *Engine) classifyFailure(t *Task, opCtx context.Context, reason Reason, err error) (Status, *TaskError) {
	if t.cancelled.Load() {
		return StatusCancelled, newTaskError(ReasonCancelled, nil)
	}
	if opCtx != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return StatusFailed, newTaskError(ReasonTimeout, err)
	}
	return StatusFailed, newTaskError(reason, err)
}

func (e *Engine) deliver(ctx context.Context, a delivery.Artifact) (delivery.Receipt, error) {
	receipt, err := e.primary.Deliver(ctx, a)
	if err == nil {
		return receipt, nil
	}
	if e.fallback != nil && errors.Is(err, delivery.ErrTooLarge) {
		e.logger.Info("Artifact over cap, using large-object store",
			zap.String("task_id", a.ID),
			zap.Int64("size_bytes", a.Size))
		return e.fallback.Deliver(ctx, a)
	}
	return delivery.Receipt{}, err
}

// finish runs the terminal transition exactly once: slot release,
// workspace cleanup, mirrors, archive, subscriber close.
func (e *Engine) finish(t *Task, status Status, terr *TaskError) {
	t.cleanup.Do(func() {
		t.mu.Lock()
		t.status = status
		t.err = terr
		t.finished = time.Now()
		t.subsClosed = true
		subs := t.subs
		t.subs = nil
		receipt := t.receipt
		t.mu.Unlock()

		if t.admitted.Load() {
			e.admission.release(t.job.RequesterID)
		}
		e.removeWorkDir(t, status)

		detail := ""
		if terr != nil {
			detail = terr.Error()
		} else if receipt.Location != "" {
			detail = receipt.Location
		}
		e.sinkTerminal(t.job.ID, status, detail)
		e.archive(t, status, detail, receipt)

		ev := Event{TaskID: t.job.ID, Status: status, Err: terr}
		if status == StatusCompleted {
			ev.Receipt = &receipt
		}
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
			}
			close(ch)
		}

		e.logger.Info("Task finished",
			zap.String("task_id", t.job.ID),
			zap.String("status", string(status)),
			zap.String("detail", detail))
		e.evictLater(t)
	})
}

func (e *Engine) removeWorkDir(t *Task, status Status) {
	if t.workDir == "" {
		return
	}
	dir := t.workDir
	if status == StatusFailed {
		// Keep failed workspaces around briefly for inspection.
		time.AfterFunc(e.cfg.FailedRetention, func() { os.RemoveAll(dir) })
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("Failed to remove work dir",
			zap.String("dir", dir),
			zap.Error(err))
	}
}

func (e *Engine) archive(t *Task, status Status, detail string, receipt delivery.Receipt) {
	if e.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	err := e.archiver.SaveTerminal(ctx, TerminalRecord{
		ID:        t.job.ID,
		Requester: t.job.RequesterID,
		Tool:      string(t.job.Tool),
		Status:    status,
		Detail:    detail,
		Location:  receipt.Location,
		Finished:  time.Now(),
	})
	if err != nil {
		e.logger.Warn("Failed to archive task",
			zap.String("task_id", t.job.ID),
			zap.Error(err))
	}
}

func (e *Engine) evictLater(t *Task) {
	time.AfterFunc(e.cfg.FailedRetention, func() {
		e.mu.Lock()
		delete(e.tasks, t.job.ID)
		e.mu.Unlock()
	})
}

func (e *Engine) transition(t *Task, status Status) {
	t.mu.Lock()
	t.status = status
	subs := append([]chan Event(nil), t.subs...)
	t.mu.Unlock()

	e.sinkStatus(t.job.ID, status)
	ev := Event{TaskID: t.job.ID, Status: status}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
	e.logger.Info("Task state changed",
		zap.String("task_id", t.job.ID),
		zap.String("status", string(status)))
}

func (e *Engine) pushProgress(t *Task, snap progress.Snapshot) {
	if e.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := e.sink.SetProgress(ctx, t.job.ID, snap); err != nil {
			e.logger.Warn("Failed to mirror progress",
				zap.String("task_id", t.job.ID),
				zap.Error(err))
		}
		cancel()
	}

	t.mu.Lock()
	subs := append([]chan Event(nil), t.subs...)
	t.mu.Unlock()
	ev := Event{TaskID: t.job.ID, Status: StatusProcessing, Progress: &snap}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) sinkStatus(id string, status Status) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := e.sink.SetStatus(ctx, id, string(status)); err != nil {
		e.logger.Warn("Failed to mirror status",
			zap.String("task_id", id),
			zap.Error(err))
	}
}

func (e *Engine) sinkTerminal(id string, status Status, detail string) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := e.sink.SetTerminal(ctx, id, string(status), detail); err != nil {
		e.logger.Warn("Failed to mirror terminal status",
			zap.String("task_id", id),
			zap.Error(err))
	}
}

func (e *Engine) mirrorQueue(requesterID int64) {
	if e.sink == nil {
		return
	}
	entries := e.queues.Snapshot(requesterID)
	refs := make([]string, len(entries))
	for i, en := range entries {
		refs[i] = string(en.Ref)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := e.sink.SetQueue(ctx, requesterID, refs); err != nil {
		e.logger.Warn("Failed to mirror queue",
			zap.Int64("requester_id", requesterID),
			zap.Error(err))
	}
}

// Cancel requests termination of a running task. Cancelling a task
// already in a terminal state is a no-op.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}

	t.mu.Lock()
	terminal := t.status.Terminal()
	cancel := t.cancel
	t.mu.Unlock()
	if terminal {
		return nil
	}

	t.cancelled.Store(true)
	if cancel != nil {
		cancel()
	}
	e.logger.Info("Task cancellation requested", zap.String("task_id", id))
	return nil
}

// Subscribe returns a channel of task events. The terminal event is
// delivered last and the channel is closed after it; subscribing to an
// already finished task yields the terminal event immediately.
func (e *Engine) Subscribe(id string) (<-chan Event, error) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return nil, ErrTaskNotFound
	}

	ch := make(chan Event, 16)
	t.mu.Lock()
	if t.subsClosed {
		status, terr := t.status, t.err
		var rec *delivery.Receipt
		if status == StatusCompleted {
			r := t.receipt
			rec = &r
		}
		t.mu.Unlock()
		ch <- Event{TaskID: id, Status: status, Err: terr, Receipt: rec}
		close(ch)
		return ch, nil
	}
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch, nil
}

// View returns the current state of a task still held in memory.
func (e *Engine) View(id string) (View, error) {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return View{}, ErrTaskNotFound
	}
	return t.view(), nil
}

// Enqueue adds an input to the requester's pending queue and returns
// its position.
func (e *Engine) Enqueue(requesterID int64, ref jobspec.InputRef) (int, error) {
	pos, err := e.queues.Enqueue(requesterID, ref)
	if err != nil {
		return 0, err
	}
	e.mirrorQueue(requesterID)
	e.logger.Info("Input queued",
		zap.Int64("requester_id", requesterID),
		zap.Int("position", pos))
	return pos, nil
}

func (e *Engine) QueueRemove(requesterID int64, index int) error {
	if err := e.queues.Remove(requesterID, index); err != nil {
		return err
	}
	e.mirrorQueue(requesterID)
	return nil
}

func (e *Engine) QueueClear(requesterID int64) int {
	n := e.queues.Clear(requesterID)
	e.mirrorQueue(requesterID)
	return n
}

func (e *Engine) QueueSnapshot(requesterID int64) []queue.Entry {
	return e.queues.Snapshot(requesterID)
}

// Stats reports the admission controller's occupancy.
func (e *Engine) Stats() (active, waiting int) {
	return e.admission.stats()
}

// Shutdown stops accepting work and waits for running tasks. When ctx
// expires first, remaining tasks are cancelled and awaited.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.draining = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	e.logger.Warn("Drain deadline passed, cancelling active tasks")
	e.mu.Lock()
	for _, t := range e.tasks {
		t.cancelled.Store(true)
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	e.mu.Unlock()

	<-done
	return ctx.Err()
}

// progressLimiter throttles pushes to at most one per interval. Only
// the transcode goroutine calls it.
type progressLimiter struct {
	interval time.Duration
	last     time.Time
}

func (l *progressLimiter) allow(now time.Time) bool {
	if l.interval <= 0 {
		return true
	}
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return false
	}
	l.last = now
	return true
}
