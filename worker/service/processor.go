package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/worker/engine"
	"github.com/SunilSharmaNP/fvt/worker/jobspec"
	"github.com/SunilSharmaNP/fvt/worker/kafka"
)

// TaskEngine is the slice of the engine the dispatcher drives.
type TaskEngine interface {
	Submit(ctx context.Context, job *jobspec.Descriptor) (*engine.Task, error)
	Enqueue(requesterID int64, ref jobspec.InputRef) (int, error)
	QueueRemove(requesterID int64, index int) error
	QueueClear(requesterID int64) int
}

type Archiver interface {
	SaveTerminal(ctx context.Context, rec engine.TerminalRecord) error
}

type TerminalSink interface {
	SetTerminal(ctx context.Context, id string, status string, detail string) error
}

// Processor routes decoded job messages into the engine. Submissions
// the engine rejects never enter its task map, so their terminal
// bookkeeping happens here instead.
type Processor struct {
	engine TaskEngine
	repo   Archiver
	cache  TerminalSink
	logger *zap.Logger
}

func NewProcessor(eng TaskEngine, repo Archiver, cache TerminalSink, logger *zap.Logger) *Processor {
	return &Processor{
		engine: eng,
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg *kafka.JobMessage) error {
	switch msg.Kind {
	case kafka.KindSubmit:
		return p.submit(ctx, msg)
	case kafka.KindEnqueue:
		pos, err := p.engine.Enqueue(msg.RequesterID, jobspec.InputRef(msg.Ref))
		if err != nil {
			p.logger.Warn("Failed to enqueue input",
				zap.Int64("requester_id", msg.RequesterID),
				zap.Error(err))
			return nil
		}
		p.logger.Info("Input enqueued",
			zap.Int64("requester_id", msg.RequesterID),
			zap.Int("position", pos))
		return nil
	case kafka.KindQueueRemove:
		if err := p.engine.QueueRemove(msg.RequesterID, msg.Index); err != nil {
			p.logger.Warn("Failed to remove queued input",
				zap.Int64("requester_id", msg.RequesterID),
				zap.Int("index", msg.Index),
				zap.Error(err))
		}
		return nil
	case kafka.KindQueueClear:
		n := p.engine.QueueClear(msg.RequesterID)
		p.logger.Info("Queue cleared",
			zap.Int64("requester_id", msg.RequesterID),
			zap.Int("removed", n))
		return nil
	default:
		p.logger.Warn("Unknown message kind, skipping", zap.String("kind", msg.Kind))
		return nil
	}
}

func (p *Processor) submit(ctx context.Context, msg *kafka.JobMessage) error {
	if msg.Job == nil {
		p.logger.Warn("Submit message without a job payload")
		return nil
	}

	_, err := p.engine.Submit(ctx, msg.Job)
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrShuttingDown) {
		return err
	}

	p.recordRejection(ctx, msg.Job, err)
	return nil
}

func (p *Processor) recordRejection(ctx context.Context, job *jobspec.Descriptor, cause error) {
	detail := cause.Error()
	var terr *engine.TaskError
	if errors.As(cause, &terr) {
		detail = terr.Error()
	}

	p.logger.Info("Task rejected",
		zap.String("task_id", job.ID),
		zap.String("tool", string(job.Tool)),
		zap.String("detail", detail))

	if p.cache != nil {
		if err := p.cache.SetTerminal(ctx, job.ID, string(engine.StatusFailed), detail); err != nil {
			p.logger.Warn("Failed to mirror rejection",
				zap.String("task_id", job.ID),
				zap.Error(err))
		}
	}
	if p.repo != nil {
		rec := engine.TerminalRecord{
			ID:        job.ID,
			Requester: job.RequesterID,
			Tool:      string(job.Tool),
			Status:    engine.StatusFailed,
			Detail:    detail,
			Finished:  time.Now(),
		}
		if err := p.repo.SaveTerminal(ctx, rec); err != nil {
			p.logger.Warn("Failed to archive rejection",
				zap.String("task_id", job.ID),
				zap.Error(err))
		}
	}
}
