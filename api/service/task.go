package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/SunilSharmaNP/fvt/api/cache"
	"github.com/SunilSharmaNP/fvt/api/dto"
	"github.com/SunilSharmaNP/fvt/api/kafka"
	"github.com/SunilSharmaNP/fvt/api/models"
	"github.com/SunilSharmaNP/fvt/api/repository"
)

type TaskService struct {
	repo        repository.Repository
	cache       *cache.StatusCache
	producer    kafka.Producer
	topic       string
	maxQueueLen int
}

func NewTaskService(repo repository.Repository, cache *cache.StatusCache, producer kafka.Producer, topic string, maxQueueLen int) *TaskService {
	return &TaskService{
		repo:        repo,
		cache:       cache,
		producer:    producer,
		topic:       topic,
		maxQueueLen: maxQueueLen,
	}
}

func (s *TaskService) CreateTask(ctx context.Context, traceID string, req *dto.CreateTaskRequest) (*dto.TaskResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:          uuid.New().String(),
		TraceID:     traceID,
		RequesterID: req.RequesterID,
		ChatID:      req.ChatID,
		Tool:        req.Tool,
		Options:     req.Options,
		Status:      models.StatusQueued,
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	s.cache.SetStatus(ctx, task.ID, string(models.StatusQueued), "")

	msg := &kafka.JobMessage{
		Kind:        kafka.KindSubmit,
		RequesterID: req.RequesterID,
		Job: &kafka.JobPayload{
			ID:          task.ID,
			TraceID:     traceID,
			RequesterID: req.RequesterID,
			ChatID:      req.ChatID,
			Tool:        req.Tool,
			Inputs:      req.Inputs,
			Options:     req.Options,
		},
	}
	if err := s.producer.SendJobMessage(ctx, s.topic, msg); err != nil {
		return nil, err
	}

	return s.toResponse(task), nil
}

func (s *TaskService) GetTaskStatus(ctx context.Context, taskID string) (*dto.TaskResponse, error) {
	record, err := s.cache.GetStatus(ctx, taskID)
	if err == nil {
		resp := &dto.TaskResponse{
			ID:     taskID,
			Status: record.Status,
			Detail: record.Detail,
		}
		if !models.TaskStatus(record.Status).Terminal() {
			if prog, err := s.cache.GetProgress(ctx, taskID); err == nil {
				resp.Progress = prog
			}
		}
		return resp, nil
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, dto.ErrTaskNotFound
		}
		return nil, err
	}

	s.cache.SetStatus(ctx, task.ID, string(task.Status), task.ErrorMessage)

	return s.toResponse(task), nil
}

// CancelTask only checks that the task exists and fans the request out;
// the worker owning the task decides whether it is still cancellable.
func (s *TaskService) CancelTask(ctx context.Context, taskID string) error {
	if _, err := s.cache.GetStatus(ctx, taskID); err != nil {
		if _, err := s.repo.GetTask(ctx, taskID); err != nil {
			if errors.Is(err, repository.ErrTaskNotFound) {
				return dto.ErrTaskNotFound
			}
			return err
		}
	}
	return s.cache.PublishCancel(ctx, taskID)
}

// EnqueueInput publishes the queue edit and answers with a projection
// of the snapshot; the worker's queue stays authoritative on capacity.
func (s *TaskService) EnqueueInput(ctx context.Context, req *dto.EnqueueRequest) (*dto.QueueResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	refs, err := s.cache.GetQueue(ctx, req.RequesterID)
	if err != nil {
		refs = nil
	}
	if s.maxQueueLen > 0 && len(refs) >= s.maxQueueLen {
		return nil, dto.ErrQueueFull
	}

	msg := &kafka.JobMessage{
		Kind:        kafka.KindEnqueue,
		RequesterID: req.RequesterID,
		Ref:         req.Ref,
	}
	if err := s.producer.SendJobMessage(ctx, s.topic, msg); err != nil {
		return nil, err
	}

	return &dto.QueueResponse{
		RequesterID: req.RequesterID,
		Refs:        append(refs, req.Ref),
		Length:      len(refs) + 1,
	}, nil
}

func (s *TaskService) RemoveQueued(ctx context.Context, requesterID int64, index int) error {
	msg := &kafka.JobMessage{
		Kind:        kafka.KindQueueRemove,
		RequesterID: requesterID,
		Index:       index,
	}
	return s.producer.SendJobMessage(ctx, s.topic, msg)
}

func (s *TaskService) ClearQueue(ctx context.Context, requesterID int64) error {
	msg := &kafka.JobMessage{
		Kind:        kafka.KindQueueClear,
		RequesterID: requesterID,
	}
	return s.producer.SendJobMessage(ctx, s.topic, msg)
}

func (s *TaskService) GetQueue(ctx context.Context, requesterID int64) (*dto.QueueResponse, error) {
	refs, err := s.cache.GetQueue(ctx, requesterID)
	if err != nil {
		refs = []string{}
	}
	return &dto.QueueResponse{
		RequesterID: requesterID,
		Refs:        refs,
		Length:      len(refs),
	}, nil
}

func (s *TaskService) SetGateMode(ctx context.Context, mode string) error {
	return s.cache.SetMode(ctx, mode)
}

func (s *TaskService) SetHold(ctx context.Context, requesterID int64, held bool) error {
	return s.cache.SetHold(ctx, requesterID, held)
}

func (s *TaskService) toResponse(task *models.Task) *dto.TaskResponse {
	var completedAt *string
	if task.CompletedAt != nil {
		formatted := task.CompletedAt.Format("2006-01-02T15:04:05Z")
		completedAt = &formatted
	}

	return &dto.TaskResponse{
		ID:             task.ID,
		TraceID:        task.TraceID,
		Tool:           task.Tool,
		Status:         string(task.Status),
		Detail:         task.ErrorMessage,
		OutputLocation: task.OutputLocation,
		CreatedAt:      task.CreatedAt.Format("2006-01-02T15:04:05Z"),
		CompletedAt:    completedAt,
	}
}
