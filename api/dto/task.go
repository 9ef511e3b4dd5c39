package dto

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrQueueFull    = errors.New("input queue is full")
)

var validate = validator.New()

// CreateTaskRequest is the submission envelope. Option contents are
// passed through opaquely; the worker owns deep validation.
type CreateTaskRequest struct {
	RequesterID int64           `json:"requester_id" validate:"required"`
	ChatID      int64           `json:"chat_id"`
	Tool        string          `json:"tool" validate:"required,oneof=merge encode trim watermark sample extract rotate flip speed volume crop gif reverse"`
	Inputs      []string        `json:"inputs" validate:"dive,required"`
	Options     json.RawMessage `json:"options,omitempty"`
}

func (r *CreateTaskRequest) Validate() error {
	return validate.Struct(r)
}

type EnqueueRequest struct {
	RequesterID int64  `json:"requester_id" validate:"required"`
	Ref         string `json:"ref" validate:"required"`
}

func (r *EnqueueRequest) Validate() error {
	return validate.Struct(r)
}

type GateRequest struct {
	Mode string `json:"mode" validate:"required,oneof=active held"`
}

func (r *GateRequest) Validate() error {
	return validate.Struct(r)
}

type HoldRequest struct {
	RequesterID int64 `json:"requester_id" validate:"required"`
	Held        bool  `json:"held"`
}

func (r *HoldRequest) Validate() error {
	return validate.Struct(r)
}

type TaskResponse struct {
	ID             string          `json:"id"`
	TraceID        string          `json:"trace_id,omitempty"`
	Tool           string          `json:"tool,omitempty"`
	Status         string          `json:"status"`
	Detail         string          `json:"detail,omitempty"`
	Progress       json.RawMessage `json:"progress,omitempty"`
	OutputLocation string          `json:"output_location,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	CompletedAt    *string         `json:"completed_at,omitempty"`
}

type QueueResponse struct {
	RequesterID int64    `json:"requester_id"`
	Refs        []string `json:"refs"`
	Length      int      `json:"length"`
}

type UploadResponse struct {
	Ref  string `json:"ref"`
	Size int64  `json:"size"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
