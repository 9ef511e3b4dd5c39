package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/api/dto"
	"github.com/SunilSharmaNP/fvt/api/middleware"
	"github.com/SunilSharmaNP/fvt/api/validation"
)

type TaskService interface {
	CreateTask(ctx context.Context, traceID string, req *dto.CreateTaskRequest) (*dto.TaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*dto.TaskResponse, error)
	CancelTask(ctx context.Context, taskID string) error
	EnqueueInput(ctx context.Context, req *dto.EnqueueRequest) (*dto.QueueResponse, error)
	RemoveQueued(ctx context.Context, requesterID int64, index int) error
	ClearQueue(ctx context.Context, requesterID int64) error
	GetQueue(ctx context.Context, requesterID int64) (*dto.QueueResponse, error)
	SetGateMode(ctx context.Context, mode string) error
	SetHold(ctx context.Context, requesterID int64, held bool) error
}

type TaskHandler struct {
	service   TaskService
	logger    *zap.Logger
	uploadDir string
	maxUpload int64
}

func NewTaskHandler(service TaskService, logger *zap.Logger, uploadDir string, maxUpload int64) *TaskHandler {
	return &TaskHandler{
		service:   service,
		logger:    logger,
		uploadDir: uploadDir,
		maxUpload: maxUpload,
	}
}

func (h *TaskHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/tasks", h.Tasks)
	mux.HandleFunc("/tasks/", h.TaskByID)
	mux.HandleFunc("/status/", h.Status)
	mux.HandleFunc("/queue", h.Queue)
	mux.HandleFunc("/upload", h.Upload)
	mux.HandleFunc("/admin/gate", h.Gate)
	mux.HandleFunc("/admin/hold", h.Hold)
}

func (h *TaskHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	var req dto.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreateTask(r.Context(), traceID, &req)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			h.handleError(w, "Invalid task request", err, traceID, http.StatusBadRequest)
			return
		}
		h.handleError(w, "Failed to create task", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Task submitted",
		zap.String("trace_id", traceID),
		zap.String("task_id", resp.ID),
		zap.String("tool", resp.Tool),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *TaskHandler) TaskByID(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodDelete {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	if err := h.service.CancelTask(r.Context(), taskID); err != nil {
		if errors.Is(err, dto.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to cancel task", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Cancellation requested",
		zap.String("trace_id", traceID),
		zap.String("task_id", taskID),
	)

	h.respondJSON(w, http.StatusAccepted, map[string]string{"id": taskID, "status": "cancelling"})
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodGet {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/status/")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, dto.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) Queue(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	switch r.Method {
	case http.MethodGet:
		requesterID, err := parseRequesterID(r)
		if err != nil {
			h.handleError(w, "requester_id is required", err, traceID, http.StatusBadRequest)
			return
		}
		resp, err := h.service.GetQueue(r.Context(), requesterID)
		if err != nil {
			h.handleError(w, "Failed to read queue", err, traceID, http.StatusInternalServerError)
			return
		}
		h.respondJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		var req dto.EnqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
			return
		}
		resp, err := h.service.EnqueueInput(r.Context(), &req)
		if err != nil {
			if errors.Is(err, dto.ErrQueueFull) {
				h.handleError(w, "Queue is full", err, traceID, http.StatusConflict)
				return
			}
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				h.handleError(w, "Invalid enqueue request", err, traceID, http.StatusBadRequest)
				return
			}
			h.handleError(w, "Failed to enqueue input", err, traceID, http.StatusInternalServerError)
			return
		}
		h.respondJSON(w, http.StatusAccepted, resp)

	case http.MethodDelete:
		requesterID, err := parseRequesterID(r)
		if err != nil {
			h.handleError(w, "requester_id is required", err, traceID, http.StatusBadRequest)
			return
		}
		if rawIndex := r.URL.Query().Get("index"); rawIndex != "" {
			index, err := strconv.Atoi(rawIndex)
			if err != nil {
				h.handleError(w, "Invalid index", err, traceID, http.StatusBadRequest)
				return
			}
			if err := h.service.RemoveQueued(r.Context(), requesterID, index); err != nil {
				h.handleError(w, "Failed to remove queued input", err, traceID, http.StatusInternalServerError)
				return
			}
		} else {
			if err := h.service.ClearQueue(r.Context(), requesterID); err != nil {
				h.handleError(w, "Failed to clear queue", err, traceID, http.StatusInternalServerError)
				return
			}
		}
		h.respondJSON(w, http.StatusAccepted, map[string]int64{"requester_id": requesterID})

	default:
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
	}
}

func (h *TaskHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, "Failed to get file", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := h.validateFile(header, file); err != nil {
		h.handleError(w, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}

	filename := uuid.New().String()[:8] + "_" + sanitizeFilename(header.Filename)
	filePath := filepath.Join(h.uploadDir, filename)

	dst, err := os.Create(filePath)
	if err != nil {
		h.handleError(w, "Failed to save file", err, traceID, http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		h.handleError(w, "Failed to write file", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("ref", filePath),
		zap.Int64("size", written),
	)

	h.respondJSON(w, http.StatusCreated, dto.UploadResponse{Ref: filePath, Size: written})
}

func (h *TaskHandler) Gate(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	var req dto.GateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		h.handleError(w, "Invalid gate mode", err, traceID, http.StatusBadRequest)
		return
	}

	if err := h.service.SetGateMode(r.Context(), req.Mode); err != nil {
		h.handleError(w, "Failed to set gate mode", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Gate mode changed",
		zap.String("trace_id", traceID),
		zap.String("mode", req.Mode),
	)

	h.respondJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}

func (h *TaskHandler) Hold(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodPost {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	var req dto.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		h.handleError(w, "Invalid hold request", err, traceID, http.StatusBadRequest)
		return
	}

	if err := h.service.SetHold(r.Context(), req.RequesterID, req.Held); err != nil {
		h.handleError(w, "Failed to update hold", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"requester_id": req.RequesterID,
		"held":         req.Held,
	})
}

func (h *TaskHandler) validateFile(header *multipart.FileHeader, file multipart.File) error {
	if header.Size > h.maxUpload {
		return validation.ErrFileTooLarge
	}

	fileType, err := validation.DetectFileType(file)
	if err != nil {
		return err
	}
	if !validation.IsAllowedVideoType(fileType) && !validation.IsAllowedImageType(fileType) {
		return validation.ErrUnsupportedFormat
	}

	return nil
}

func parseRequesterID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("requester_id")
	if raw == "" {
		return 0, errors.New("missing requester_id")
	}
	return strconv.ParseInt(raw, 10, 64)
}

func sanitizeFilename(filename string) string {
	return filepath.Base(filename)
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
