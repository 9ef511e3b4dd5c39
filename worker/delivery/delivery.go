package delivery

import (
	"context"
	"errors"
	"time"
)

// ErrTooLarge reports an artifact over the backend's size cap. The
// caller is expected to fall back to a large-object backend instead of
// failing the task.
var ErrTooLarge = errors.New("artifact too large for backend")

// Artifact is a finished output ready to leave the worker.
type Artifact struct {
	ID       string
	Path     string
	Size     int64
	Tool     string
	Caption  string
	ChatID   int64
	Duration time.Duration
}

// Receipt records where a delivered artifact ended up.
type Receipt struct {
	Backend  string
	Location string
}

// Deliverer pushes a finished artifact to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, a Artifact) (Receipt, error)
}
