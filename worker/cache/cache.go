package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SunilSharmaNP/fvt/worker/progress"
)

const (
	statusKeyPrefix   = "task:status:"
	progressKeyPrefix = "task:progress:"
	queueKeyPrefix    = "queue:"
	cancelChannel     = "task:cancel"

	statusTTL   = 10 * time.Minute
	progressTTL = time.Minute
	queueTTL    = 24 * time.Hour
)

type statusRecord struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// StatusCache mirrors task state into Redis for the API to read.
// Writes are best effort; the engine logs and ignores failures.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (c *StatusCache) SetStatus(ctx context.Context, taskID string, status string) error {
	data, err := json.Marshal(statusRecord{Status: status})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKeyPrefix+taskID, data, statusTTL).Err()
}

func (c *StatusCache) SetTerminal(ctx context.Context, taskID string, status string, detail string) error {
	data, err := json.Marshal(statusRecord{Status: status, Detail: detail})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, statusKeyPrefix+taskID, data, statusTTL).Err(); err != nil {
		return err
	}
	return c.client.Del(ctx, progressKeyPrefix+taskID).Err()
}

func (c *StatusCache) SetProgress(ctx context.Context, taskID string, snap progress.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, progressKeyPrefix+taskID, data, progressTTL).Err()
}

func (c *StatusCache) SetQueue(ctx context.Context, requesterID int64, refs []string) error {
	key := queueKeyPrefix + strconv.FormatInt(requesterID, 10)
	if len(refs) == 0 {
		return c.client.Del(ctx, key).Err()
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, queueTTL).Err()
}

// ListenCancel blocks, invoking fn with each task id published on the
// cancellation channel, until ctx ends.
func (c *StatusCache) ListenCancel(ctx context.Context, fn func(taskID string)) error {
	sub := c.client.Subscribe(ctx, cancelChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}
