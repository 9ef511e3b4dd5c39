package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/SunilSharmaNP/fvt/api/database"
)

// Key layout shared with the worker. The worker writes task state and
// queue snapshots; the API reads them and owns the gate keys.
const (
	statusKeyPrefix   = "task:status:"
	progressKeyPrefix = "task:progress:"
	queueKeyPrefix    = "queue:"
	cancelChannel     = "task:cancel"
	modeKey           = "bot:mode"
	heldSetKey        = "bot:held_users"

	statusTTL = 10 * time.Minute
)

const (
	ModeActive = "active"
	ModeHeld   = "held"
)

type StatusRecord struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type StatusCache struct {
	cache *database.Cache
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

func (sc *StatusCache) GetStatus(ctx context.Context, taskID string) (*StatusRecord, error) {
	data, err := sc.cache.Get(ctx, statusKeyPrefix+taskID)
	if err != nil {
		return nil, err
	}

	var record StatusRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		record = StatusRecord{Status: data}
	}
	return &record, nil
}

func (sc *StatusCache) SetStatus(ctx context.Context, taskID string, status string, detail string) error {
	data, err := json.Marshal(StatusRecord{Status: status, Detail: detail})
	if err != nil {
		return err
	}
	return sc.cache.Set(ctx, statusKeyPrefix+taskID, data, statusTTL)
}

func (sc *StatusCache) GetProgress(ctx context.Context, taskID string) (json.RawMessage, error) {
	data, err := sc.cache.Get(ctx, progressKeyPrefix+taskID)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (sc *StatusCache) GetQueue(ctx context.Context, requesterID int64) ([]string, error) {
	data, err := sc.cache.Get(ctx, queueKeyPrefix+strconv.FormatInt(requesterID, 10))
	if err != nil {
		return nil, err
	}

	var refs []string
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

func (sc *StatusCache) PublishCancel(ctx context.Context, taskID string) error {
	return sc.cache.Publish(ctx, cancelChannel, taskID)
}

func (sc *StatusCache) SetMode(ctx context.Context, mode string) error {
	return sc.cache.Set(ctx, modeKey, mode, 0)
}

func (sc *StatusCache) SetHold(ctx context.Context, requesterID int64, held bool) error {
	member := strconv.FormatInt(requesterID, 10)
	if held {
		return sc.cache.SAdd(ctx, heldSetKey, member)
	}
	return sc.cache.SRem(ctx, heldSetKey, member)
}
