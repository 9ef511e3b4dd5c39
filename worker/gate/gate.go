package gate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ModeKey    = "bot:mode"
	HeldSetKey = "bot:held_users"

	ModeActive = "active"
	ModeHeld   = "held"
)

// Redis answers admission gate checks from shared state: a global mode
// flag and a per-requester hold set. An absent mode means active.
// Admins bypass both.
type Redis struct {
	client *redis.Client
	admins map[int64]bool
	logger *zap.Logger
}

func NewRedis(client *redis.Client, adminIDs []int64, logger *zap.Logger) *Redis {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Redis{client: client, admins: admins, logger: logger}
}

func (g *Redis) Allowed(ctx context.Context, requesterID int64) (bool, error) {
	if g.admins[requesterID] {
		return true, nil
	}

	mode, err := g.client.Get(ctx, ModeKey).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("read gate mode: %w", err)
	}
	if mode == ModeHeld {
		return false, nil
	}

	held, err := g.client.SIsMember(ctx, HeldSetKey, strconv.FormatInt(requesterID, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("read held set: %w", err)
	}
	return !held, nil
}

// Static always answers the same; used where no shared gate state is
// wired up.
type Static struct {
	Deny bool
	Err  error
}

func (g Static) Allowed(ctx context.Context, requesterID int64) (bool, error) {
	if g.Err != nil {
		return false, g.Err
	}
	return !g.Deny, nil
}
