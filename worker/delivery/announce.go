package delivery

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Announcer posts a short text message to the originating chat.
type Announcer interface {
	Announce(ctx context.Context, chatID int64, text string) error
}

// Announced wraps a large-object backend and reports each successful
// delivery's location back to the chat, so the requester still gets a
// usable link when the artifact could not be uploaded directly.
type Announced struct {
	inner     Deliverer
	announcer Announcer
	logger    *zap.Logger
}

func NewAnnounced(inner Deliverer, announcer Announcer, logger *zap.Logger) *Announced {
	return &Announced{inner: inner, announcer: announcer, logger: logger}
}

func (d *Announced) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	receipt, err := d.inner.Deliver(ctx, a)
	if err != nil {
		return receipt, err
	}
	if d.announcer != nil && a.ChatID != 0 && receipt.Location != "" {
		text := receipt.Location
		if a.Caption != "" {
			text = fmt.Sprintf("%s\n%s", a.Caption, receipt.Location)
		}
		if err := d.announcer.Announce(ctx, a.ChatID, text); err != nil {
			d.logger.Warn("Failed to announce delivery link",
				zap.String("task_id", a.ID),
				zap.Int64("chat_id", a.ChatID),
				zap.Error(err))
		}
	}
	return receipt, nil
}
