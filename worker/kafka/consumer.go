package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/worker/jobspec"
)

// Message kinds carried on the jobs topic. The producer keys every
// message by requester id, so one requester's submissions and queue
// edits arrive in order.
const (
	KindSubmit      = "submit"
	KindEnqueue     = "enqueue"
	KindQueueRemove = "queue_remove"
	KindQueueClear  = "queue_clear"
)

type JobMessage struct {
	Kind        string              `json:"kind"`
	RequesterID int64               `json:"requester_id"`
	Ref         string              `json:"ref,omitempty"`
	Index       int                 `json:"index,omitempty"`
	Job         *jobspec.Descriptor `json:"job,omitempty"`
}

// MessageHandler processes one decoded message. Returning an error
// leaves the message unmarked so another session can redeliver it;
// handlers must swallow failures that a retry cannot fix.
type MessageHandler func(ctx context.Context, msg *JobMessage) error

type Consumer struct {
	consumer sarama.ConsumerGroup
	logger   *zap.Logger
}

func NewConsumer(brokers []string, groupID string, logger *zap.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	c, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c, logger: logger}, nil
}

type consumerHandler struct {
	fn     MessageHandler
	ctx    context.Context
	logger *zap.Logger
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var jobMsg JobMessage
		if err := json.Unmarshal(msg.Value, &jobMsg); err != nil {
			h.logger.Warn("Failed to decode job message, skipping",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			session.MarkMessage(msg, "")
			continue
		}
		if err := h.fn(h.ctx, &jobMsg); err != nil {
			h.logger.Warn("Job message left unmarked for redelivery",
				zap.String("kind", jobMsg.Kind),
				zap.Error(err))
			continue
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// Run consumes the topic until ctx ends, resuming across group
// rebalances.
func (c *Consumer) Run(ctx context.Context, topic string, handler MessageHandler) error {
	h := &consumerHandler{fn: handler, ctx: ctx, logger: c.logger}
	for {
		if err := c.consumer.Consume(ctx, []string{topic}, h); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
