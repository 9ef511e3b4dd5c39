package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/IBM/sarama"
)

// Message kinds on the jobs topic. Mirrored by the worker's consumer.
const (
	KindSubmit      = "submit"
	KindEnqueue     = "enqueue"
	KindQueueRemove = "queue_remove"
	KindQueueClear  = "queue_clear"
)

// JobPayload is the submission body. Options stay raw; the worker
// decodes and validates them against the tool.
type JobPayload struct {
	ID          string          `json:"id"`
	TraceID     string          `json:"trace_id"`
	RequesterID int64           `json:"requester_id"`
	ChatID      int64           `json:"chat_id"`
	Tool        string          `json:"tool"`
	Inputs      []string        `json:"inputs"`
	Options     json.RawMessage `json:"options,omitempty"`
}

type JobMessage struct {
	Kind        string      `json:"kind"`
	RequesterID int64       `json:"requester_id"`
	Ref         string      `json:"ref,omitempty"`
	Index       int         `json:"index,omitempty"`
	Job         *JobPayload `json:"job,omitempty"`
}

type Producer interface {
	SendJobMessage(ctx context.Context, topic string, message *JobMessage) error
	Close() error
}

type producer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p}, nil
}

// SendJobMessage keys every message by requester id so one requester's
// submissions and queue edits land on one partition, in order.
func (p *producer) SendJobMessage(ctx context.Context, topic string, message *JobMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(message.RequesterID, 10)),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
