package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Publisher emits one event per finished session.
type Publisher interface {
	PublishSessionEvent(ctx context.Context, event *SessionEvent) error
	Close() error
}

type SessionEvent struct {
	SessionID  string    `json:"session_id"`
	TaskID     string    `json:"task_id,omitempty"`
	TraceID    string    `json:"trace_id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return NewPublisher(p, topic), nil
}

// NewPublisher wraps an existing sync producer.
func NewPublisher(p sarama.SyncProducer, topic string) Publisher {
	return &producer{producer: p, topic: topic}
}

func (p *producer) PublishSessionEvent(ctx context.Context, event *SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("trace_id"), Value: []byte(event.TraceID)},
		},
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
