package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher feeds room events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, roomID, event string, payload any) error
	Close() error
}

// Record is the value written for every room event.
type Record struct {
	RoomID string          `json:"room_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     time.Time       `json:"at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				slog.Error("room events not delivered", "count", len(msgs), "error", err)
			}
		},
	}
	return newKafkaPublisher(w)
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Publish writes one event keyed by room id, so a room's events stay ordered
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, roomID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	value, err := json.Marshal(Record{RoomID: roomID, Event: event, Data: data, At: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", event, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(roomID), Value: value})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
func (NopPublisher) Close() error                                       { return nil }
