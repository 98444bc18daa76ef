package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaProducer{writer: w}

	if err := p.Publish(context.Background(), "option.events", "creator", []byte(`{"action":"burn"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Publish(context.Background(), "option.bank.send", "owner", []byte(`{"action":"execute"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("written = %d", len(w.msgs))
	}
	if w.msgs[0].Topic != "option.events" || string(w.msgs[0].Key) != "creator" {
		t.Errorf("unexpected message: %+v", w.msgs[0])
	}
	if string(w.msgs[1].Value) != `{"action":"execute"}` {
		t.Errorf("value = %s", w.msgs[1].Value)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("close: %v closed=%v", err, w.closed)
	}
}

func TestPublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaProducer{writer: &recordingWriter{err: boom}}
	if err := p.Publish(context.Background(), "t", "k", nil); !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestNewWriterBatchTimeout(t *testing.T) {
	tests := []struct {
		name string
		ms   int
		want time.Duration
	}{
		{"default", 0, 10 * time.Millisecond},
		{"configured", 50, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, BatchTimeoutMs: tt.ms})
			if w.BatchTimeout != tt.want {
				t.Errorf("BatchTimeout = %v, want %v", w.BatchTimeout, tt.want)
			}
			if _, ok := w.Balancer.(*kafka.Hash); !ok {
				t.Errorf("balancer = %T, want *kafka.Hash", w.Balancer)
			}
		})
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(KafkaConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMessageUnmarshalPayload(t *testing.T) {
	m := &Message{Value: []byte(`{"action":"transfer"}`)}
	var out struct {
		Action string `json:"action"`
	}
	if err := m.UnmarshalPayload(&out); err != nil || out.Action != "transfer" {
		t.Fatalf("got %+v err=%v", out, err)
	}
}
