package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
	"github.com/wyfcoding/optionescrow/internal/option/infrastructure/persistence/memory"
)

type published struct {
	topic, key string
}

type fakePublisher struct {
	sent    []published
	failKey string
}

func (p *fakePublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if key == p.failKey {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{topic: topic, key: key})
	return nil
}

func seed(t *testing.T, repo *memory.OptionRepo, keys ...string) {
	t.Helper()
	err := repo.Atomically(context.Background(), func(uow domain.UnitOfWork) error {
		for _, k := range keys {
			if err := uow.Enqueue(context.Background(), domain.OutboxMessage{
				ID: "id-" + k, Topic: "option.bank.send", Key: k, Payload: []byte("{}"),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestProcessOutboxMessagesInOrder(t *testing.T) {
	repo := memory.NewOptionRepo()
	seed(t, repo, "creator", "owner")
	pub := &fakePublisher{}
	relay := NewOutboxRelay(repo, pub, RelayConfig{MaxAttempts: 1}, nil, nil)

	n, err := relay.ProcessOutboxMessages(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("n = %d err = %v", n, err)
	}
	if pub.sent[0].key != "creator" || pub.sent[1].key != "owner" {
		t.Errorf("order = %+v", pub.sent)
	}
	pending, _ := repo.Pending(context.Background(), 0)
	if len(pending) != 0 {
		t.Errorf("pending = %d", len(pending))
	}

	purged, err := relay.CleanupProcessedMessages(context.Background(), time.Now().Add(time.Second))
	if err != nil || purged != 2 {
		t.Errorf("purged = %d err = %v", purged, err)
	}
}

func TestProcessOutboxMessagesStopsOnFailure(t *testing.T) {
	repo := memory.NewOptionRepo()
	seed(t, repo, "creator", "owner", "later")
	pub := &fakePublisher{failKey: "owner"}
	relay := NewOutboxRelay(repo, pub, RelayConfig{MaxAttempts: 1}, nil, nil)

	n, err := relay.ProcessOutboxMessages(context.Background())
	if err == nil || n != 1 {
		t.Fatalf("n = %d err = %v", n, err)
	}
	pending, _ := repo.Pending(context.Background(), 0)
	if len(pending) != 2 || pending[0].Key != "owner" {
		t.Errorf("pending = %+v", pending)
	}

	pub.failKey = ""
	n, err = relay.ProcessOutboxMessages(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("retry: n = %d err = %v", n, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := memory.NewOptionRepo()
	seed(t, repo, "creator")
	pub := &fakePublisher{}
	relay := NewOutboxRelay(repo, pub, RelayConfig{PollInterval: 5 * time.Millisecond, MaxAttempts: 1}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		pending, _ := repo.Pending(context.Background(), 0)
		if len(pending) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay did not publish")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
