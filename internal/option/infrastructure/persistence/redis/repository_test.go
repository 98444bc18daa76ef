package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

func newTestRepo(t *testing.T) (*OptionRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewOptionRepo(client, "test"), mr
}

func sampleOption() *domain.Option {
	return &domain.Option{
		Creator:      "creator",
		Owner:        "creator",
		Collateral:   domain.NewCoins(1, "BTC"),
		CounterOffer: domain.NewCoins(40, "ETH"),
		Expires:      100_000,
	}
}

func TestSaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	if _, err := repo.Load(ctx); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
	if err := repo.Save(ctx, sampleOption()); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.CounterOffer.Equal(domain.NewCoins(40, "ETH")) || got.Owner != "creator" {
		t.Errorf("got %+v", got)
	}
	if err := repo.Remove(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Load(ctx); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound after remove, got %v", err)
	}
}

func TestAtomicallyCommitAndOutbox(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)

	err := repo.Atomically(ctx, func(uow domain.UnitOfWork) error {
		if _, err := uow.Load(ctx); !errors.Is(err, domain.ErrOptionNotFound) {
			t.Errorf("expected empty slot, got %v", err)
		}
		if err := uow.Save(ctx, sampleOption()); err != nil {
			return err
		}
		if got, err := uow.Load(ctx); err != nil || got.Owner != "creator" {
			t.Errorf("read-your-writes failed: %+v %v", got, err)
		}
		if err := uow.Enqueue(ctx,
			domain.OutboxMessage{ID: "a", Topic: "option.bank.send", Key: "creator", Payload: []byte(`{}`)},
			domain.OutboxMessage{ID: "b", Topic: "option.events", Key: "option", Payload: []byte(`{}`)},
		); err != nil {
			return err
		}
		return uow.Record(ctx, domain.HistoryEntry{Action: domain.ActionInstantiate, Sender: "creator", Height: 1})
	})
	if err != nil {
		t.Fatalf("atomically: %v", err)
	}

	if !mr.Exists("test:config") {
		t.Error("config key missing")
	}
	pending, err := repo.Pending(ctx, 10)
	if err != nil || len(pending) != 2 || pending[0].ID != "a" {
		t.Fatalf("pending = %+v err = %v", pending, err)
	}
	history, err := repo.History(ctx, 10)
	if err != nil || len(history) != 1 || history[0].Action != domain.ActionInstantiate {
		t.Fatalf("history = %+v err = %v", history, err)
	}

	if err := repo.MarkSent(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	pending, _ = repo.Pending(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "b" {
		t.Errorf("pending after mark = %+v", pending)
	}
	purged, err := repo.PurgeSent(ctx, time.Now().Add(time.Minute))
	if err != nil || purged != 1 {
		t.Errorf("purged = %d err = %v", purged, err)
	}
	if mr.HGet("test:outbox:msgs", "a") != "" {
		t.Error("purged message body still present")
	}
}

func TestAtomicallyRollback(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)
	boom := errors.New("boom")

	err := repo.Atomically(ctx, func(uow domain.UnitOfWork) error {
		_ = uow.Save(ctx, sampleOption())
		_ = uow.Enqueue(ctx, domain.OutboxMessage{ID: "a", Topic: "t"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if mr.Exists("test:config") || mr.Exists("test:outbox:pending") {
		t.Error("writes leaked from a failed unit of work")
	}
}

func TestAtomicallyDetectsConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)

	err := repo.Atomically(ctx, func(uow domain.UnitOfWork) error {
		// 另一个实例在提交前写入
		if err := mr.Set("test:config", "{}"); err != nil {
			return err
		}
		return uow.Save(ctx, sampleOption())
	})
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}
