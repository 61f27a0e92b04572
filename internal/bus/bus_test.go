package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// waitFor blocks until wg is done or the timeout elapses.
func waitFor(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for messages")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	accountID := "acct-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		var got *domain.Message
		_, err := bus.Subscribe(ctx, accountID, domain.TopicAlertRaised, func(ctx context.Context, msg *domain.Message) error {
			got = msg
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, accountID, domain.TopicAlertRaised, []byte(`{"id":"a1"}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitFor(t, &wg, time.Second)

		if string(got.Payload) != `{"id":"a1"}` {
			t.Errorf("unexpected payload %q", got.Payload)
		}
		if got.AccountID != accountID {
			t.Errorf("expected accountID %q, got %q", accountID, got.AccountID)
		}
		if got.Topic != domain.TopicAlertRaised {
			t.Errorf("expected topic %q, got %q", domain.TopicAlertRaised, got.Topic)
		}
	})

	t.Run("AccountIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32

		bus.Subscribe(ctx, "acct-a", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "acct-b", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})

		bus.Publish(ctx, "acct-a", "isolation.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if received1.Load() != 1 {
			t.Errorf("acct-a should receive 1 message, got %d", received1.Load())
		}
		if received2.Load() != 0 {
			t.Errorf("acct-b should receive 0 messages, got %d", received2.Load())
		}
	})

	t.Run("AllAccountsSubscriberSeesEveryAccount", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		var mu sync.Mutex
		seen := map[string]bool{}
		bus.Subscribe(ctx, domain.AllAccounts, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			seen[msg.AccountID] = true
			mu.Unlock()
			wg.Done()
			return nil
		})

		bus.Publish(ctx, "acct-x", "fanout.topic", []byte("1"))
		bus.Publish(ctx, "acct-y", "fanout.topic", []byte("2"))

		waitFor(t, &wg, time.Second)

		mu.Lock()
		defer mu.Unlock()
		if !seen["acct-x"] || !seen["acct-y"] {
			t.Errorf("expected messages from both accounts, got %v", seen)
		}
	})

	t.Run("RequiresAccountID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("data")); !errors.Is(err, domain.ErrNoAccount) {
			t.Errorf("expected ErrNoAccount, got %v", err)
		}

		_, err := bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty accountID")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, accountID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, accountID, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()
		time.Sleep(10 * time.Millisecond)

		bus.Publish(ctx, accountID, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}

		bus.mu.RLock()
		remaining := len(bus.topics["unsub.topic"])
		bus.mu.RUnlock()
		if remaining != 0 {
			t.Errorf("expected subscription to be detached, %d remain", remaining)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, accountID, domain.TopicEntityScored, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})

		if sub.Topic() != domain.TopicEntityScored {
			t.Errorf("expected topic %q, got %q", domain.TopicEntityScored, sub.Topic())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()

	bus.Subscribe(ctx, "acct-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "acct-001", "close.topic", []byte("data")); !errors.Is(err, domain.ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestNATSSubject(t *testing.T) {
	if got := subject("acct-1", domain.TopicAlertRaised); got != "acct.acct-1.kestrel.alert.raised" {
		t.Errorf("unexpected subject %q", got)
	}
	if got := subject(domain.AllAccounts, domain.TopicAlertRaised); got != "acct.*.kestrel.alert.raised" {
		t.Errorf("unexpected wildcard subject %q", got)
	}
}

func TestNATSQueueGroupOnlyForIntake(t *testing.T) {
	b := &NATSBus{queue: "kestrel-intake"}

	if got := b.queueFor(domain.TopicSubmissionReceived); got != "kestrel-intake" {
		t.Errorf("expected intake queue group, got %q", got)
	}
	for _, topic := range []string{domain.TopicAlertRaised, domain.TopicAlertResolved, domain.TopicEntityScored} {
		if got := b.queueFor(topic); got != "" {
			t.Errorf("%s should be broadcast, got queue %q", topic, got)
		}
	}
	if got := (&NATSBus{}).queueFor(domain.TopicSubmissionReceived); got != "" {
		t.Errorf("expected no queue group when unset, got %q", got)
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "acct-load", "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "acct-load", "load.topic", []byte("msg"))
	}

	waitFor(t, &wg, 5*time.Second)

	if received.Load() != messageCount {
		t.Errorf("expected %d messages, got %d", messageCount, received.Load())
	}
}
