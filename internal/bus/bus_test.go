package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/quantra/internal/domain"
)

// inbox subscribes and forwards every delivered message to a channel.
func inbox(t *testing.T, b domain.EventBus, tenantID, topic string) (<-chan *domain.Message, domain.Subscription) {
	t.Helper()
	ch := make(chan *domain.Message, 64)
	sub, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe(%s, %s) failed: %v", tenantID, topic, err)
	}
	return ch, sub
}

func receive(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func expectNone(t *testing.T, ch <-chan *domain.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message for tenant %s: %q", msg.TenantID, msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()

	ctx := context.Background()

	t.Run("Delivers", func(t *testing.T) {
		decisions, _ := inbox(t, b, "tenant-001", domain.TopicDecision)

		if err := b.Publish(ctx, "tenant-001", domain.TopicDecision, []byte(`{"score":42}`)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		msg := receive(t, decisions)
		if string(msg.Payload) != `{"score":42}` {
			t.Errorf("unexpected payload %q", msg.Payload)
		}
		if msg.TenantID != "tenant-001" || msg.Topic != domain.TopicDecision {
			t.Errorf("unexpected envelope: tenant=%s topic=%s", msg.TenantID, msg.Topic)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Error("expected message ID and timestamp")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		first, _ := inbox(t, b, "tenant-a", domain.TopicAlert)
		second, _ := inbox(t, b, "tenant-b", domain.TopicAlert)

		b.Publish(ctx, "tenant-a", domain.TopicAlert, []byte("a"))

		receive(t, first)
		expectNone(t, second)
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		alerts, _ := inbox(t, b, "tenant-c", domain.TopicAlert)

		b.Publish(ctx, "tenant-c", domain.TopicDecision, []byte("decision"))

		expectNone(t, alerts)
	})

	t.Run("GlobalSubscriberSeesEveryTenant", func(t *testing.T) {
		all, _ := inbox(t, b, domain.GlobalTenant, domain.TopicTransactionIngested)

		b.Publish(ctx, "tenant-x", domain.TopicTransactionIngested, []byte("x"))
		b.Publish(ctx, "tenant-y", domain.TopicTransactionIngested, []byte("y"))

		seen := map[string]bool{}
		seen[receive(t, all).TenantID] = true
		seen[receive(t, all).TenantID] = true
		if !seen["tenant-x"] || !seen["tenant-y"] {
			t.Errorf("expected messages from both tenants, got %v", seen)
		}
	})

	t.Run("FanOut", func(t *testing.T) {
		one, _ := inbox(t, b, "tenant-d", domain.TopicDecision)
		two, _ := inbox(t, b, "tenant-d", domain.TopicDecision)

		b.Publish(ctx, "tenant-d", domain.TopicDecision, []byte("both"))

		receive(t, one)
		receive(t, two)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		ch, sub := inbox(t, b, "tenant-e", domain.TopicDecision)

		b.Publish(ctx, "tenant-e", domain.TopicDecision, []byte("before"))
		receive(t, ch)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}
		b.Publish(ctx, "tenant-e", domain.TopicDecision, []byte("after"))
		expectNone(t, ch)

		b.mu.RLock()
		remaining := len(b.subscriptions[makeKey("tenant-e", domain.TopicDecision)])
		b.mu.RUnlock()
		if remaining != 0 {
			t.Errorf("expected subscription to be removed, %d remain", remaining)
		}
	})

	t.Run("HandlerErrorKeepsSubscription", func(t *testing.T) {
		var calls atomic.Int32
		done := make(chan struct{}, 2)
		b.Subscribe(ctx, "tenant-f", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			calls.Add(1)
			done <- struct{}{}
			return errors.New("handler failed")
		})

		b.Publish(ctx, "tenant-f", domain.TopicDecision, []byte("1"))
		b.Publish(ctx, "tenant-f", domain.TopicDecision, []byte("2"))
		for i := 0; i < 2; i++ {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("timeout: handler ran %d times", calls.Load())
			}
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := b.Publish(ctx, "", domain.TopicDecision, nil); !errors.Is(err, errTenantRequired) {
			t.Errorf("expected errTenantRequired, got %v", err)
		}
		_, err := b.Subscribe(ctx, "", domain.TopicDecision, func(context.Context, *domain.Message) error { return nil })
		if !errors.Is(err, errTenantRequired) {
			t.Errorf("expected errTenantRequired, got %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		_, sub := inbox(t, b, "tenant-g", domain.TopicAlert)
		if sub.Topic() != domain.TopicAlert {
			t.Errorf("expected topic %s, got %s", domain.TopicAlert, sub.Topic())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := b.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	inbox(t, b, "tenant-001", domain.TopicDecision)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Publish(ctx, "tenant-001", domain.TopicDecision, []byte("late")); !errors.Is(err, errClosed) {
		t.Errorf("expected errClosed from Publish, got %v", err)
	}
	if _, err := b.Subscribe(ctx, "tenant-001", domain.TopicDecision, func(context.Context, *domain.Message) error { return nil }); err == nil {
		t.Error("expected Subscribe to fail after close")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected Ping to fail after close")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestChannelBusBurst(t *testing.T) {
	b := NewChannelBus(500)
	defer b.Close()

	const n = 200
	var received atomic.Int32
	done := make(chan struct{})
	b.Subscribe(context.Background(), "tenant-load", domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		if received.Add(1) == n {
			close(done)
		}
		return nil
	})

	for i := 0; i < n; i++ {
		if err := b.Publish(context.Background(), "tenant-load", domain.TopicTransactionIngested, []byte("tx")); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), n)
	}
}

func TestMakeSubject(t *testing.T) {
	tests := []struct {
		tenant, topic, want string
	}{
		{"tenant-001", domain.TopicTransactionIngested, "quantra.tenant-001.transaction.ingested"},
		{"tenant-001", domain.TopicDecision, "quantra.tenant-001.decision"},
		{"*", domain.TopicAlert, "quantra.*.alert"},
	}
	for _, tt := range tests {
		if got := makeSubject(tt.tenant, tt.topic); got != tt.want {
			t.Errorf("makeSubject(%q, %q) = %q, want %q", tt.tenant, tt.topic, got, tt.want)
		}
	}
}

func TestSubscription(t *testing.T) {
	tests := []struct {
		tenant, topic      string
		subject, wantQueue string
	}{
		{"tenant-001", domain.TopicDecision, "quantra.tenant-001.decision", ""},
		{domain.GlobalTenant, domain.TopicAlert, "quantra.*.alert", ""},
		{domain.GlobalTenant, domain.TopicTransactionIngested, "quantra.*.transaction.ingested", workerQueue},
		{"tenant-001", domain.TopicTransactionIngested, "quantra.tenant-001.transaction.ingested", workerQueue},
	}
	for _, tt := range tests {
		subject, queue := subscription(tt.tenant, tt.topic)
		if subject != tt.subject || queue != tt.wantQueue {
			t.Errorf("subscription(%q, %q) = (%q, %q), want (%q, %q)",
				tt.tenant, tt.topic, subject, queue, tt.subject, tt.wantQueue)
		}
	}
}

func TestTraceContextCrossesBus(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	b := NewChannelBus(10)
	defer b.Close()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	got := make(chan trace.SpanContext, 1)
	b.Subscribe(context.Background(), "tenant-001", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		got <- trace.SpanContextFromContext(ctx)
		return nil
	})

	if err := b.Publish(parent, "tenant-001", domain.TopicDecision, []byte("traced")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case sc := <-got:
		if sc.TraceID() != traceID {
			t.Errorf("expected trace %s in handler context, got %s", traceID, sc.TraceID())
		}
		if !sc.IsRemote() {
			t.Error("expected span context to be marked remote")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNew(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
