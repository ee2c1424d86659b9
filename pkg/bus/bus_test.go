package bus

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	received := make(chan []byte, 1)
	sub, err := b.Subscribe(context.Background(), "lemonaide.widget.w1.outbound", func(msg *Message) []byte {
		received <- msg.Data
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(context.Background(), OutboundSubject("w1"), []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Errorf("data = %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryBusWildcards(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	received := make(chan string, 4)
	b.Subscribe(context.Background(), "lemonaide.widget.*.outbound", func(msg *Message) []byte {
		received <- msg.Subject
		return nil
	})

	b.Publish(context.Background(), OutboundSubject("w1"), []byte("x"))
	b.Publish(context.Background(), OutboundSubject("w2"), []byte("y"))
	b.Publish(context.Background(), InboundSubject("w1"), []byte("z")) // should not match

	got := map[string]bool{}
	timeout := time.After(time.Second)
	for i := 0; i < 2; i++ {
		select {
		case subj := <-received:
			got[subj] = true
		case <-timeout:
			t.Fatal("missing wildcard delivery")
		}
	}
	if !got[OutboundSubject("w1")] || !got[OutboundSubject("w2")] {
		t.Errorf("got = %v", got)
	}
	select {
	case subj := <-received:
		t.Errorf("unexpected delivery for %s", subj)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusRequestReply(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	b.Subscribe(context.Background(), "lemonaide.widget.w1.inbound", func(msg *Message) []byte {
		return []byte("pong")
	})

	reply, err := b.Request(context.Background(), InboundSubject("w1"), []byte("ping"), time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(reply) != "pong" {
		t.Errorf("reply = %s", reply)
	}
}

func TestMemoryBusRequestNoResponders(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	_, err := b.Request(context.Background(), "nobody.home", nil, 100*time.Millisecond)
	if err != ErrNoResponders {
		t.Errorf("err = %v", err)
	}
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryBus()
	b.Close()
	if err := b.Publish(context.Background(), "x", nil); err != ErrClosed {
		t.Errorf("publish after close: %v", err)
	}
	if _, err := b.Subscribe(context.Background(), "x", nil); err != ErrClosed {
		t.Errorf("subscribe after close: %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	received := make(chan struct{}, 1)
	sub, _ := b.Subscribe(context.Background(), "x", func(msg *Message) []byte {
		received <- struct{}{}
		return nil
	})
	sub.Unsubscribe()

	b.Publish(context.Background(), "x", []byte("data"))
	select {
	case <-received:
		t.Error("delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.d", false},
		{"a.>", "a.b.c.d", true},
		{"a.>", "a", false},
		{"*", "a", true},
		{"*", "a.b", false},
	}
	for _, tt := range tests {
		if got := matchSubject(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("matchSubject(%q, %q) = %v", tt.pattern, tt.subject, got)
		}
	}
}
