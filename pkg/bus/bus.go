// Package bus moves host-bridge traffic between the widget runtime and its
// gateway processes. Subjects are hierarchical ("lemonaide.widget.<id>.outbound")
// with NATS-style wildcards. The default implementation is NATS, with an
// in-memory option for single-process deployments and tests.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is returned when a request times out waiting for a response.
	ErrTimeout = errors.New("request timeout")

	// ErrNoResponders is returned when no subscriber can answer a request.
	ErrNoResponders = errors.New("no responders available")

	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// MessageBus carries bridge events between processes. Implementations must be
// safe for concurrent use.
type MessageBus interface {
	// Publish sends a message to all subscribers of the subject. Returns
	// immediately; does not wait for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the subject. Supports
	// wildcards: "lemonaide.widget.*.outbound" matches any widget id.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a single response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages. For request/reply, return data
// to send as the response; return nil for no response.
type MessageHandler func(msg *Message) []byte

// Message is an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
	ReplyTo string
}

// Subscription is an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// InboundSubject is where host-originated events for one widget arrive.
func InboundSubject(widgetID string) string {
	return fmt.Sprintf("lemonaide.widget.%s.inbound", widgetID)
}

// OutboundSubject is where widget-originated events for the host are
// published.
func OutboundSubject(widgetID string) string {
	return fmt.Sprintf("lemonaide.widget.%s.outbound", widgetID)
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL. Ignored for the in-memory bus.
	URL string

	// Name is a client identifier for monitoring.
	Name string

	// Timeout is the default timeout for operations.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "lemonaide",
		Timeout: 30 * time.Second,
	}
}
