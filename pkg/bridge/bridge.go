package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lemonshq/lemonaide/pkg/bus"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/record"
	"github.com/lemonshq/lemonaide/pkg/storage"
)

// Envelope is the wire shape of one bridge event in either direction.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// InboundHandler receives validated host-originated events. Implementations
// are called from the bus delivery goroutine.
type InboundHandler interface {
	HandleActiveService(ctx context.Context, svc record.Service)
	HandleActiveServiceID(ctx context.Context, id string)
	HandleActiveUser(ctx context.Context, user record.User)
	HandleActiveUserID(ctx context.Context, id string)
	HandleSearchQuery(ctx context.Context, query string)
}

// Bridge connects one widget instance to its host page through the bus. The
// host's origin is untrusted: every inbound payload is validated before it
// reaches widget state, and unknown event types are dropped.
type Bridge struct {
	widgetID string
	bus      bus.MessageBus
	store    *storage.Store
	logger   *logging.Logger

	sub bus.Subscription
}

// New creates a bridge for one widget. store may be nil (no audit trail).
func New(widgetID string, mb bus.MessageBus, store *storage.Store, logger *logging.Logger) *Bridge {
	return &Bridge{widgetID: widgetID, bus: mb, store: store, logger: logger}
}

// Start subscribes to the widget's inbound subject and dispatches events to
// handler until ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context, handler InboundHandler) error {
	sub, err := b.bus.Subscribe(ctx, bus.InboundSubject(b.widgetID), func(msg *bus.Message) []byte {
		b.dispatch(ctx, handler, msg.Data)
		return nil
	})
	if err != nil {
		return err
	}
	b.sub = sub
	return nil
}

// Stop cancels the inbound subscription.
func (b *Bridge) Stop() {
	if b.sub != nil {
		b.sub.Unsubscribe()
		b.sub = nil
	}
}

func (b *Bridge) dispatch(ctx context.Context, handler InboundHandler, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Warn(logging.CategoryBridge, "inbound_malformed", err.Error(), nil)
		return
	}
	b.audit("inbound", env.Type, env.Payload)

	switch env.Type {
	case EventActiveService:
		var raw record.Raw
		if err := json.Unmarshal(env.Payload, &raw); err != nil {
			b.logger.Warn(logging.CategoryBridge, "inbound_bad_payload", err.Error(), map[string]any{"type": env.Type})
			return
		}
		svc := record.ServiceFromRaw(raw)
		if svc.ID == "" {
			b.logger.Warn(logging.CategoryBridge, "inbound_missing_id", "", map[string]any{"type": env.Type})
			return
		}
		handler.HandleActiveService(ctx, svc)

	case EventActiveServiceID:
		if id := payloadID(env.Payload, "serviceId"); id != "" {
			handler.HandleActiveServiceID(ctx, id)
		} else {
			b.logger.Warn(logging.CategoryBridge, "inbound_missing_id", "", map[string]any{"type": env.Type})
		}

	case EventActiveUser:
		var raw record.Raw
		if err := json.Unmarshal(env.Payload, &raw); err != nil {
			b.logger.Warn(logging.CategoryBridge, "inbound_bad_payload", err.Error(), map[string]any{"type": env.Type})
			return
		}
		user := record.UserFromRaw(raw)
		if user.ID == "" {
			b.logger.Warn(logging.CategoryBridge, "inbound_missing_id", "", map[string]any{"type": env.Type})
			return
		}
		handler.HandleActiveUser(ctx, user)

	case EventActiveUserID:
		if id := payloadID(env.Payload, "userId"); id != "" {
			handler.HandleActiveUserID(ctx, id)
		} else {
			b.logger.Warn(logging.CategoryBridge, "inbound_missing_id", "", map[string]any{"type": env.Type})
		}

	case EventSearchQuery:
		var payload struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.Query == "" {
			b.logger.Warn(logging.CategoryBridge, "inbound_bad_payload", "", map[string]any{"type": env.Type})
			return
		}
		handler.HandleSearchQuery(ctx, payload.Query)

	default:
		b.logger.Warn(logging.CategoryBridge, "inbound_unknown_type", "", map[string]any{"type": env.Type})
	}
}

func payloadID(payload json.RawMessage, preferred string) string {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	for _, key := range []string{preferred, "id", "_id"} {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Notify publishes one outbound event to the host. Delivery is
// fire-and-forget: failures are logged, never returned, so a disconnected
// host can not fail the operation that produced the event.
func (b *Bridge) Notify(eventType string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error(logging.CategoryBridge, "outbound_encode_failed", err.Error(), map[string]any{"type": eventType})
		return
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.logger.Error(logging.CategoryBridge, "outbound_encode_failed", err.Error(), map[string]any{"type": eventType})
		return
	}

	b.audit("outbound", eventType, body)
	if err := b.bus.Publish(context.Background(), bus.OutboundSubject(b.widgetID), data); err != nil {
		b.logger.Error(logging.CategoryBridge, "outbound_publish_failed", err.Error(), map[string]any{"type": eventType})
	}
}

// AnnounceReady emits the mount handshake so the host knows the widget is
// listening.
func (b *Bridge) AnnounceReady(origin string) {
	b.Notify(EventIframeReady, map[string]any{
		"widgetId": b.widgetID,
		"origin":   origin,
	})
}

func (b *Bridge) audit(direction, eventType string, payload []byte) {
	if b.store == nil {
		return
	}
	if err := b.store.RecordHostEvent(direction, eventType, string(payload)); err != nil {
		b.logger.Debug(logging.CategoryBridge, "audit_failed", err.Error(), nil)
	}
}
