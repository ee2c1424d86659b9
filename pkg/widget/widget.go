// Package widget assembles the per-instance runtime: active records,
// transcript, refresh controller, operation registry, context projector, and
// the host bridge. One Widget corresponds to one embedded chat iframe.
package widget

import (
	"context"
	"time"

	"github.com/lemonshq/lemonaide/pkg/active"
	"github.com/lemonshq/lemonaide/pkg/bridge"
	"github.com/lemonshq/lemonaide/pkg/bus"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/operation"
	"github.com/lemonshq/lemonaide/pkg/projector"
	"github.com/lemonshq/lemonaide/pkg/record"
	"github.com/lemonshq/lemonaide/pkg/refresh"
	"github.com/lemonshq/lemonaide/pkg/storage"
	"github.com/lemonshq/lemonaide/pkg/transcript"
)

// Options configures a widget instance.
type Options struct {
	WidgetID string
	Store    operation.ObjectStore
	Slugs    operation.SlugResolver
	Search   operation.Searcher
	Bus      bus.MessageBus
	Storage  *storage.Store
	Logger   *logging.Logger
	UseToon  bool

	// OperationTimeout bounds each operation execution. Zero means no limit.
	OperationTimeout time.Duration
}

// Widget is one running widget instance.
type Widget struct {
	id         string
	records    *active.Store
	transcript *transcript.Transcript
	refresher  *refresh.Controller
	registry   *operation.Registry
	projector  *projector.Projector
	bridge     *bridge.Bridge
	logger     *logging.Logger
}

// New assembles a widget. The persisted transcript is restored; a corrupt
// history is discarded and the widget starts with an empty conversation.
func New(opts Options) (*Widget, error) {
	if opts.WidgetID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "widget id is required")
	}

	w := &Widget{
		id:     opts.WidgetID,
		logger: opts.Logger,
	}

	w.records = active.NewStore(opts.Store, opts.Slugs, opts.Logger)
	w.transcript = transcript.New(opts.WidgetID, opts.Storage, opts.Logger)
	if err := w.transcript.Restore(); err != nil {
		if !errors.IsCode(err, errors.ErrCodeRestoreCorrupt) {
			return nil, err
		}
		w.logger.Warn(logging.CategoryTranscript, "restore_discarded", err.Error(), map[string]any{
			"widget_id": opts.WidgetID,
		})
	}

	w.projector = projector.New(opts.UseToon, opts.Logger)
	w.records.OnChange(w.projector.Update)

	w.refresher = refresh.New(w.transcript, w.records, opts.Logger)

	if opts.Bus != nil {
		w.bridge = bridge.New(opts.WidgetID, opts.Bus, opts.Storage, opts.Logger)
	}

	deps := operation.Deps{
		Records: w.records,
		Store:   opts.Store,
		Slugs:   opts.Slugs,
		Search:  opts.Search,
		Notify:  w.bridgeNotifier(),
		Logger:  opts.Logger,
	}
	w.registry = operation.NewBuiltinRegistry(deps)
	w.registry.Use(
		operation.Recover(),
		operation.Logging(opts.Logger),
		operation.Metrics(),
		operation.Timeout(opts.OperationTimeout, nil),
	)

	return w, nil
}

// bridgeNotifier adapts the optional bridge to the operation Notifier
// interface; without a bus, notifications are dropped.
func (w *Widget) bridgeNotifier() operation.Notifier {
	if w.bridge == nil {
		return noopNotifier{}
	}
	return w.bridge
}

type noopNotifier struct{}

func (noopNotifier) Notify(eventType string, payload map[string]any) {}

// Start subscribes the bridge and announces readiness to the host.
func (w *Widget) Start(ctx context.Context, origin string) error {
	if w.bridge == nil {
		return nil
	}
	if err := w.bridge.Start(ctx, w); err != nil {
		return errors.Wrap(err, errors.ErrCodeBridgePublish, "subscribing bridge")
	}
	w.bridge.AnnounceReady(origin)
	return nil
}

// Close stops the bridge subscription.
func (w *Widget) Close() {
	if w.bridge != nil {
		w.bridge.Stop()
	}
}

// ID returns the widget id.
func (w *Widget) ID() string { return w.id }

// Seed loads the active records named in the embed URL before any message is
// processed, so the first turn already sees the host's selection.
func (w *Widget) Seed(ctx context.Context, serviceID, userID string) {
	if serviceID != "" {
		if _, err := w.records.SetServiceByID(ctx, serviceID); err != nil {
			w.logger.Warn(logging.CategoryRecord, "seed_service_failed", err.Error(), map[string]any{
				"service_id": serviceID,
			})
		}
	}
	if userID != "" {
		if _, err := w.records.SetUserByID(ctx, userID); err != nil {
			w.logger.Warn(logging.CategoryRecord, "seed_user_failed", err.Error(), map[string]any{
				"user_id": userID,
			})
		}
	}
}

// HandleUserMessage appends the message to the transcript and runs the
// turn-triggered refresh. Returns the appended entry.
func (w *Widget) HandleUserMessage(ctx context.Context, text string) transcript.Entry {
	entry := w.transcript.AppendUserText(text)
	w.refresher.HandleUserEntry(ctx, entry)
	return entry
}

// ExecuteOperation runs a model-invoked operation, recording the invocation
// and its result in the transcript.
func (w *Widget) ExecuteOperation(ctx context.Context, name string, params map[string]any) *operation.Result {
	inv := w.transcript.AppendInvocation(name, params, false)
	res := w.registry.Execute(ctx, name, params)

	payload := map[string]any{}
	if res.Data != nil {
		payload["data"] = res.Data
	}
	if res.Error != "" {
		payload["error"] = res.Error
	}
	if _, err := w.transcript.AppendResult(inv.ID, payload, res.Success, false); err != nil {
		w.logger.Error(logging.CategoryTranscript, "result_append_failed", err.Error(), map[string]any{
			"operation": name,
		})
	}
	return res
}

// ViewOffer handles a result-card click: the clicked service becomes the
// active record and the host is told to navigate to the offer, with the full
// service payload so it can render without another fetch.
func (w *Widget) ViewOffer(ctx context.Context, serviceID string) (record.Service, error) {
	svc, err := w.records.SetServiceByID(ctx, serviceID)
	if err != nil {
		return record.Service{}, err
	}
	w.bridgeNotifier().Notify(bridge.EventViewOffer, map[string]any{
		"serviceId": svc.ID,
		"service": map[string]any{
			"id":            svc.ID,
			"title":         svc.Title,
			"description":   svc.Description,
			"category":      svc.Category,
			"price":         svc.Price,
			"delivery_days": svc.DeliveryDays,
		},
	})
	return svc, nil
}

// ContextFacts returns the serialized projection for the next model turn.
func (w *Widget) ContextFacts() string {
	return w.projector.Latest()
}

// Transcript exposes the conversation history.
func (w *Widget) Transcript() *transcript.Transcript {
	return w.transcript
}

// Registry exposes the operation registry (for declarations and direct
// execution by the chat shell).
func (w *Widget) Registry() *operation.Registry {
	return w.registry
}

// Records exposes the active-record store.
func (w *Widget) Records() *active.Store {
	return w.records
}

// Bridge event handling: the widget is its own InboundHandler.

func (w *Widget) HandleActiveService(ctx context.Context, svc record.Service) {
	w.records.SetService(ctx, svc)
}

func (w *Widget) HandleActiveServiceID(ctx context.Context, id string) {
	if _, err := w.records.SetServiceByID(ctx, id); err != nil {
		w.logger.Warn(logging.CategoryBridge, "active_service_failed", err.Error(), map[string]any{
			"service_id": id,
		})
	}
}

func (w *Widget) HandleActiveUser(ctx context.Context, user record.User) {
	w.records.SetUser(user)
}

func (w *Widget) HandleActiveUserID(ctx context.Context, id string) {
	if _, err := w.records.SetUserByID(ctx, id); err != nil {
		w.logger.Warn(logging.CategoryBridge, "active_user_failed", err.Error(), map[string]any{
			"user_id": id,
		})
	}
}

// HandleSearchQuery injects a host-originated search as a user-authored turn
// so it flows through the normal pipeline.
func (w *Widget) HandleSearchQuery(ctx context.Context, query string) {
	w.HandleUserMessage(ctx, query)
}
