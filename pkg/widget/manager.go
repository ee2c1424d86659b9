package widget

import (
	"context"
	"sync"
)

// Factory builds a widget for an id. The manager calls it once per id.
type Factory func(widgetID string) (*Widget, error)

// Manager owns the live widget instances, one per embedded iframe.
type Manager struct {
	factory Factory

	// ctx spans the manager's lifetime. Widgets are started with it so their
	// bridge subscriptions survive the request that created them.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	widgets map[string]*Widget
}

// NewManager creates a manager backed by factory.
func NewManager(factory Factory) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
		widgets: make(map[string]*Widget),
	}
}

// Get returns the widget for id, creating and starting it on first use.
// serviceID and userID seed the active records of a newly created widget;
// they are ignored for one that already exists. ctx bounds only the seeding
// fetches; the started widget is tied to the manager's lifetime.
func (m *Manager) Get(ctx context.Context, id, serviceID, userID, origin string) (*Widget, error) {
	m.mu.Lock()
	if w, ok := m.widgets[id]; ok {
		m.mu.Unlock()
		return w, nil
	}
	m.mu.Unlock()

	w, err := m.factory(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.widgets[id]; ok {
		// Lost the creation race; discard ours.
		m.mu.Unlock()
		w.Close()
		return existing, nil
	}
	m.widgets[id] = w
	m.mu.Unlock()

	if err := w.Start(m.ctx, origin); err != nil {
		return nil, err
	}
	w.Seed(ctx, serviceID, userID)
	return w, nil
}

// Lookup returns an existing widget without creating one.
func (m *Manager) Lookup(id string) (*Widget, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.widgets[id]
	return w, ok
}

// Close stops every widget.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.widgets {
		w.Close()
	}
	m.widgets = make(map[string]*Widget)
}
