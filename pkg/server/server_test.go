package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/lemonshq/lemonaide/pkg/bridge"
	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/bus"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/record"
	"github.com/lemonshq/lemonaide/pkg/widget"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]record.Raw
}

func (f *fakeStore) FetchByID(ctx context.Context, slug, id string) (record.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.records[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found")
	}
	return raw, nil
}

func (f *fakeStore) Search(ctx context.Context, slug string, q bubble.Query) ([]record.Raw, error) {
	return nil, nil
}

func (f *fakeStore) Patch(ctx context.Context, slug, id string, fields map[string]any) error {
	return nil
}

type fixedSlugs struct{}

func (fixedSlugs) Resolve(ctx context.Context, category record.Category, force bool) (string, error) {
	return string(category), nil
}

func newTestServer(t *testing.T, store *fakeStore) (*Server, bus.MessageBus) {
	t.Helper()
	mb := bus.NewMemoryBus()
	t.Cleanup(func() { mb.Close() })

	manager := widget.NewManager(func(id string) (*widget.Widget, error) {
		return widget.New(widget.Options{
			WidgetID: id,
			Store:    store,
			Slugs:    fixedSlugs{},
			Bus:      mb,
		})
	})
	t.Cleanup(manager.Close)

	return New("127.0.0.1:0", manager, mb, nil), mb
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPostMessageAndTranscript(t *testing.T) {
	store := &fakeStore{records: map[string]record.Raw{
		"svc_1": {"_id": "svc_1", "title": "Landing pages"},
	}}
	s, _ := newTestServer(t, store)

	body := bytes.NewBufferString(`{"text": "improve my listing"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/w1/messages?service=svc_1", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}

	var resp struct {
		Facts string `json:"facts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Facts, "svc_1") {
		t.Errorf("facts = %s", resp.Facts)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/widgets/w1/transcript", nil))
	var tr struct {
		Entries []map[string]any `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
		t.Fatal(err)
	}
	// user text plus the synthetic refresh pair
	if len(tr.Entries) != 3 {
		t.Errorf("entries = %d", len(tr.Entries))
	}
}

func TestPostMessageRejectsEmptyBody(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/w1/messages", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListOperations(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/widgets/w1/operations", nil))
	var resp struct {
		Operations []map[string]any `json:"operations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Operations) != 10 {
		t.Errorf("operations = %d", len(resp.Operations))
	}
}

func TestExecuteOperationReturnsStructuredFailure(t *testing.T) {
	s, _ := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/w1/operations/updateServiceTitle",
		bytes.NewBufferString(`{"title": "New"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res struct {
		Success   bool   `json:"success"`
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Success || res.ErrorCode != string(errors.ErrCodePrecondition) {
		t.Errorf("result = %+v", res)
	}
}

func TestViewOffer(t *testing.T) {
	store := &fakeStore{records: map[string]record.Raw{
		"svc_1": {"_id": "svc_1", "title": "Landing pages"},
	}}
	s, _ := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/w1/view-offer",
		bytes.NewBufferString(`{"serviceId": "svc_1"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/widgets/w1/view-offer",
		bytes.NewBufferString(`{"serviceId": "svc_missing"}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d for missing service", rec.Code)
	}
}

func TestBridgeSocketRoundTrip(t *testing.T) {
	store := &fakeStore{records: map[string]record.Raw{
		"svc_1": {"_id": "svc_1", "title": "Landing pages"},
	}}
	s, mb := newTestServer(t, store)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/widgets/w1/bridge"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	payload, _ := json.Marshal(map[string]any{"serviceId": "svc_1"})
	env, _ := json.Marshal(bridge.Envelope{ID: "e1", Type: bridge.EventActiveServiceID, Payload: payload})
	if err := conn.Write(ctx, websocket.MessageText, env); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The widget emits an outbound event when we notify through the bus.
	time.Sleep(100 * time.Millisecond)
	notify, _ := json.Marshal(bridge.Envelope{ID: "e2", Type: bridge.EventServiceUpdated})
	mb.Publish(ctx, bus.OutboundSubject("w1"), notify)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got bridge.Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != bridge.EventServiceUpdated {
		t.Errorf("type = %s", got.Type)
	}
}
