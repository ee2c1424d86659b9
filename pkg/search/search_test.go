package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lemonshq/lemonaide/pkg/errors"
)

func TestSearchMapsHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "web design" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("category"); got != "Web Design" {
			t.Errorf("category = %q", got)
		}
		if got := r.Header.Get("X-API-Key"); got != "key" {
			t.Errorf("api key = %q", got)
		}
		w.Write([]byte(`{"hits": [
			{"objectID": "svc_1", "title": "Landing pages", "packages": [
				{"price": 120, "delivery": "4 days"},
				{"price": 60, "delivery": "7 days"}
			]},
			{"title": "no id, dropped"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", nil)
	services, err := client.Search(context.Background(), Request{Query: "web design", Category: "Web Design"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("services = %+v", services)
	}
	if services[0].Price != 60 || services[0].DeliveryDays != 4 {
		t.Errorf("derived fields = %+v", services[0])
	}
}

func TestSearchUnconfigured(t *testing.T) {
	client := NewClient("", "", nil)
	_, err := client.Search(context.Background(), Request{Query: "x"})
	if !errors.IsCode(err, errors.ErrCodeConfigInvalid) {
		t.Errorf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestSearchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", nil)
	_, err := client.Search(context.Background(), Request{Query: "x"})
	if !errors.IsCode(err, errors.ErrCodeTransport) {
		t.Errorf("expected TRANSPORT, got %v", err)
	}
}
