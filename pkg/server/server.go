// Package server exposes the widget runtime over HTTP: conversation and
// context endpoints for the chat shell, a WebSocket bridge gateway for the
// host page, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lemonshq/lemonaide/pkg/bus"
	"github.com/lemonshq/lemonaide/pkg/errors"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/widget"
)

// Server is the HTTP surface of the runtime.
type Server struct {
	manager *widget.Manager
	bus     bus.MessageBus
	logger  *logging.Logger
	httpSrv *http.Server
}

// New creates a server bound to addr. mb carries bridge traffic between the
// WebSocket gateway and the widgets.
func New(addr string, manager *widget.Manager, mb bus.MessageBus, logger *logging.Logger) *Server {
	s := &Server{manager: manager, bus: mb, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/widgets/{widgetID}", func(r chi.Router) {
		r.Post("/messages", s.handlePostMessage)
		r.Get("/transcript", s.handleGetTranscript)
		r.Get("/facts", s.handleGetFacts)
		r.Get("/operations", s.handleListOperations)
		r.Post("/operations/{name}", s.handleExecuteOperation)
		r.Post("/view-offer", s.handleViewOffer)
		r.Get("/bridge", s.handleBridgeSocket)
	})

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router (tests).
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving HTTP until the listener fails or Shutdown is
// called.
func (s *Server) ListenAndServe() error {
	s.logger.Info(logging.CategoryServer, "listening", "", map[string]any{"addr": s.httpSrv.Addr})
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// getWidget resolves the widget for a request, creating it on first contact.
// The embed URL's service/user query params seed the active records.
func (s *Server) getWidget(r *http.Request) (*widget.Widget, error) {
	return s.manager.Get(
		r.Context(),
		chi.URLParam(r, "widgetID"),
		r.URL.Query().Get("service"),
		r.URL.Query().Get("user"),
		r.Header.Get("Origin"),
	)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	wid, err := s.getWidget(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"text\": ...}")
		return
	}

	entry := wid.HandleUserMessage(r.Context(), body.Text)
	writeJSON(w, http.StatusOK, map[string]any{
		"entry": entry,
		"facts": wid.ContextFacts(),
	})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	wid, err := s.getWidget(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": wid.Transcript().Entries()})
}

func (s *Server) handleGetFacts(w http.ResponseWriter, r *http.Request) {
	wid, err := s.getWidget(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(wid.ContextFacts()))
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	wid, err := s.getWidget(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": wid.Registry().Declarations()})
}

func (s *Server) handleExecuteOperation(w http.ResponseWriter, r *http.Request) {
	wid, err := s.getWidget(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var params map[string]any
	if r.Body != nil {
		// An empty body means no arguments.
		_ = json.NewDecoder(r.Body).Decode(&params)
	}

	res := wid.ExecuteOperation(r.Context(), chi.URLParam(r, "name"), params)
	writeJSON(w, http.StatusOK, res)
}

// handleViewOffer reports a result-card click from the chat shell. The widget
// loads the service and relays it to the host as a navigation event.
func (s *Server) handleViewOffer(w http.ResponseWriter, r *http.Request) {
	wid, err := s.getWidget(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var body struct {
		ServiceID string `json:"serviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"serviceId\": ...}")
		return
	}

	svc, err := wid.ViewOffer(r.Context(), body.ServiceID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeRecordNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": svc})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
