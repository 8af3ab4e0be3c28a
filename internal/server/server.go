// Package server exposes the push supply path: the external chain listener
// POSTs an event notification and the engine processes it inline. Lost
// notifications are recovered by the fallback poller.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/pkg/models"
)

// Processor evaluates one event by id.
type Processor interface {
	ProcessEvent(ctx context.Context, eventID string) error
}

type HTTPServer struct {
	server    *http.Server
	processor Processor
}

// NewHTTPServer builds the push endpoint server listening on addr.
func NewHTTPServer(addr string, proc Processor) *HTTPServer {
	s := &HTTPServer{processor: proc}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/notify", s.handleNotify)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *HTTPServer) Start() {
	logger.L().Info("Starting HTTP server", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	logger.L().Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleNotify admits and evaluates the announced event. Duplicate
// notifications are dropped by admission and still answer 200 so the listener
// never retries a delivery that already landed.
func (s *HTTPServer) handleNotify(w http.ResponseWriter, r *http.Request) {
	var n models.EventNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid notification payload", http.StatusBadRequest)
		return
	}
	if n.EventID == "" {
		http.Error(w, "event_id is required", http.StatusBadRequest)
		return
	}

	if err := s.processor.ProcessEvent(r.Context(), n.EventID); err != nil {
		logger.L().Error("Push notification processing failed", "event_id", n.EventID, "error", err)
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "event_id": n.EventID})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
