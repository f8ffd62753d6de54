package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"autoenroll/internal/config"
)

type restServer struct {
	submit Submit
	logger *slog.Logger
}

// StartREST serves the push ingest endpoint: POST /notifications with one
// envelope or an array of envelopes.
func StartREST(ctx context.Context, cfg *config.Manager, submit Submit, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := &restServer{submit: submit, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/notifications", server.handleNotifications)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *restServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	trim := bytes.TrimSpace(body)
	if len(trim) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	accepted := 0
	failed := 0
	if trim[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trim, &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, raw := range list {
			if s.processOne(raw) {
				accepted++
			} else {
				failed++
			}
		}
	} else {
		if s.processOne(trim) {
			accepted++
		} else {
			failed++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": accepted,
		"failed":   failed,
	})
}

func (s *restServer) processOne(raw []byte) bool {
	n, err := DecodeEnvelope(raw)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest envelope decode error", "err", err)
		}
		return false
	}
	return s.submit(n)
}
