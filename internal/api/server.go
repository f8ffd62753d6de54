// Package api exposes the operational HTTP surface: status, per-stream
// counters, recent enrollments and admin actions.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autoenroll/internal/config"
	"autoenroll/internal/history"
	"autoenroll/internal/model"
	"autoenroll/internal/stats"
)

// PipelineInfo reports live pipeline state for the status endpoint.
type PipelineInfo interface {
	ActiveTracklets() int
}

type Server struct {
	cfg      *config.Manager
	stats    *stats.Store
	history  *history.Store
	pipeline PipelineInfo
	logger   *slog.Logger
	version  string
}

type statusResponse struct {
	Status          string         `json:"status"`
	Time            string         `json:"time"`
	Version         string         `json:"version"`
	ConfigPath      string         `json:"config_path"`
	ActiveTracklets int            `json:"active_tracklets"`
	Ingest          ingestStatus   `json:"ingest"`
	Pipeline        pipelineStatus `json:"pipeline"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
}

type pipelineStatus struct {
	MaxParallelBlocks int    `json:"max_parallel_blocks"`
	TrackletTimeout   string `json:"tracklet_timeout"`
	Streams           int    `json:"configured_streams"`
}

func Start(ctx context.Context, cfg *config.Manager, statsStore *stats.Store, historyStore *history.Store, pipeline PipelineInfo, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:      cfg,
		stats:    statsStore,
		history:  historyStore,
		pipeline: pipeline,
		logger:   logger,
		version:  version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/stats/", server.handleStats)
	mux.HandleFunc("/enrollments", server.handleEnrollments)
	mux.HandleFunc("/admin/clear", server.handleClear)

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
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	active := 0
	if s.pipeline != nil {
		active = s.pipeline.ActiveTracklets()
	}
	resp := statusResponse{
		Status:          "ok",
		Time:            time.Now().UTC().Format(time.RFC3339Nano),
		Version:         s.version,
		ConfigPath:      s.cfg.Path(),
		ActiveTracklets: active,
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
		},
		Pipeline: pipelineStatus{
			MaxParallelBlocks: cfg.Pipeline.MaxParallelBlocks,
			TrackletTimeout:   cfg.Pipeline.TrackletTimeout.String(),
			Streams:           len(cfg.Streams.Overrides),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/stats")
	path = strings.TrimPrefix(path, "/")
	if path != "" {
		counters, updated, ok := s.stats.Get(path)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stream_id":  path,
			"updated_at": updated.Format(time.RFC3339Nano),
			"counters":   counters,
		})
		return
	}
	all := s.stats.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"streams": all,
		"count":   len(all),
	})
}

func (s *Server) handleEnrollments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.EnrollmentRecord
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.history.Since(ts)
	} else {
		list = s.history.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enrollments": list,
		"count":       len(list),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.stats.Clear()
		s.history.Clear()
	case "stats":
		s.stats.Clear()
	case "enrollments":
		s.history.Clear()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if s.logger != nil {
		s.logger.Info("admin clear", "target", target)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
