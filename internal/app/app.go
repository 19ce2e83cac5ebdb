// Package app wires together the recorder daemon's services and manages
// their lifecycle, the way the teacher's internal/app package wires the
// MQTT broker, store, and HTTP server together.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/jki757/topicrecorder/discoverynet"
	"github.com/jki757/topicrecorder/internal/config"
	"github.com/jki757/topicrecorder/logstore"
	"github.com/jki757/topicrecorder/pubsubnode"
	"github.com/jki757/topicrecorder/recorder"
)

// App wires together the recorder daemon's services and manages their lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	node *pubsubnode.Node
	rec  *recorder.Recorder
	mdns *mdnsServer
}

// New constructs a new application instance.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run starts all configured services and blocks until the context is
// cancelled or an unrecoverable error occurs.
func (a *App) Run(ctx context.Context) error {
	processID := uuid.New().String()

	disco := discoverynet.New(processID, a.cfg.DiscoveryPort, a.logger)
	a.node = pubsubnode.New(a.cfg.Partition)

	rec, err := recorder.New(recorder.Deps{
		Discovery: disco,
		Node:      a.node,
		NewLog:    func() recorder.Log { return logstore.New(a.logger) },
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	a.rec = rec

	if err := rec.Start(a.cfg.DatabasePath); err != nil {
		a.logger.Warn("failed to start recording at launch", "error", err)
	}

	if err := a.startMDNS(); err != nil {
		a.logger.Warn("mDNS advertisement failed", "error", err)
	} else {
		defer a.stopMDNS()
	}

	httpErrCh := make(chan error, 1)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler: a.routes(),
	}

	go func() {
		a.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown", "error", err)
		}
		if err := a.rec.Close(); err != nil {
			a.logger.Error("recorder close", "error", err)
		}
		return nil
	case err := <-httpErrCh:
		_ = a.rec.Close()
		return err
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/patterns", a.handleAddPattern)
	mux.HandleFunc("/api/recording/start", a.handleStartRecording)
	mux.HandleFunc("/api/recording/stop", a.handleStopRecording)
	return mux
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	pattern, err := regexp.Compile(body.Pattern)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid pattern: %v", err), http.StatusBadRequest)
		return
	}

	count, err := a.rec.AddTopicPattern(pattern)
	if err != nil {
		a.logger.Error("add pattern failed", "pattern", body.Pattern, "error", err)
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"new_subscriptions": count})
}

func (a *App) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	if err := a.rec.Start(body.Path); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrAlreadyRecording) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.rec.Stop()
	w.WriteHeader(http.StatusNoContent)
}
