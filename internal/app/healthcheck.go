package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/grammar"
)

// progress counts analysed tasks for the health endpoint.
type progress struct {
	tasks  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
}

func (p *progress) record(r *grammar.Result) {
	p.done.Add(1)
	if r.Failed() {
		p.failed.Add(1)
	}
}

type healthStatus struct {
	Status string `json:"status"`
	Tasks  int64  `json:"tasks"`
	Done   int64  `json:"done"`
	Failed int64  `json:"failed"`
}

// healthHandler reports liveness and analysis progress.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthStatus{
		Status: "ok",
		Tasks:  a.progress.tasks.Load(),
		Done:   a.progress.done.Load(),
		Failed: a.progress.failed.Load(),
	})
}

// startHealthcheckServer runs the health check HTTP server in the background.
func (a *App) startHealthcheckServer(ctx context.Context, port int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeHealthCheckServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	return nil
}
