package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/nats-io/nats.go"
)

// HealthStatus represents the overall health state.
type HealthStatus struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks,omitempty"`
}

// Check represents an individual health check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Pinger is a dependency with a cheap liveness probe (catalog store).
type Pinger interface {
	Ping() error
}

// RemotePinger is a network dependency probed with a deadline (S3).
type RemotePinger interface {
	Ping(ctx context.Context) error
}

// Availability reports whether an optional facility is configured (codec).
type Availability interface {
	Available() bool
}

// HealthChecker runs health probes.
type HealthChecker struct {
	natsConn *nats.Conn
	catalog  Pinger
	blob     RemotePinger
	codec    Availability
}

// NewHealthChecker creates a new health checker. Any dependency may be nil.
func NewHealthChecker(nc *nats.Conn, catalog Pinger, blob RemotePinger, codec Availability) *HealthChecker {
	return &HealthChecker{
		natsConn: nc,
		catalog:  catalog,
		blob:     blob,
		codec:    codec,
	}
}

// Liveness checks if the process is alive.
func (h *HealthChecker) Liveness() HealthStatus {
	return HealthStatus{OK: true}
}

// Readiness checks if the service can handle requests. A missing image
// decoder is reported but does not fail readiness.
func (h *HealthChecker) Readiness() HealthStatus {
	status := HealthStatus{OK: true}

	if h.natsConn != nil {
		if !h.natsConn.IsConnected() {
			status.OK = false
			status.Checks = append(status.Checks, Check{Name: "nats", Status: "disconnected"})
		} else {
			status.Checks = append(status.Checks, Check{Name: "nats", Status: "connected"})
		}
	}

	if h.catalog != nil {
		if err := h.catalog.Ping(); err != nil {
			status.OK = false
			status.Checks = append(status.Checks, Check{
				Name: "catalog", Status: "error", Error: err.Error(),
			})
		} else {
			status.Checks = append(status.Checks, Check{Name: "catalog", Status: "ok"})
		}
	}

	if h.blob != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.blob.Ping(ctx); err != nil {
			status.OK = false
			status.Checks = append(status.Checks, Check{
				Name: "s3", Status: "error", Error: err.Error(),
			})
		} else {
			status.Checks = append(status.Checks, Check{Name: "s3", Status: "ok"})
		}
	}

	if h.codec != nil {
		s := "configured"
		if !h.codec.Available() {
			s = "not_configured"
		}
		status.Checks = append(status.Checks, Check{Name: "codec", Status: s})
	}

	return status
}

// HealthMux builds the liveness and readiness routes.
func HealthMux(cfg config.HealthConfig, checker *HealthChecker) *http.ServeMux {
	livenessPath := cfg.LivenessPath
	if livenessPath == "" {
		livenessPath = "/healthz"
	}
	readinessPath := cfg.ReadinessPath
	if readinessPath == "" {
		readinessPath = "/readyz"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(livenessPath, func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, checker.Liveness())
	})
	mux.HandleFunc(readinessPath, func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, checker.Readiness())
	})
	return mux
}

func writeStatus(w http.ResponseWriter, status HealthStatus) {
	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// RunHealthServer starts the health check HTTP server.
func RunHealthServer(ctx context.Context, cfg config.HealthConfig, checker *HealthChecker) error {
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: HealthMux(cfg, checker),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
