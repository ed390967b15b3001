// Package serve exposes media resolution over HTTP and the configured image
// decoder over NATS request/reply.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/gftdcojp/wxmedia/internal/resolve"
	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/types"
	"github.com/gftdcojp/wxmedia/internal/voice"
	"go.uber.org/zap"
)

// Media is the resolver surface the API needs.
type Media interface {
	Resolve(ctx context.Context, req types.MediaRequest) (types.MediaResult, error)
	ImageForMessage(ctx context.Context, imgPath, msgSvrID string) (types.MediaResult, error)
	PrefetchVoice(paths []string) map[string]*voice.Task
	Status() resolve.Status
}

type handler struct {
	media  Media
	layout resource.Layout
	logger *zap.Logger
}

// NewMux registers the API routes.
func NewMux(media Media, layout resource.Layout, logger *zap.Logger) *http.ServeMux {
	h := &handler{media: media, layout: layout, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", h.handleStatus)
	mux.HandleFunc("GET /v1/avatars/{username}", h.handleAvatar)
	mux.HandleFunc("GET /v1/emojis/{digest}", h.handleEmoji)
	mux.HandleFunc("GET /v1/images", h.handleImage)
	mux.HandleFunc("GET /v1/voices/{path}", h.handleVoice)
	mux.HandleFunc("POST /v1/voices/prefetch", h.handlePrefetch)
	mux.HandleFunc("GET /v1/videos/{id}", h.handleVideo)
	mux.HandleFunc("GET /v1/paths", h.handlePaths)
	return mux
}

// RunHTTP starts the HTTP API server and stops it when ctx is done.
func RunHTTP(ctx context.Context, cfg config.APIConfig, media Media, layout resource.Layout, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: NewMux(media, layout, logger),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP API listening", zap.String("addr", cfg.Listen))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type mediaResponse struct {
	Kind        string `json:"kind"`
	Key         string `json:"key"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	Path        string `json:"path,omitempty"`
	Data        string `json:"data,omitempty"`
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"resolver": h.media.Status(),
	})
}

func (h *handler) handleAvatar(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, types.MediaRequest{Kind: types.KindAvatar, PrimaryKey: r.PathValue("username")})
}

func (h *handler) handleEmoji(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, types.MediaRequest{Kind: types.KindEmoji, PrimaryKey: r.PathValue("digest")})
}

func (h *handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, types.MediaRequest{Kind: types.KindVoice, PrimaryKey: r.PathValue("path")})
}

func (h *handler) handleVideo(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, types.MediaRequest{Kind: types.KindVideo, PrimaryKey: r.PathValue("id")})
}

func (h *handler) handleImage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}
	res, err := h.media.ImageForMessage(r.Context(), path, r.URL.Query().Get("msg_svr_id"))
	h.respond(w, r, types.KindChatImage, path, res, err)
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request, req types.MediaRequest) {
	res, err := h.media.Resolve(r.Context(), req)
	h.respond(w, r, req.Kind, req.PrimaryKey, res, err)
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request, kind types.Kind, key string, res types.MediaResult, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, types.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, resolve.ErrUnknownKind):
			status = http.StatusBadRequest
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
		if status == http.StatusInternalServerError {
			h.logger.Error("resolve failed", zap.String("kind", kind.String()), zap.String("key", key), zap.Error(err))
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	if !res.Found() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.URL.Query().Get("raw") == "1" {
		if res.Path != "" {
			w.Header().Set("Content-Type", res.Format.ContentType())
			http.ServeFile(w, r, res.Path)
			return
		}
		w.Header().Set("Content-Type", res.Format.ContentType())
		w.WriteHeader(http.StatusOK)
		w.Write(res.Payload)
		return
	}

	writeJSON(w, http.StatusOK, mediaResponse{
		Kind:        kind.String(),
		Key:         key,
		Format:      string(res.Format),
		ContentType: res.Format.ContentType(),
		DurationMS:  res.DurationMS,
		Path:        res.Path,
		Data:        res.Base64(),
	})
}

type prefetchRequest struct {
	Paths []string `json:"paths"`
}

func (h *handler) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var req prefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return
	}
	tasks := h.media.PrefetchVoice(req.Paths)
	writeJSON(w, http.StatusAccepted, map[string]int{"submitted": len(tasks)})
}

func (h *handler) handlePaths(w http.ResponseWriter, r *http.Request) {
	wcf := r.URL.Query().Get("wcf")
	paths, err := h.layout.Alternatives(wcf)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wcf": wcf, "paths": paths})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
