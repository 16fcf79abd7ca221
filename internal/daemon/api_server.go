package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"streamsync/internal/config"
	"streamsync/internal/logging"
)

const playlistContentType = "audio/x-mpegurl; charset=utf-8"

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	files  map[string]string

	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when no bind address is configured. A nil
// *apiServer is safe to start and stop.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		token:  cfg.API.Token,
		logger: logger,
		daemon: d,
		files:  servedFiles(cfg, d),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// servedFiles maps public names to the aggregate playlists and, when merging
// is enabled, the master playlist. Nothing else under output_dir is served.
func servedFiles(cfg *config.Config, d *Daemon) map[string]string {
	files := make(map[string]string)
	for _, name := range d.store.AggregateFiles() {
		files[name] = filepath.Join(d.store.OutputDir(), name)
	}
	if cfg.Merge.Enabled && cfg.Merge.LocalPath != "" {
		files[filepath.Base(cfg.Merge.LocalPath)] = cfg.Merge.LocalPath
	}
	return files
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/sync", authMiddleware(s.token, s.handleSync))
	r.Post("/api/notifications/test", authMiddleware(s.token, s.handleTestNotification))
	r.Get("/playlists", s.handlePlaylistIndex)
	r.Get("/playlists/{file}", s.handlePlaylist)
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleSync(w http.ResponseWriter, _ *http.Request) {
	queued := s.daemon.TriggerSync()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sent": sent, "message": message})
}

func (s *apiServer) handlePlaylistIndex(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.files))
	for name, path := range s.files {
		if _, err := os.Stat(path); err == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	s.writeJSON(w, http.StatusOK, map[string][]string{"playlists": names})
}

func (s *apiServer) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	path, ok := s.files[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "playlist not found")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "playlist not generated yet")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", playlistContentType)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
