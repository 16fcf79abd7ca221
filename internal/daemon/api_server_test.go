package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamsync/internal/catalog"
	"streamsync/internal/config"
	"streamsync/internal/logging"
	"streamsync/internal/scheduler"
	"streamsync/internal/testsupport"
)

func newTestAPI(t *testing.T, token string) (*apiServer, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithAPI("127.0.0.1:0", token),
		testsupport.WithMerge("https://example.com/TWTV.m3u"),
		testsupport.WithGroups(config.Group{
			Name: "台灣頻道",
			File: "taiwan.m3u",
			Channels: []config.Channel{
				{Name: "華視", URL: "https://example.com/cts", Mode: config.ModeBrowser},
			},
		}),
	)

	logger := logging.NewNop()
	sched := scheduler.New(nil, time.Hour, nil, logger)
	d, err := New(cfg, sched, catalog.NewStore(cfg, logger), logger, "")
	require.NoError(t, err)
	require.NotNil(t, d.api)
	return d.api, cfg
}

func serve(srv *apiServer, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

func TestNewAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, newAPIServer(&cfg, &Daemon{}, nil))
}

func TestAPIHealthAndStatus(t *testing.T) {
	srv, _ := newTestAPI(t, "")

	w := serve(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = serve(srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Running)
	assert.Equal(t, scheduler.StateIdle, status.Scheduler.State)
	require.Len(t, status.Channels, 1)
	assert.Equal(t, "華視", status.Channels[0].Name)
}

func TestAPISyncRequiresToken(t *testing.T) {
	srv, _ := newTestAPI(t, "s3cret")

	w := serve(srv, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(srv, http.MethodPost, "/api/sync", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(srv, http.MethodPost, "/api/sync", "s3cret")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":true}`, w.Body.String())

	// A second request before the scheduler drains the first is coalesced.
	w = serve(srv, http.MethodPost, "/api/sync", "s3cret")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":false}`, w.Body.String())

	w = serve(srv, http.MethodGet, "/api/sync", "s3cret")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIServesOnlyKnownPlaylists(t *testing.T) {
	srv, cfg := newTestAPI(t, "")
	testsupport.WritePlaylist(t, filepath.Join(cfg.Paths.OutputDir, "taiwan.m3u"), "華視", "https://cdn.example/cts.m3u8")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.OutputDir, "secret.txt"), []byte("nope"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Merge.LocalPath), 0o755))
	require.NoError(t, os.WriteFile(cfg.Merge.LocalPath, []byte("#EXTM3U\n# master\n"), 0o644))

	w := serve(srv, http.MethodGet, "/playlists/taiwan.m3u", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, playlistContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "https://cdn.example/cts.m3u8")

	w = serve(srv, http.MethodGet, "/playlists/TWTV.m3u", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "# master"))

	w = serve(srv, http.MethodGet, "/playlists/secret.txt", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(srv, http.MethodGet, "/playlists/all.m3u", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not generated yet")

	w = serve(srv, http.MethodGet, "/playlists", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"playlists":["TWTV.m3u","taiwan.m3u"]}`, w.Body.String())
}
