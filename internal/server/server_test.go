package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/config"
	"github.com/k1tz03/Forkfall/internal/guard"
	"github.com/k1tz03/Forkfall/internal/identity"
	"github.com/k1tz03/Forkfall/internal/moderation"
	"github.com/k1tz03/Forkfall/internal/repository/memory"
	"github.com/k1tz03/Forkfall/internal/service"
)

const moderatorToken = "mod-token"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Auth.ModeratorToken = moderatorToken
	cfg.Server.DeviceAuthRate = 100
	cfg.Server.DeviceAuthBurst = 100

	logger := zap.NewNop()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memory.NewStore()
	g := guard.New(store.Actors(), memory.NewRateCounter(), logger)
	id := identity.NewManager(store.Masks(), store.Sessions(), logger)
	gate := moderation.NewGate(store.Reports(), store.Forks(), store.Actors(), nil, 100, time.Minute, logger)

	srv, err := NewServer(cfg, Services{
		Auth:     service.NewAuthService(store.Actors(), cfg.Auth.JWTSecret, cfg.Auth.FingerprintKey, logger),
		Feed:     service.NewFeedService(store.Forks(), store.Interactions(), g, id, gate, 500, logger),
		Forks:    service.NewForkService(store.Forks(), store.Interactions(), g, id, gate, logger),
		Identity: id,
	}, log, logger)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func login(t *testing.T, h http.Handler, device string) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/auth/device", "", map[string]string{"device_fingerprint": device})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func TestPing(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/v1/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/feed", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/auth/device", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForkLifecycle(t *testing.T) {
	h := newTestServer(t)
	token := login(t, h, "device-a")

	w := do(t, h, http.MethodPut, "/api/v1/session", token, map[string]string{"lane": "debate", "energy": "intense"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/v1/forks", token, map[string]any{
		"prompt": "Tabs or spaces?", "left_label": "Tabs", "right_label": "Spaces", "intent_lane": "debate", "energy": "intense",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	forkID := decode(t, w)["id"].(string)

	w = do(t, h, http.MethodPost, "/api/v1/forks", token, map[string]any{
		"prompt": "Tabs or spaces, forever?", "left_label": "Tabs", "right_label": "Spaces", "intent_lane": "debate",
		"parent_fork_id": forkID, "mutation_type": "escalate",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	childID := decode(t, w)["id"].(string)

	w = do(t, h, http.MethodGet, "/api/v1/forks/"+childID+"/lineage", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["forks"], 2)

	w = do(t, h, http.MethodGet, "/api/v1/forks/"+forkID+"/children", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["forks"], 1)

	interaction := map[string]any{"id": uuid.NewString(), "type": "swipe_left", "dwell_ms": 1200}
	w = do(t, h, http.MethodPost, "/api/v1/forks/"+forkID+"/interact", token, interaction)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, h, http.MethodPost, "/api/v1/forks/"+forkID+"/interact", token, interaction)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["applied"])

	w = do(t, h, http.MethodGet, "/api/v1/forks/"+forkID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["left_count"])

	w = do(t, h, http.MethodGet, "/api/v1/feed", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	feed := decode(t, w)
	assert.Len(t, feed["forks"], 2)
	assert.Equal(t, "debate", feed["lane"])
	assert.Equal(t, false, feed["has_more"])
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(t)
	token := login(t, h, "device-b")

	w := do(t, h, http.MethodPost, "/api/v1/forks", token, map[string]any{
		"prompt": strings.Repeat("a", 91), "left_label": "A", "right_label": "B", "intent_lane": "vibe",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/forks", token, map[string]any{
		"prompt": "Up or down?", "left_label": "Up", "right_label": "Down", "intent_lane": "sideways",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/forks/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/forks/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/feed?limit=zero", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := map[string]any{"prompt": "Now or later?", "left_label": "Now", "right_label": "Later", "intent_lane": "decide"}
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/forks", token, body).Code)
	}
	w = do(t, h, http.MethodPost, "/api/v1/forks", token, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "hour", decode(t, w)["window"])
}

func TestModeratorTransition(t *testing.T) {
	h := newTestServer(t)
	token := login(t, h, "device-c")

	w := do(t, h, http.MethodPost, "/api/v1/forks", token, map[string]any{
		"prompt": "Cake or pie?", "left_label": "Cake", "right_label": "Pie", "intent_lane": "vibe",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	forkID := decode(t, w)["id"].(string)

	w = do(t, h, http.MethodPost, "/api/v1/forks/"+forkID+"/report", login(t, h, "device-d"), map[string]string{"reason": "spam"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reportID := decode(t, w)["id"].(string)

	path := "/api/v1/moderation/reports/" + reportID + "/transition"

	w = do(t, h, http.MethodPost, path, token, map[string]string{"state": "reviewed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodPost, path, moderatorToken, map[string]string{"state": "actioned"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, path, moderatorToken, map[string]string{"state": "reviewed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "reviewed", decode(t, w)["state"])

	w = do(t, h, http.MethodPost, path, moderatorToken, map[string]string{"state": "actioned"})
	require.Equal(t, http.StatusOK, w.Code)
}
