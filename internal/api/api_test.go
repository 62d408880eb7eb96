package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/relay"
	"github.com/echorelay-project/echorelay/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var player = protocol.XPlatformID{Platform: protocol.PlatformSTM, AccountID: 76561}

type apiHarness struct {
	cfg   *config.Config
	relay *relay.Relay
	http  *httptest.Server
}

func newAPIHarness(t *testing.T, mutate func(*config.Config)) *apiHarness {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.UpdateField("api", "auth_disabled", false))
	require.NoError(t, cfg.UpdateField("api", "jwt_secret", testSecret))
	require.NoError(t, cfg.UpdateField("api", "rate_limit_rps", 0))
	require.NoError(t, cfg.UpdateField("serverdb", "api_key", "server-secret"))
	if mutate != nil {
		mutate(cfg)
	}

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	bus := events.NewEventBus()
	r, err := relay.New(context.Background(), cfg, bus, relay.Options{Store: store})
	require.NoError(t, err)

	NewServer(cfg, r, nil).Mount()
	ts := httptest.NewServer(r.Server())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Shutdown(ctx)
		bus.Stop()
	})
	return &apiHarness{cfg: cfg, relay: r, http: ts}
}

func (h *apiHarness) token(t *testing.T, perms ...string) string {
	t.Helper()
	token, err := IssueToken(testSecret, "tester", perms, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.http.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (h *apiHarness) seedAccount(t *testing.T) {
	t.Helper()
	account, err := storage.NewAccount(player, "Rookie", time.Now())
	require.NoError(t, err)
	require.NoError(t, h.relay.Resources().SaveAccount(context.Background(), account))
}

func TestPublicEndpoints(t *testing.T) {
	h := newAPIHarness(t, nil)

	status, body := h.do(t, http.MethodGet, "/api/public/ping", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = h.do(t, http.MethodGet, "/api/public/info", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "system")
	assert.Len(t, body["services"], 5)

	status, _ = h.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAuthAndPermissions(t *testing.T) {
	h := newAPIHarness(t, nil)

	status, _ := h.do(t, http.MethodGet, "/api/monitor/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.do(t, http.MethodGet, "/api/monitor/stats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	forged, err := IssueToken(strings.Repeat("x", 32), "tester", AllPermissions, time.Hour)
	require.NoError(t, err)
	status, _ = h.do(t, http.MethodGet, "/api/monitor/stats", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	monitor := h.token(t, PermMonitor)
	status, body := h.do(t, http.MethodGet, "/api/monitor/stats", monitor, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "matching")

	status, body = h.do(t, http.MethodGet, "/api/configure/config", monitor, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, PermConfigure, body["required"])
}

func TestAuthDisabledGrantsEverything(t *testing.T) {
	h := newAPIHarness(t, func(c *config.Config) {
		require.NoError(t, c.UpdateField("api", "auth_disabled", true))
	})
	status, _ := h.do(t, http.MethodGet, "/api/monitor/peers", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodGet, "/api/monitor/peers?service=bogus", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestModerationEndpoints(t *testing.T) {
	h := newAPIHarness(t, nil)
	h.seedAccount(t)
	control := h.token(t, PermControl)
	id := player.String()

	status, body := h.do(t, http.MethodGet, "/api/control/accounts/"+id, control, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Rookie", body["display_name"])
	assert.Equal(t, false, body["banned"])

	status, _ = h.do(t, http.MethodPost, "/api/control/accounts/"+id+"/ban", control, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(t, http.MethodPost, "/api/control/accounts/"+id+"/ban", control, map[string]any{"minutes": 30})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["banned"])

	status, body = h.do(t, http.MethodPost, "/api/control/accounts/"+id+"/unban", control, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["banned"])

	status, body = h.do(t, http.MethodPost, "/api/control/accounts/"+id+"/moderator", control, map[string]any{"moderator": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_moderator"])

	status, body = h.do(t, http.MethodPost, "/api/control/accounts/"+id+"/kick", control, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["kicked"])

	status, _ = h.do(t, http.MethodGet, "/api/control/accounts/OVR-1", control, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConfigEndpoints(t *testing.T) {
	h := newAPIHarness(t, nil)
	configure := h.token(t, PermConfigure)

	req, err := http.NewRequest(http.MethodGet, h.http.URL+"/api/configure/config", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+configure)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "max_candidates")
	assert.NotContains(t, string(raw), testSecret)
	assert.NotContains(t, string(raw), "server-secret")

	status, _ := h.do(t, http.MethodPost, "/api/configure/config", configure,
		map[string]any{"section": "matching", "key": "max_candidates", "value": 25})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 25, h.cfg.GetMatching().MaxCandidates)

	status, body := h.do(t, http.MethodPost, "/api/configure/config", configure,
		map[string]any{"section": "matching", "key": "max_candidates", "value": 0})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "details")
	assert.Equal(t, 25, h.cfg.GetMatching().MaxCandidates)

	status, _ = h.do(t, http.MethodPost, "/api/configure/config", configure,
		map[string]any{"section": "matching", "key": "nope", "value": 1})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(t, http.MethodGet, "/api/configure/service_config?server=true&host=10.0.0.5", configure, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ws://10.0.0.5:777/serverdb?api_key=server-secret", body["serverdb_host"])
}

func TestRateLimiter(t *testing.T) {
	h := newAPIHarness(t, func(c *config.Config) {
		require.NoError(t, c.UpdateField("api", "rate_limit_rps", 1))
	})

	var codes []int
	for i := 0; i < 3; i++ {
		status, _ := h.do(t, http.MethodGet, "/api/public/ping", "", nil)
		codes = append(codes, status)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestTokens(t *testing.T) {
	_, err := IssueToken(testSecret, "x", []string{"root"}, time.Hour)
	assert.Error(t, err)
	_, err = IssueToken("", "x", nil, time.Hour)
	assert.Error(t, err)

	expired, err := IssueToken(testSecret, "x", AllPermissions, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.Error(t, err)

	good, err := IssueToken(testSecret, "ops", []string{PermMonitor}, time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(testSecret, good)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, []string{PermMonitor}, claims.Perms)

	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Empty(t, extractBearerToken("Basic abc"))
}
