package containerserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/internal/containerserver"
	"github.com/kagent-dev/codemode/pkg/executor"
	"github.com/kagent-dev/codemode/pkg/rpc"
	"github.com/kagent-dev/codemode/pkg/skills"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/tools"
)

func newTestServer(t *testing.T, authToken string, authDisabled bool) *containerserver.Server {
	t.Helper()
	backend := storage.NewFileBackend(t.TempDir(), testr.New(t))
	skillStore, err := backend.SkillSourceStore()
	require.NoError(t, err)

	cfg := containerserver.Config{
		Backend:            backend,
		ToolsRegistry:      tools.New(nil),
		SkillLibrary:       skills.New(skillStore, nil, nil, testr.New(t)),
		RuntimeDepsEnabled: true,
		SessionIdleTimeout: time.Hour,
		NewExecutor: func(d *rpc.Dispatcher) executor.Executor {
			return executor.NewInProcess(d)
		},
		AuthToken:    authToken,
		AuthDisabled: authDisabled,
		Log:          testr.New(t),
	}
	return containerserver.New(cfg)
}

func doJSON(t *testing.T, srv *containerserver.Server, method, path, sessionID, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthIsUnauthenticatedAndReportsUptime(t *testing.T) {
	srv := newTestServer(t, "secret", false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
	require.Contains(t, body, "uptime_seconds")
	require.NotContains(t, body, "active_sessions")
}

func TestExecuteRejectsMissingOrWrongBearerToken(t *testing.T) {
	srv := newTestServer(t, "secret", false)

	rec := doJSON(t, srv, http.MethodPost, "/execute", "", "", map[string]string{"code": "return 1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/execute", "", "wrong-token", map[string]string{"code": "return 1"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExecuteMisconfiguredAuthFailsClosed(t *testing.T) {
	srv := newTestServer(t, "", false)
	rec := doJSON(t, srv, http.MethodPost, "/execute", "", "anything", map[string]string{"code": "return 1"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExecuteCreatesSessionWhenHeaderAbsentAndPersistsState(t *testing.T) {
	srv := newTestServer(t, "secret", false)

	rec := doJSON(t, srv, http.MethodPost, "/execute", "", "secret", map[string]string{"code": "x = 41\nreturn x + 1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(42), resp["value"])
	sessionID, _ := resp["session_id"].(string)
	require.NotEmpty(t, sessionID)

	rec = doJSON(t, srv, http.MethodPost, "/execute", sessionID, "secret", map[string]string{"code": "return x"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(42), resp["value"])
}

func TestResetClearsSessionState(t *testing.T) {
	srv := newTestServer(t, "secret", false)

	rec := doJSON(t, srv, http.MethodPost, "/execute", "", "secret", map[string]string{"code": "x = 1\nreturn x"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	sessionID := resp["session_id"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/reset", sessionID, "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/execute", sessionID, "secret", map[string]string{"code": "return x"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp["value"])
}

func TestInfoListsToolsAndSkills(t *testing.T) {
	srv := newTestServer(t, "secret", false)
	rec := doJSON(t, srv, http.MethodGet, "/info", "", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "tools")
	require.Contains(t, body, "skills")
	require.Contains(t, body, "artifacts_path")
}

func TestInstallDepsRejectsFlagLikePackageNames(t *testing.T) {
	srv := newTestServer(t, "secret", false)

	rec := doJSON(t, srv, http.MethodPost, "/execute", "", "secret", map[string]string{"code": "return 1"})
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	sessionID := resp["session_id"].(string)

	rec = doJSON(t, srv, http.MethodPost, "/install_deps", sessionID, "secret", map[string][]string{
		"packages": {"-rf", "requests"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstallDepsUnknownSessionReturnsNotFound(t *testing.T) {
	srv := newTestServer(t, "secret", false)
	rec := doJSON(t, srv, http.MethodPost, "/install_deps", "does-not-exist", "secret", map[string][]string{
		"packages": {"requests"},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointExposesExecutionCounter(t *testing.T) {
	srv := newTestServer(t, "secret", false)
	doJSON(t, srv, http.MethodPost, "/execute", "", "secret", map[string]string{"code": "return 1"})

	rec := doJSON(t, srv, http.MethodGet, "/metrics", "", "secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "codemode_executions_total")
}

func TestAuthDisabledBypassesBearerCheck(t *testing.T) {
	srv := newTestServer(t, "", true)
	rec := doJSON(t, srv, http.MethodPost, "/execute", "", "", map[string]string{"code": "return 1"})
	require.Equal(t, http.StatusOK, rec.Code)
}
