package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/executor"
)

func newTestServer(t *testing.T, token string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": "ran:" + body.Code, "stdout": "", "execution_time_ms": 1,
		})
	})
	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return httptest.NewServer(mux)
}

func TestContainerStartHealthCheck(t *testing.T) {
	server := newTestServer(t, "secret")
	defer server.Close()

	c := executor.NewContainer(server.URL, "secret", nil)
	require.NoError(t, c.Start(context.Background(), nil))
}

func TestContainerRunSendsBearerToken(t *testing.T) {
	server := newTestServer(t, "secret")
	defer server.Close()

	c := executor.NewContainer(server.URL, "secret", nil)
	result := c.Run(context.Background(), "1+1", time.Second)
	require.NoError(t, result.Err)
	require.Equal(t, "ran:1+1", result.Value)
}

func TestContainerRunRejectsBadToken(t *testing.T) {
	server := newTestServer(t, "secret")
	defer server.Close()

	c := executor.NewContainer(server.URL, "wrong", nil)
	result := c.Run(context.Background(), "1+1", time.Second)
	require.Error(t, result.Err)
	require.Equal(t, errs.AuthInvalid, errs.KindOf(result.Err))
}

func TestRewriteLocalhost(t *testing.T) {
	require.Equal(t, "redis://host.docker.internal:6379", executor.RewriteLocalhost("redis://localhost:6379", "host.docker.internal"))
	require.Equal(t, "redis://host.docker.internal:6379", executor.RewriteLocalhost("redis://127.0.0.1:6379", "host.docker.internal"))
}

// TestManagedContainerStartCleansUpOnHealthCheckFailure exercises the real
// Docker path against an image with no /health endpoint: Start's wait
// strategy must time out, and the container it provisioned must not leak.
// It needs a Docker daemon, so it's skipped in short mode.
func TestManagedContainerStartCleansUpOnHealthCheckFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a Docker daemon")
	}

	c := executor.NewManagedContainer("alpine:3.20", "8181/tcp", "secret", nil)

	err := c.Start(context.Background(), nil)
	require.Error(t, err, "alpine has no /health endpoint, so the wait strategy must fail")

	// Start already tore the container down on failure; Close must still be
	// a safe, error-free no-op rather than double-removing it.
	require.NoError(t, c.Close(context.Background()))
}
