package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/luaconv"
	"github.com/kagent-dev/codemode/pkg/storage"
)

// Container is Backend 3 of spec §4.6: the host talks HTTP to a container
// running internal/containerserver. Two ways to obtain one: NewContainer
// points at a container an operator already deployed and left reachable at
// a fixed baseURL (e.g. a Kubernetes sidecar with a service DNS name);
// NewManagedContainer additionally owns that container's full Docker
// lifecycle — Start provisions it, Close stops and force-removes it, per
// spec §4.8.
type Container struct {
	baseURL    string
	authToken  string
	sessionID  string
	httpClient *http.Client
	caps       CapabilitySet

	// Set only by NewManagedContainer; provision() fills managed in once
	// the container is created, and Close tears it down.
	image   string
	apiPort string
	managed testcontainers.Container
}

// NewContainer builds a container-backed executor that talks to an
// already-running, externally managed container at baseURL. baseURL is
// used as given; RewriteLocalhost is the separate helper for storage URLs
// that must be reachable from inside the container.
func NewContainer(baseURL, authToken string, httpClient *http.Client) *Container {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0}
	}
	return &Container{
		baseURL:    baseURL,
		authToken:  authToken,
		sessionID:  uuid.NewString(),
		httpClient: httpClient,
		caps:       NewCapabilitySet(Timeout, ProcessIsolation, Reset, DepsInstall, DepsUninstall),
	}
}

// NewManagedContainer builds a container-backed executor that provisions
// its own Docker container running image on Start and destroys it on
// Close. apiPort is the container's internal listen port in Docker's
// "<port>/<proto>" notation (e.g. "8181/tcp"), matching
// CONTAINER_LISTEN_ADDR inside the image.
func NewManagedContainer(image, apiPort, authToken string, httpClient *http.Client) *Container {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0}
	}
	return &Container{
		authToken:  authToken,
		sessionID:  uuid.NewString(),
		httpClient: httpClient,
		caps:       NewCapabilitySet(Timeout, ProcessIsolation, Reset, DepsInstall, DepsUninstall),
		image:      image,
		apiPort:    apiPort,
	}
}

func (e *Container) Supports(c Capability) bool           { return e.caps.Has(c) }
func (e *Container) SupportedCapabilities() CapabilitySet { return e.caps }

// RewriteLocalhost rewrites a host-side "localhost"/"127.0.0.1" KV URL to
// the container-gateway alias so the container can reach storage bound to
// the host's loopback interface, per spec §4.6.
func RewriteLocalhost(url, gatewayAlias string) string {
	url = strings.Replace(url, "localhost", gatewayAlias, 1)
	url = strings.Replace(url, "127.0.0.1", gatewayAlias, 1)
	return url
}

// Start provisions this executor's own container when it was built via
// NewManagedContainer, then probes /health either way. access is not
// forwarded to the container: provisioning sets only CONTAINER_AUTH_TOKEN,
// and the container reads its storage settings (a bind-mounted directory or
// a KV URL/prefix) from its own environment. A
// health-check failure after provisioning tears the partially-created
// container back down rather than leaking it, per spec §4.8.
func (e *Container) Start(ctx context.Context, access storage.AccessDescriptor) error {
	if e.image != "" {
		if err := e.provision(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		e.cleanupFailedStart(ctx)
		return err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.cleanupFailedStart(ctx)
		return errs.Wrap(errs.Unavailable, "Container.Start", "health check", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.cleanupFailedStart(ctx)
		return errs.New(errs.Unavailable, "Container.Start", fmt.Sprintf("health check returned %d", resp.StatusCode))
	}
	return nil
}

// provision runs e.image via testcontainers-go, waiting for it to answer
// /health on its own before returning, and records the host-mapped baseURL
// callers should reach it at.
func (e *Container) provision(ctx context.Context) error {
	port := nat.Port(e.apiPort)
	req := testcontainers.ContainerRequest{
		Image:        e.image,
		ExposedPorts: []string{e.apiPort},
		Env: map[string]string{
			"CONTAINER_AUTH_TOKEN": e.authToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort(port).WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return errs.Wrap(errs.Unavailable, "Container.Start", "provision container", err)
	}
	e.managed = container

	host, err := container.Host(ctx)
	if err != nil {
		e.cleanupFailedStart(ctx)
		return errs.Wrap(errs.Unavailable, "Container.Start", "resolve container host", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		e.cleanupFailedStart(ctx)
		return errs.Wrap(errs.Unavailable, "Container.Start", "resolve mapped port", err)
	}
	e.baseURL = fmt.Sprintf("http://%s:%s", host, mapped.Port())
	return nil
}

// cleanupFailedStart force-removes a container provisioned by this Start
// call that never made it to a healthy state.
func (e *Container) cleanupFailedStart(ctx context.Context) {
	if e.managed == nil {
		return
	}
	_ = e.managed.Terminate(ctx)
	e.managed = nil
	e.baseURL = ""
}

type executeRequestBody struct {
	Code      string `json:"code"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

type executeResponseBody struct {
	Value     any    `json:"value"`
	Stdout    string `json:"stdout"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"execution_time_ms"`
}

func (e *Container) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.authToken)
	req.Header.Set("X-Session-ID", e.sessionID)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "Container", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errs.New(errs.AuthInvalid, "Container", path+": 401")
	}
	if resp.StatusCode >= 500 {
		return errs.New(errs.Unavailable, "Container", fmt.Sprintf("%s: %d", path, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return errs.New(errs.CallFailed, "Container", fmt.Sprintf("%s: %d", path, resp.StatusCode))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (e *Container) Run(ctx context.Context, code string, timeout time.Duration) Result {
	var out executeResponseBody
	err := e.doJSON(ctx, http.MethodPost, "/execute", executeRequestBody{
		Code:      code,
		TimeoutMS: timeout.Milliseconds(),
	}, &out)
	if err != nil {
		return Result{Err: err}
	}
	var runErr error
	if out.Error != "" {
		runErr = errs.New(errs.CallFailed, "Container.Run", out.Error)
	}
	return Result{Value: out.Value, Stdout: out.Stdout, Err: runErr, ElapsedMS: out.ElapsedMS}
}

func (e *Container) Reset(ctx context.Context) error {
	return e.doJSON(ctx, http.MethodPost, "/reset", nil, nil)
}

// Close stops and force-removes this executor's own container, if it owns
// one. Externally managed containers (built via NewContainer) are left
// running — their lifecycle belongs to whoever deployed them. Terminate is
// always attempted even when the managed handle has already gone bad, per
// spec §4.8's "even on partial-shutdown errors" invariant.
func (e *Container) Close(ctx context.Context) error {
	if e.managed == nil {
		return nil
	}
	container := e.managed
	e.managed = nil
	if err := container.Terminate(ctx); err != nil {
		return errs.Wrap(errs.Internal, "Container.Close", "stop and force-remove container", err)
	}
	return nil
}

// EvalSkill implements skills.ExecutorBackref for the container backend by
// generating the same run-wrapper as the subprocess backend and sending it
// as a normal /execute call.
func (e *Container) EvalSkill(ctx context.Context, source string, params map[string]any) (any, error) {
	code := source + "\nreturn run(" + luaconv.Literal(params) + ")"
	result := e.Run(ctx, code, 0)
	return result.Value, result.Err
}

func (e *Container) InstallDeps(ctx context.Context, pkgs []string) error {
	return e.doJSON(ctx, http.MethodPost, "/install_deps", map[string]any{"packages": pkgs}, nil)
}

func (e *Container) UninstallDeps(ctx context.Context, pkgs []string) error {
	return e.doJSON(ctx, http.MethodPost, "/uninstall_deps", map[string]any{"packages": pkgs}, nil)
}
