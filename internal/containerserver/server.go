// Package containerserver implements spec §4.6 Backend 3's multi-session
// HTTP service: the process a container-backed executor's host side talks
// to over /execute, /health, /info, /reset, /install_deps, /uninstall_deps,
// plus the §6 expansion's /metrics.
package containerserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/kagent-dev/codemode/pkg/executor"
	"github.com/kagent-dev/codemode/pkg/rpc"
	"github.com/kagent-dev/codemode/pkg/session"
	"github.com/kagent-dev/codemode/pkg/skills"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/tools"
)

// Config is everything the container service needs to build sessions and
// enforce the endpoint's authentication contract.
type Config struct {
	Backend            storage.Backend
	ToolsRegistry      *tools.Registry
	SkillLibrary       *skills.Library
	RuntimeDepsEnabled bool
	SessionIdleTimeout time.Duration

	// KernelCommand/KernelArgs launch the subprocess-kernel binary this
	// server execs once per session (see newExecutorFactory): the
	// container image is the isolation boundary spec §4.6 Backend 3
	// wants, but DEPS_INSTALL still needs a real child interpreter
	// process rather than the in-process backend, which has no
	// environment to install packages into.
	KernelCommand string
	KernelArgs    []string

	// NewExecutor overrides the per-session executor factory entirely,
	// bypassing KernelCommand. Tests use this to swap in an in-process
	// backend rather than exec a real kernel binary; production callers
	// should leave it nil.
	NewExecutor func(*rpc.Dispatcher) executor.Executor

	// AuthToken is the bearer token every endpoint but /health requires.
	// AuthDisabled bypasses the check entirely (startup logs a warning).
	AuthToken    string
	AuthDisabled bool

	Log logr.Logger
}

// Server is the multi-session HTTP service. One Server instance backs one
// running container; sessions live only as long as the process does.
type Server struct {
	cfg       Config
	manager   *session.Manager
	router    *mux.Router
	startedAt time.Time
	metrics   *metrics
	log       logr.Logger
}

// New builds a Server and wires its routes. It does not start listening —
// call Serve or use Router() with your own http.Server.
func New(cfg Config) *Server {
	if cfg.AuthDisabled {
		cfg.Log.Info("WARNING: container auth is disabled; every endpoint is unauthenticated")
	}

	s := &Server{
		cfg:       cfg,
		manager:   session.NewManager(cfg.SessionIdleTimeout, cfg.Log),
		startedAt: time.Now(),
		metrics:   newMetrics(),
		log:       cfg.Log,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the wired http.Handler, for embedding in a caller-owned
// http.Server (or httptest.Server in tests).
func (s *Server) Router() http.Handler { return s.router }

// Serve runs an http.Server on addr until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.manager.CloseAll(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newExecutorFactory returns the session.Config.NewExecutor this server
// uses for every session: a subprocess-kernel backend (cmd/luakernel),
// one child process per session. The container image itself is the
// isolation boundary spec §4.6 Backend 3 wants; running each session's
// interpreter as its own child process (rather than in-process) is what
// lets /install_deps and /uninstall_deps do real work, since InProcess
// has no environment to install packages into.
func (s *Server) newExecutorFactory() func(*rpc.Dispatcher) executor.Executor {
	if s.cfg.NewExecutor != nil {
		return s.cfg.NewExecutor
	}
	command := s.cfg.KernelCommand
	if command == "" {
		command = "codemode-luakernel"
	}
	return func(d *rpc.Dispatcher) executor.Executor {
		return executor.NewSubprocess(command, s.cfg.KernelArgs, d)
	}
}

func (s *Server) getOrCreateSession(ctx context.Context, id string) (*session.Session, error) {
	if sess, ok := s.manager.Get(id); ok {
		return sess, nil
	}

	access, err := s.cfg.Backend.SerializableAccess()
	if err != nil {
		return nil, err
	}
	artifacts, err := s.cfg.Backend.ArtifactStore()
	if err != nil {
		return nil, err
	}
	deps, err := s.cfg.Backend.DepsStore()
	if err != nil {
		return nil, err
	}

	sess, err := session.New(ctx, session.Config{
		ID:                 id,
		Tools:              s.cfg.ToolsRegistry.ScopedView(),
		Skills:             s.cfg.SkillLibrary,
		Artifacts:          artifacts,
		Deps:               deps,
		Access:             access,
		RuntimeDepsEnabled: s.cfg.RuntimeDepsEnabled,
		NewExecutor:        s.newExecutorFactory(),
	})
	if err != nil {
		return nil, err
	}
	s.manager.Put(sess)
	s.metrics.activeSessions.Set(float64(s.manager.Count()))
	return sess, nil
}
