// Package session implements spec §4.5: a Session owns one executor,
// injects the tools/skills/artifacts/deps namespaces into it, and exposes
// run/reset/close plus host-side passthroughs for listing and searching.
package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/executor"
	"github.com/kagent-dev/codemode/pkg/rpc"
	"github.com/kagent-dev/codemode/pkg/skills"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/telemetry"
	"github.com/kagent-dev/codemode/pkg/tools"
)

// Config is everything a Session needs to wire its namespaces, per spec
// §4.5's four injected namespaces plus the runtime-deps feature flag.
type Config struct {
	ID                 string
	Tools              *tools.ScopedRegistry
	Skills             *skills.Library
	Artifacts          storage.ArtifactStore
	Deps               storage.DepsStore
	Access             storage.AccessDescriptor
	RuntimeDepsEnabled bool

	// NewExecutor builds the backend this session runs on. It receives the
	// dispatcher the session has just wired with the namespace handlers
	// above — in-process and subprocess backends route calls through it
	// directly; the container backend ignores it (it talks HTTP instead).
	NewExecutor func(*rpc.Dispatcher) executor.Executor
}

// Session is a single isolated execution context: one executor, one set
// of injected namespaces, one piece of interpreter state that persists
// across Run calls until Reset.
type Session struct {
	id         string
	dispatcher *rpc.Dispatcher
	executor   executor.Executor
	backref    *backrefHolder

	tools     *tools.ScopedRegistry
	skillLib  *skills.Library
	artifacts storage.ArtifactStore
	deps      storage.DepsStore

	mu         sync.Mutex
	closed     bool
	createdAt  time.Time
	lastUsedAt time.Time
	execCount  int
}

// New builds and starts a Session: wires the namespace dispatcher, builds
// the executor via cfg.NewExecutor, fills in the executor backref for
// skills.invoke, and starts the executor against cfg.Access.
func New(ctx context.Context, cfg Config) (*Session, error) {
	holder := &backrefHolder{}
	dispatcher := newDispatcher(namespaceConfig{
		tools:              cfg.Tools,
		skills:             cfg.Skills,
		artifacts:          cfg.Artifacts,
		deps:               cfg.Deps,
		backref:            holder,
		runtimeDepsEnabled: cfg.RuntimeDepsEnabled,
	})

	exec := cfg.NewExecutor(dispatcher)
	backref, ok := exec.(skills.ExecutorBackref)
	if !ok {
		return nil, errs.New(errs.Internal, "session.New", "executor does not implement EvalSkill")
	}
	holder.set(backref)

	if err := exec.Start(ctx, cfg.Access); err != nil {
		return nil, errs.Wrap(errs.Internal, "session.New", "start executor", err)
	}

	now := time.Now()
	return &Session{
		id:         cfg.ID,
		dispatcher: dispatcher,
		executor:   exec,
		backref:    holder,
		tools:      cfg.Tools,
		skillLib:   cfg.Skills,
		artifacts:  cfg.Artifacts,
		deps:       cfg.Deps,
		createdAt:  now,
		lastUsedAt: now,
	}, nil
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// Run executes code against the session's executor, per spec §4.5.
// Post-close, Run never succeeds — it returns an error result.
func (s *Session) Run(ctx context.Context, code string, timeout time.Duration) RunResult {
	ctx, span := telemetry.Tracer.Start(ctx, "Session.Run")
	span.SetAttributes(attribute.String("session.id", s.id), attribute.Int64("session.timeout_ms", timeout.Milliseconds()))
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "session is closed")
		return RunResult{Error: "session is closed"}
	}
	s.execCount++
	s.lastUsedAt = time.Now()
	s.mu.Unlock()

	result := s.executor.Run(ctx, code, timeout)

	rr := RunResult{
		Value:     Project(result.Value),
		Stdout:    result.Stdout,
		ElapsedMS: result.ElapsedMS,
	}
	if result.Err != nil {
		rr.Error = result.Err.Error()
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}
	return rr
}

// Reset clears the executor's interpreter state except the injected
// namespaces and the language's built-ins, per spec §4.5.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.Internal, "Session.Reset", "session is closed")
	}
	return s.executor.Reset(ctx)
}

// Close is idempotent: calling it more than once is a no-op returning nil.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.executor.Close(ctx)
}

// Closed reports whether Close has already run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// IdleFor reports how long the session has gone without a Run call.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsedAt)
}

// ExecutionCount reports how many Run calls this session has served.
func (s *Session) ExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execCount
}

// CreatedAt reports when the session was constructed.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// ListTools is the host-side passthrough of spec §4.5 ("passthroughs for
// listing/searching tools and skills"), independent of the in-interpreter
// tools table.
func (s *Session) ListTools() []tools.Tool { return s.tools.ListTools() }

// SearchTools passes through to the session's scoped tool registry.
func (s *Session) SearchTools(ctx context.Context, query string, limit int) ([]tools.SearchResult, error) {
	return s.tools.Search(ctx, query, limit)
}

// ListSkills is the host-side passthrough for the skill library.
func (s *Session) ListSkills(ctx context.Context) ([]skills.Skill, error) {
	return s.skillLib.List(ctx)
}

// SearchSkills passes through to the session's skill library.
func (s *Session) SearchSkills(ctx context.Context, query string, limit int) ([]skills.Skill, error) {
	return s.skillLib.Search(ctx, query, limit)
}

// ListDeps is the host-side passthrough for the declared dependency list.
func (s *Session) ListDeps(ctx context.Context) ([]storage.DepRecord, error) {
	return s.deps.List(ctx)
}

// InstallDeps forwards to the executor's DepsInstaller, for backends that
// declare DEPS_INSTALL support. Backends without it (e.g. the in-process
// backend has no virtual environment to install into) report Unavailable.
func (s *Session) InstallDeps(ctx context.Context, pkgs []string) error {
	installer, ok := s.executor.(executor.DepsInstaller)
	if !ok {
		return errs.New(errs.Unavailable, "Session.InstallDeps", "executor does not support dependency installation")
	}
	return installer.InstallDeps(ctx, pkgs)
}

// UninstallDeps forwards to the executor's DepsInstaller; see InstallDeps.
func (s *Session) UninstallDeps(ctx context.Context, pkgs []string) error {
	installer, ok := s.executor.(executor.DepsInstaller)
	if !ok {
		return errs.New(errs.Unavailable, "Session.UninstallDeps", "executor does not support dependency installation")
	}
	return installer.UninstallDeps(ctx, pkgs)
}
