package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/executor"
	"github.com/kagent-dev/codemode/pkg/rpc"
	"github.com/kagent-dev/codemode/pkg/session"
	"github.com/kagent-dev/codemode/pkg/skills"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/tools"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	backend := storage.NewFileBackend(t.TempDir(), testr.New(t))

	artifactStore, err := backend.ArtifactStore()
	require.NoError(t, err)
	depsStore, err := backend.DepsStore()
	require.NoError(t, err)
	skillStore, err := backend.SkillSourceStore()
	require.NoError(t, err)

	registry := tools.New(nil)
	lib := skills.New(skillStore, nil, nil, testr.New(t))

	cfg := session.Config{
		ID:                 "sess-1",
		Tools:              registry.ScopedView(),
		Skills:             lib,
		Artifacts:          artifactStore,
		Deps:               depsStore,
		RuntimeDepsEnabled: true,
		NewExecutor: func(d *rpc.Dispatcher) executor.Executor {
			return executor.NewInProcess(d)
		},
	}
	s, err := session.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestRunPersistsStateAcrossCalls(t *testing.T) {
	s := newTestSession(t)

	r1 := s.Run(context.Background(), "x = 41", time.Second)
	require.Empty(t, r1.Error)

	r2 := s.Run(context.Background(), "x + 1", time.Second)
	require.Empty(t, r2.Error)
	require.Equal(t, float64(42), r2.Value)
	require.Equal(t, 2, s.ExecutionCount())
}

func TestResetClearsState(t *testing.T) {
	s := newTestSession(t)

	s.Run(context.Background(), "x = 1", time.Second)
	require.NoError(t, s.Reset(context.Background()))

	r := s.Run(context.Background(), "return x", time.Second)
	require.NotEmpty(t, r.Error)
}

func TestCloseIsIdempotentAndBlocksRun(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	require.True(t, s.Closed())

	r := s.Run(context.Background(), "1 + 1", time.Second)
	require.NotEmpty(t, r.Error)
}

func TestArtifactSaveAndLoadRoundTripThroughNamespace(t *testing.T) {
	s := newTestSession(t)

	code := `artifacts.save("greeting", "hello")
return artifacts.load("greeting")`
	r := s.Run(context.Background(), code, time.Second)
	require.Empty(t, r.Error)
	require.Equal(t, "hello", r.Value)
}

func TestSkillCreateAndInvokeThroughNamespace(t *testing.T) {
	s := newTestSession(t)

	create := `skills.create("double", "function run(args) return args.n * 2 end", "doubles a number")`
	r := s.Run(context.Background(), create, time.Second)
	require.Empty(t, r.Error)

	invoke := `return skills.invoke("double", {n = 21})`
	r2 := s.Run(context.Background(), invoke, time.Second)
	require.Empty(t, r2.Error)
	require.Equal(t, float64(42), r2.Value)
}

func TestDepsAddAndListThroughNamespace(t *testing.T) {
	s := newTestSession(t)

	code := `deps.add("requests")
local list = deps.list()
return #list`
	r := s.Run(context.Background(), code, time.Second)
	require.Empty(t, r.Error)
	require.Equal(t, float64(1), r.Value)
}

func TestTimeoutProducesErrorResultNotSuccess(t *testing.T) {
	s := newTestSession(t)

	code := `local i = 0
while true do i = i + 1 end`
	r := s.Run(context.Background(), code, 20*time.Millisecond)
	require.NotEmpty(t, r.Error)
}

func TestManagerSweepDropsIdleSessions(t *testing.T) {
	s := newTestSession(t)
	mgr := session.NewManager(10*time.Millisecond, testr.New(t))
	mgr.Put(s)
	require.Equal(t, 1, mgr.Count())

	time.Sleep(30 * time.Millisecond)
	mgr.Sweep(context.Background())
	require.Equal(t, 0, mgr.Count())
	require.True(t, s.Closed())
}
