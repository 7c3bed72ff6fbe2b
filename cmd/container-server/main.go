// Command container-server runs spec §4.6 Backend 3's HTTP service: a
// long-lived, multi-session execution endpoint a host-side Container
// executor talks to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"

	"github.com/kagent-dev/codemode/internal/containerserver"
	"github.com/kagent-dev/codemode/pkg/env"
	"github.com/kagent-dev/codemode/pkg/logging"
	"github.com/kagent-dev/codemode/pkg/skills"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/telemetry"
	"github.com/kagent-dev/codemode/pkg/tools"
	"github.com/kagent-dev/codemode/pkg/vectorindex"
)

func main() {
	log := logging.New()
	ctx := logging.Into(context.Background(), log)

	shutdownTracing := telemetry.Init(ctx)
	defer shutdownTracing()

	backend, err := openBackend(log)
	if err != nil {
		log.Error(err, "failed to open storage backend")
		os.Exit(1)
	}

	toolStore, err := backend.ToolDescriptorStore()
	if err != nil {
		log.Error(err, "failed to open tool descriptor store")
		os.Exit(1)
	}
	adapters, err := tools.LoadFromStore(ctx, toolStore, log)
	if err != nil {
		log.Error(err, "failed to load tool descriptors")
		os.Exit(1)
	}
	registry := tools.New(nil)
	for _, adapter := range adapters {
		if err := registry.RegisterAdapter(ctx, adapter); err != nil {
			log.Error(err, "failed to register tool adapter")
			os.Exit(1)
		}
	}

	skillStore, err := backend.SkillSourceStore()
	if err != nil {
		log.Error(err, "failed to open skill source store")
		os.Exit(1)
	}
	skillLib := skills.New(skillStore, vectorindex.NewMemory(nil), nil, log)
	if err := skillLib.Refresh(ctx); err != nil {
		log.Error(err, "failed to warm-start skill library")
		os.Exit(1)
	}

	srv := containerserver.New(containerserver.Config{
		Backend:            backend,
		ToolsRegistry:      registry,
		SkillLibrary:       skillLib,
		RuntimeDepsEnabled: !env.RuntimeDepsDisabled.Get(),
		SessionIdleTimeout: env.SessionExpiry.Get(),
		KernelCommand:      env.KernelCommand.Get(),
		AuthToken:          env.ContainerAuthToken.Get(),
		AuthDisabled:       env.ContainerAuthDisabled.Get(),
		Log:                log,
	})

	addr := env.ContainerListenAddr.Get()
	log.Info("container server starting", "addr", addr)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Serve(runCtx, addr); err != nil {
		log.Error(err, "container server exited with error")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openBackend(log logr.Logger) (storage.Backend, error) {
	if url := env.RedisURL.Get(); url != "" {
		prefixes := storage.KVAccess{
			ToolsPrefix:     env.RedisToolsPrefix.Get(),
			SkillsPrefix:    env.RedisSkillsPrefix.Get(),
			ArtifactsPrefix: env.RedisArtifactsPrefix.Get(),
			DepsPrefix:      env.RedisDepsPrefix.Get(),
		}
		return storage.NewKVBackend(url, prefixes, log)
	}
	return storage.NewFileBackend(env.ToolsPath.Get(), log), nil
}
