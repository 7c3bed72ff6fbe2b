package env

import "time"

// Storage backend selection and locations, mirroring §6's "Environment
// variables honored by the container server".
var (
	RedisURL = RegisterStringVar(
		"REDIS_URL", "", "Redis connection URL for the KV-backed storage backend.", ComponentStorage)

	RedisToolsPrefix = RegisterStringVar(
		"REDIS_TOOLS_PREFIX", "codemode:tools", "Key prefix for the tool registry's KV sub-store.", ComponentStorage)

	RedisSkillsPrefix = RegisterStringVar(
		"REDIS_SKILLS_PREFIX", "codemode:skills", "Key prefix for the skill library's KV sub-store.", ComponentStorage)

	RedisArtifactsPrefix = RegisterStringVar(
		"REDIS_ARTIFACTS_PREFIX", "codemode:artifacts", "Key prefix for the artifact store's KV sub-store.", ComponentStorage)

	RedisDepsPrefix = RegisterStringVar(
		"REDIS_DEPS_PREFIX", "codemode:deps", "Key prefix for the dependency namespace's KV sub-store.", ComponentStorage)

	ToolsPath = RegisterStringVar(
		"TOOLS_PATH", "", "Base directory for the file-backed storage backend.", ComponentStorage)

	DepsPath = RegisterStringVar(
		"DEPS_PATH", "", "Override directory for the dependency namespace's file sub-store.", ComponentStorage)

	PostgresURL = RegisterStringVar(
		"CODEMODE_POSTGRES_URL", "", "Postgres DSN for the pgvector-backed skill vector index.", ComponentStorage)
)

// Container server configuration.
var (
	ContainerAuthToken = RegisterStringVar(
		"CONTAINER_AUTH_TOKEN", "", "Bearer token required on every container endpoint except /health.", ComponentContainer)

	ContainerAuthDisabled = RegisterBoolVar(
		"CONTAINER_AUTH_DISABLED", false, "Bypass bearer-token auth entirely. Logs a warning on startup.", ComponentContainer)

	ContainerListenAddr = RegisterStringVar(
		"CONTAINER_LISTEN_ADDR", ":8181", "Address the container HTTP service listens on.", ComponentContainer)

	SessionExpiry = RegisterDurationVar(
		"CODEMODE_SESSION_EXPIRY", time.Hour, "Idle duration after which a session is dropped.", ComponentContainer)

	RuntimeDepsDisabled = RegisterBoolVar(
		"CODEMODE_RUNTIME_DEPS_DISABLED", false, "Disable add/remove on the deps namespace at runtime.", ComponentContainer)

	LogLevel = RegisterStringVar(
		"CODEMODE_LOG_LEVEL", "info", "Zap log level (debug, info, warn, error).", ComponentContainer)

	LogDevelopment = RegisterBoolVar(
		"CODEMODE_ENV_DEVELOPMENT", false, "Use a human-readable, colorized log encoder.", ComponentContainer)

	KernelCommand = RegisterStringVar(
		"CODEMODE_KERNEL_COMMAND", "codemode-luakernel",
		"Path to the subprocess-kernel binary the container server execs per session.", ComponentContainer)

	TracingEnabled = RegisterBoolVar(
		"CODEMODE_TRACING_ENABLED", false,
		"Install an in-process otel trace provider for Session.Run/Dispatcher.Dispatch spans.", ComponentContainer)
)
