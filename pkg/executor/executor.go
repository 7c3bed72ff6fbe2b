package executor

import (
	"context"
	"time"

	"github.com/kagent-dev/codemode/pkg/storage"
)

// Result is the outcome of one Run call.
type Result struct {
	Value     any
	Stdout    string
	Err       error
	ElapsedMS int64
}

// Executor is the capability every backend (in-process, subprocess,
// container) implements, per spec §4.6.
type Executor interface {
	Supports(capability Capability) bool
	SupportedCapabilities() CapabilitySet

	// Start prepares the backend to run code. access, when non-nil, is
	// the serializable storage descriptor the backend should wire itself
	// (or a remote peer) to, per spec §4.1/§4.6.
	Start(ctx context.Context, access storage.AccessDescriptor) error

	Run(ctx context.Context, code string, timeout time.Duration) Result
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// DepsInstaller is implemented by backends that support DEPS_INSTALL /
// DEPS_UNINSTALL.
type DepsInstaller interface {
	InstallDeps(ctx context.Context, pkgs []string) error
	UninstallDeps(ctx context.Context, pkgs []string) error
}
