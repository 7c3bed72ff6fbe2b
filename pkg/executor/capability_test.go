package executor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/executor"
)

func TestCapabilitySet(t *testing.T) {
	set := executor.NewCapabilitySet(executor.Timeout, executor.Reset)
	require.True(t, set.Has(executor.Timeout))
	require.True(t, set.Has(executor.Reset))
	require.False(t, set.Has(executor.DepsInstall))
}
