package skills_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/skills"
)

func TestValidateNameRejectsReservedAndInvalid(t *testing.T) {
	for _, name := range []string{"tools", "skills", "artifacts", "deps", "run", "1leading", "has-dash", ""} {
		err := skills.ValidateName(name)
		require.Error(t, err, name)
		require.Equal(t, errs.InvalidName, errs.KindOf(err))
	}
	require.NoError(t, skills.ValidateName("triple_a_number"))
}

func TestValidateSourceRequiresRunFunction(t *testing.T) {
	require.NoError(t, skills.ValidateSource("function run(n)\n  return n * 3\nend\n"))

	err := skills.ValidateSource("x = 1\n")
	require.Error(t, err)
	require.Equal(t, errs.InvalidSource, errs.KindOf(err))

	err = skills.ValidateSource("this is not lua {{{")
	require.Error(t, err)
	require.Equal(t, errs.InvalidSource, errs.KindOf(err))

	err = skills.ValidateSource("run = 5\n")
	require.Error(t, err)
}
