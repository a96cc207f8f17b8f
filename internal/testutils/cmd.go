package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FlagCase describes a cobra flag expected on a command.
type FlagCase struct {
	Name       string
	Shorthand  string
	Default    string
	Persistent bool
}

// AssertFlag checks that cmd declares the flag described by fc.
func AssertFlag(t *testing.T, cmd *cobra.Command, fc FlagCase) {
	t.Helper()

	var flag *pflag.Flag
	if fc.Persistent {
		flag = cmd.PersistentFlags().Lookup(fc.Name)
	} else {
		flag = cmd.Flags().Lookup(fc.Name)
	}
	require.NotNil(t, flag, "Flag %q should be declared", fc.Name)
	assert.Equal(t, fc.Shorthand, flag.Shorthand, "Unexpected shorthand for flag %q", fc.Name)
	assert.Equal(t, fc.Default, flag.DefValue, "Unexpected default for flag %q", fc.Name)
}
