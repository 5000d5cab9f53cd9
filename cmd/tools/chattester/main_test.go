package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "chattester"}
	var value string
	cmd.PersistentFlags().StringVar(&value, "token", "", "bearer token")
	return cmd
}

func TestBindSettingsReadsTokenFromEnv(t *testing.T) {
	t.Setenv("CHAT_TOKEN", "env-token")
	cmd := newTokenCommand()

	v := bindSettings(cmd)

	assert.Equal(t, "env-token", v.GetString("token"))
}

func TestBindSettingsPrefersExplicitFlag(t *testing.T) {
	t.Setenv("CHAT_TOKEN", "env-token")
	cmd := newTokenCommand()
	require.NoError(t, cmd.PersistentFlags().Set("token", "flag-token"))

	v := bindSettings(cmd)

	assert.Equal(t, "flag-token", v.GetString("token"))
}

func TestBindSettingsEmptyWithoutFlagOrEnv(t *testing.T) {
	t.Setenv("CHAT_TOKEN", "")
	cmd := newTokenCommand()

	v := bindSettings(cmd)

	assert.Empty(t, v.GetString("token"))
}
