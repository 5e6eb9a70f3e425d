package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityCmd_Structure(t *testing.T) {
	assert.NotNil(t, identityCmd)
	assert.Equal(t, "identity", identityCmd.Use)
	assert.NotEmpty(t, identityCmd.Short)
	assert.True(t, identityCmd.HasAvailableSubCommands(), "identity command should have subcommands")
}

func TestIdentityListCmd_Structure(t *testing.T) {
	assert.NotNil(t, identityListCmd)
	assert.Equal(t, "list", identityListCmd.Use)
	assert.NotEmpty(t, identityListCmd.Short)
	assert.NotEmpty(t, identityListCmd.Example)
	assert.NotNil(t, identityListCmd.RunE)
}

func TestIdentityCreateCmd_Structure(t *testing.T) {
	assert.NotNil(t, identityCreateCmd)
	assert.Equal(t, "create [name]", identityCreateCmd.Use)
	assert.NotEmpty(t, identityCreateCmd.Short)
	assert.NotEmpty(t, identityCreateCmd.Example)
	assert.NotNil(t, identityCreateCmd.RunE)
}

func TestRotateCmd_Structure(t *testing.T) {
	assert.NotNil(t, rotateCmd)
	assert.Equal(t, "rotate-credential [credential]", rotateCmd.Use)
	assert.NotEmpty(t, rotateCmd.Short)
	assert.NotEmpty(t, rotateCmd.Long)
	assert.NotNil(t, rotateCmd.RunE)

	promptFlag := rotateCmd.Flags().Lookup("prompt")
	assert.NotNil(t, promptFlag, "rotate-credential should have --prompt flag")
}
