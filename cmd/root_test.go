package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Structure(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "sloth-deploy", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCmd_HasCommands(t *testing.T) {
	assert.True(t, rootCmd.HasAvailableSubCommands(), "Root command should have subcommands")

	commands := rootCmd.Commands()
	assert.NotEmpty(t, commands, "Root command should have registered commands")
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	configFlag := rootCmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	stackFlag := rootCmd.PersistentFlags().Lookup("stack")
	assert.NotNil(t, stackFlag)
	assert.Equal(t, "s", stackFlag.Shorthand)

	regionFlag := rootCmd.PersistentFlags().Lookup("region")
	assert.NotNil(t, regionFlag)
	assert.Equal(t, "r", regionFlag.Shorthand)

	verboseFlag := rootCmd.PersistentFlags().Lookup("verbose")
	assert.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	yesFlag := rootCmd.PersistentFlags().Lookup("yes")
	assert.NotNil(t, yesFlag)
	assert.Equal(t, "y", yesFlag.Shorthand)
}

func TestRootCmd_CommandLookup(t *testing.T) {
	testCases := []struct {
		name        string
		commandName string
	}{
		{"Deploy", "deploy"},
		{"Status", "status"},
		{"Outputs", "outputs"},
		{"Destroy", "destroy"},
		{"Check", "check"},
		{"RotateCredential", "rotate-credential"},
		{"Identity", "identity"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, c := range rootCmd.Commands() {
				if c.Name() == tc.commandName {
					return
				}
			}
			t.Errorf("command %q is not registered", tc.commandName)
		})
	}
}

func TestSetVersionInfo(t *testing.T) {
	origVersion, origCommit, origDate, origBuiltBy := Version, Commit, Date, BuiltBy
	defer SetVersionInfo(origVersion, origCommit, origDate, origBuiltBy)

	SetVersionInfo("1.2.3", "abc123", "2026-01-01", "tester")
	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "abc123", Commit)
	assert.Equal(t, "2026-01-01", Date)
	assert.Equal(t, "tester", BuiltBy)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	origStack, origRegion := stackFlag, regionFlag
	defer func() { stackFlag, regionFlag = origStack, origRegion }()

	stackFlag = "override-stack"
	regionFlag = "sa-east-1"

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "override-stack", cfg.StackName)
	assert.Equal(t, "sa-east-1", cfg.Region)
}

func TestConfirmPrompt_AutoApprove(t *testing.T) {
	origApprove := autoApprove
	defer func() { autoApprove = origApprove }()

	autoApprove = true
	assert.True(t, confirmPrompt("anything"))
}

func TestConfirmPrompt_NonInteractiveDeclines(t *testing.T) {
	origApprove := autoApprove
	defer func() { autoApprove = origApprove }()

	// go test runs without a TTY on stdin, so the prompt must decline
	// instead of blocking
	autoApprove = false
	assert.False(t, confirmPrompt("anything"))
}
