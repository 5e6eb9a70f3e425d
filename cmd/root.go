package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chalkan3/sloth-deploy/pkg/config"
)

var (
	cfgFile     string
	stackFlag   string
	regionFlag  string
	verbose     bool
	autoApprove bool

	// Version information - set by main.go
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

// SetVersionInfo sets the version information from main.go
func SetVersionInfo(version, commit, date, builtBy string) {
	Version = version
	Commit = commit
	Date = date
	BuiltBy = builtBy
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sloth-deploy",
	Short: "Idempotent AWS deployment tool for serverless web stacks",
	Long: `Sloth Deploy provisions a complete serverless web application on AWS:
a Cognito user pool, an S3 site bucket behind CloudFront, and a
write-once application credential in SSM Parameter Store.

Every command is safe to re-run: existing resources are detected and
reused, and interrupted deployments converge on the next run.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: none, built-in defaults apply)")
	rootCmd.PersistentFlags().StringVarP(&stackFlag, "stack", "s", "", "Stack name override")
	rootCmd.PersistentFlags().StringVarP(&regionFlag, "region", "r", "", "AWS region override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&autoApprove, "yes", "y", false, "Auto-approve without prompting")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(`Sloth Deploy %s
  Commit:    %s
  Built:     %s
  Built by:  %s
`, Version, Commit, Date, BuiltBy))
	rootCmd.Version = Version
}

// loadConfig resolves the effective configuration, letting global
// flags win over file and environment values
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if stackFlag != "" {
		cfg.StackName = stackFlag
	}
	if regionFlag != "" {
		cfg.Region = regionFlag
	}
	return cfg, nil
}

// confirmPrompt asks a yes/no question on stdin. --yes answers every
// question with yes without printing the prompt; a non-interactive
// stdin declines so scripted runs never hang on a prompt.
func confirmPrompt(prompt string) bool {
	if autoApprove {
		return true
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
