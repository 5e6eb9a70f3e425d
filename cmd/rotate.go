package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rotatePrompt bool

var rotateCmd = &cobra.Command{
	Use:   "rotate-credential [credential]",
	Short: "Replace the stored application credential",
	Long: `Overwrite the stored application credential with a new value. This
is the only operation that replaces an existing credential; deploy
always reuses what is stored. Without an argument a fresh random value
is generated.

Backend processes read the credential from the secret store on their
next start; rotation does not restart anything.`,
	Example: `  # Rotate to a fresh generated value
  sloth-deploy rotate-credential

  # Rotate to an explicit value read from a hidden prompt
  sloth-deploy rotate-credential --prompt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)
	rotateCmd.Flags().BoolVar(&rotatePrompt, "prompt", false, "Read the new credential from an interactive prompt")
}

func runRotate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	explicit := ""
	if len(args) > 0 {
		explicit = args[0]
	}
	if rotatePrompt {
		if explicit != "" {
			return fmt.Errorf("cannot combine --prompt with a credential argument")
		}
		fmt.Print("New credential: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read credential: %w", err)
		}
		explicit = string(raw)
	}

	path := cfg.SecretPath()
	color.Yellow("This will replace the credential at %s.", path)
	if !confirmPrompt("Rotate?") {
		fmt.Println("Aborted")
		return nil
	}

	clients, err := newAWSClients(ctx, cfg.Region)
	if err != nil {
		return err
	}
	svc := newServices(clients, cfg)

	cred, err := svc.creds.Rotate(ctx, path, explicit)
	if err != nil {
		return fmt.Errorf("failed to rotate credential: %w", err)
	}

	fmt.Printf("%s Credential rotated: %s\n", color.GreenString("✓"), cred)
	fmt.Println("Backend processes pick up the new value on their next start")
	return nil
}
