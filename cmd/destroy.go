package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the deployment stack and its resources",
	Long: `Delete the provisioning stack and every resource it manages. The
stored application credential is retained so a later deployment of the
same stack reuses it; destroying an absent stack is a no-op.`,
	Example: `  # Destroy with a confirmation prompt
  sloth-deploy destroy

  # Destroy without prompting
  sloth-deploy destroy --yes`,
	RunE: runDestroy,
}

func init() {
	rootCmd.AddCommand(destroyCmd)
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	clients, err := newAWSClients(ctx, cfg.Region)
	if err != nil {
		return err
	}
	svc := newServices(clients, cfg)

	info, err := svc.stacks.Describe(ctx, cfg.StackName)
	if err != nil {
		return fmt.Errorf("failed to describe stack: %w", err)
	}
	if info.State == stack.StateAbsent {
		fmt.Printf("Stack %s does not exist, nothing to destroy\n", cfg.StackName)
		return nil
	}

	color.Yellow("This will delete stack %s and all resources it manages.", cfg.StackName)
	if !confirmPrompt("Destroy?") {
		fmt.Println("Aborted")
		return nil
	}

	if err := svc.stacks.Delete(ctx, cfg.StackName, stack.Options{
		OnProgress: func(status string) {
			if verbose {
				fmt.Printf("  stack status: %s\n", status)
			}
		},
	}); err != nil {
		return fmt.Errorf("failed to destroy stack: %w", err)
	}

	fmt.Printf("%s Stack %s destroyed\n", color.GreenString("✓"), cfg.StackName)
	fmt.Printf("Credential at %s was retained; delete it manually if no longer needed\n", cfg.SecretPath())
	return nil
}
