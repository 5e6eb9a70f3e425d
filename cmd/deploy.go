package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chalkan3/sloth-deploy/internal/orchestrator"
	"github.com/chalkan3/sloth-deploy/pkg/probe"
)

var (
	deployTemplate   string
	deployForce      bool
	promptCredential bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy [identity-ref] [credential] [region]",
	Short: "Provision the stack and publish the front-end",
	Long: `Run the full two-phase deployment: ensure the provisioning stack
exists and is healthy, persist the application credential (created
exactly once), build the front-end against the provisioned endpoints,
publish it to the site bucket, and invalidate the CDN caches.

All three positional arguments are optional. The identity-ref pins a
pre-existing user pool instead of probing for one, the credential sets
an explicit value for a first deployment, and the region overrides the
configured target region.

The command is idempotent: re-running after a failure or interruption
converges on the desired state without duplicating resources.`,
	Example: `  # Deploy with all defaults
  sloth-deploy deploy

  # Reuse a known user pool and target a specific region
  sloth-deploy deploy us-east-1_aBcDeFgHi "" eu-west-1

  # First deployment with an explicit credential, no prompts
  sloth-deploy deploy --prompt-credential --force`,
	Args: cobra.MaximumNArgs(3),
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().StringVarP(&deployTemplate, "template", "t", "", "Stack template file (default: configured templatePath)")
	deployCmd.Flags().BoolVarP(&deployForce, "force", "f", false, "Update existing resources without prompting; never deletes")
	deployCmd.Flags().BoolVar(&promptCredential, "prompt-credential", false, "Read the credential from an interactive prompt instead of an argument")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	// Ctrl-C cancels in-flight polling; remote operations keep running
	// and the next deploy converges on their result.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	identityRef := cfg.IdentityPoolRef
	credential := ""
	if len(args) > 0 {
		identityRef = args[0]
	}
	if len(args) > 1 {
		credential = args[1]
	}
	if len(args) > 2 {
		cfg.Region = args[2]
	}

	if promptCredential {
		if credential != "" {
			return fmt.Errorf("cannot combine --prompt-credential with a credential argument")
		}
		fmt.Print("Application credential: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read credential: %w", err)
		}
		credential = string(raw)
	}

	templatePath := deployTemplate
	if templatePath == "" {
		templatePath = cfg.TemplatePath
	}
	templateBody, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read stack template: %w", err)
	}

	clients, err := newAWSClients(ctx, cfg.Region)
	if err != nil {
		return err
	}
	svc := newServices(clients, cfg)
	prober := probe.New(svc.stacks, svc.creds, svc.pools)

	orch := orchestrator.New(cfg, svc.stacks, svc.creds, prober, svc.builder, svc.publisher, os.Stdout)

	fmt.Printf("Deploying stack %s in %s\n", cfg.StackName, cfg.Region)
	outcome, err := orch.Run(ctx, orchestrator.RunOptions{
		TemplateBody: string(templateBody),
		IdentityRef:  identityRef,
		Credential:   credential,
		Force:        deployForce || autoApprove,
		Confirm:      confirmPrompt,
		OnProgress: func(status string) {
			if verbose {
				fmt.Printf("  stack status: %s\n", status)
			}
		},
	})

	orchestrator.Report(os.Stdout, outcome)
	return err
}
