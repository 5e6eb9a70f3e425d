package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chalkan3/sloth-deploy/internal/orchestrator"
	"github.com/chalkan3/sloth-deploy/pkg/credentials"
	"github.com/chalkan3/sloth-deploy/pkg/probe"
	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a finished deployment end to end",
	Long: `Run read-only checks against a deployed stack: the caller
identity, the stack state, the stored credential (shown masked), the
identity pool, and the website's HTTP reachability. No resource is
created or modified.`,
	Example: `  # Verify the default stack
  sloth-deploy check

  # Verify a specific stack in another region
  sloth-deploy check --stack kiro-webstack --region eu-west-1`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	clients, err := newAWSClients(ctx, cfg.Region)
	if err != nil {
		return err
	}
	svc := newServices(clients, cfg)
	prober := probe.New(svc.stacks, svc.creds, svc.pools)

	pass := color.New(color.FgGreen).SprintFunc()("✓")
	fail := color.New(color.FgRed).SprintFunc()("✗")
	failed := 0

	// Caller identity proves the credential chain resolves
	ident, err := clients.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		fmt.Printf("%s AWS credentials: %v\n", fail, err)
		return fmt.Errorf("cannot reach AWS, aborting remaining checks")
	}
	fmt.Printf("%s AWS credentials: account %s (%s)\n", pass, *ident.Account, *ident.Arn)

	stackFinding, err := prober.ProbeStack(ctx, cfg.StackName)
	if err != nil {
		return fmt.Errorf("failed to probe stack: %w", err)
	}
	info := stackFinding.Info
	switch {
	case !stackFinding.Present:
		fmt.Printf("%s Stack %s: does not exist\n", fail, cfg.StackName)
		failed++
	case info.State == stack.StateSucceeded:
		fmt.Printf("%s Stack %s: %s\n", pass, cfg.StackName, info.RawStatus)
	default:
		fmt.Printf("%s Stack %s: %s\n", fail, cfg.StackName, info.State)
		failed++
	}

	secretFinding, err := prober.ProbeSecret(ctx, cfg.SecretPath())
	if err != nil {
		return fmt.Errorf("failed to check credential: %w", err)
	}
	if secretFinding.Present {
		cred, err := svc.creds.Fetch(ctx, secretFinding.Path)
		if err != nil {
			return fmt.Errorf("failed to check credential: %w", err)
		}
		fmt.Printf("%s Credential at %s: %s\n", pass, secretFinding.Path, credentials.Mask(cred.Value()))
	} else {
		fmt.Printf("%s Credential at %s: not found\n", fail, secretFinding.Path)
		failed++
	}

	idFinding, err := prober.ProbeIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to check identity pool: %w", err)
	}
	if idFinding.Present {
		fmt.Printf("%s Identity pool: %s (%s)\n", pass, idFinding.Ref.Name, idFinding.Ref.ID)
	} else {
		fmt.Printf("%s Identity pool: none found for project %s\n", fail, cfg.Project)
		failed++
	}

	if url := info.Outputs[orchestrator.OutputWebsiteURL]; url != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			fmt.Printf("%s Website %s: %v\n", fail, url, err)
			failed++
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				fmt.Printf("%s Website %s: HTTP %d\n", pass, url, resp.StatusCode)
			} else {
				fmt.Printf("%s Website %s: HTTP %d\n", fail, url, resp.StatusCode)
				failed++
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println()
	color.Green("All checks passed")
	return nil
}
