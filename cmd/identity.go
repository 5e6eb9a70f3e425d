package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage identity pools",
	Long:  `List and create the user pools a deployment can reuse`,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identity pools for this project",
	Long: `Display every user pool whose name starts with the project
identifier. When more than one matches, deploy reuses the one with the
lexicographically smallest ID.`,
	Example: `  # List matching pools
  sloth-deploy identity list`,
	RunE: runIdentityList,
}

var identityCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new identity pool",
	Long: `Create a user pool with email sign-in. Without an argument the
pool is named <project>-users. Creation is not idempotent; list first
when unsure.`,
	Example: `  # Create the default pool for the project
  sloth-deploy identity create

  # Create a named pool
  sloth-deploy identity create kiro-staging-users`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIdentityCreate,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityListCmd)
	identityCmd.AddCommand(identityCreateCmd)
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Listing identity pools for project %s...", cfg.Project)
	s.Start()

	clients, err := newAWSClients(ctx, cfg.Region)
	if err != nil {
		s.Stop()
		return err
	}
	svc := newServices(clients, cfg)

	pools, err := svc.pools.List(ctx)
	s.Stop()
	if err != nil {
		return fmt.Errorf("failed to list identity pools: %w", err)
	}

	if len(pools) == 0 {
		fmt.Printf("No identity pools found for project %s\n", cfg.Project)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, p := range pools {
		fmt.Fprintf(w, "%s\t%s\n", p.ID, p.Name)
	}
	w.Flush()

	if len(pools) > 1 {
		fmt.Printf("\ndeploy reuses %s (smallest ID)\n", pools[0].ID)
	}
	return nil
}

func runIdentityCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := cfg.Project + "-users"
	if len(args) > 0 {
		name = args[0]
	}

	clients, err := newAWSClients(ctx, cfg.Region)
	if err != nil {
		return err
	}
	svc := newServices(clients, cfg)

	ref, err := svc.pools.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create identity pool: %w", err)
	}

	fmt.Printf("%s Created identity pool %s (%s)\n", color.GreenString("✓"), ref.Name, ref.ID)
	return nil
}
