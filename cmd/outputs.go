package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/chalkan3/sloth-deploy/internal/orchestrator"
	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

var (
	outputKey  string
	outputJSON bool
)

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Show the provisioned resource identifiers",
	Long: `Display the outputs of the provisioning stack: user pool, user
pool client, site bucket, distribution, and website URL. Fails when
the stack has not completed successfully or a required output is
missing from the template.`,
	Example: `  # Show all outputs
  sloth-deploy outputs

  # Show a single output, suitable for scripting
  sloth-deploy outputs --key WebsiteURL

  # Export outputs as JSON
  sloth-deploy outputs --json`,
	RunE: runOutputs,
}

func init() {
	rootCmd.AddCommand(outputsCmd)
	outputsCmd.Flags().StringVarP(&outputKey, "key", "k", "", "Print only this output value")
	outputsCmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")
}

func runOutputs(cmd *cobra.Command, args []string) error {
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

	info, err := svc.stacks.Describe(ctx, cfg.StackName)
	if err != nil {
		return fmt.Errorf("failed to describe stack: %w", err)
	}
	if info.State != stack.StateSucceeded {
		return fmt.Errorf("stack %s is %s, outputs are only available after a successful deployment", cfg.StackName, info.State)
	}
	if err := stack.RequireOutputs(cfg.StackName, info.Outputs, orchestrator.RequiredOutputs...); err != nil {
		return err
	}

	if outputKey != "" {
		value, ok := info.Outputs[outputKey]
		if !ok {
			return fmt.Errorf("stack %s has no output %q", cfg.StackName, outputKey)
		}
		fmt.Println(value)
		return nil
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info.Outputs)
	}

	keys := make([]string, 0, len(info.Outputs))
	for k := range info.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, info.Outputs[k])
	}
	return nil
}
