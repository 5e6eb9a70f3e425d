package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

var statusFormat string

// StackStatus is the status view for JSON/YAML output
type StackStatus struct {
	StackName string            `json:"stackName" yaml:"stackName"`
	Region    string            `json:"region" yaml:"region"`
	State     string            `json:"state" yaml:"state"`
	RawStatus string            `json:"rawStatus,omitempty" yaml:"rawStatus,omitempty"`
	Reason    string            `json:"reason,omitempty" yaml:"reason,omitempty"`
	Outputs   map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the deployment stack state",
	Long: `Classify the current state of the provisioning stack: absent,
in progress, succeeded, or failed. The remote service is always
queried; nothing is cached locally.`,
	Example: `  # Show status as a table
  sloth-deploy status

  # JSON output
  sloth-deploy status --format json`,
	RunE: runStackStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "Output format: table|json|yaml")
}

func runStackStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if statusFormat != "table" && statusFormat != "json" && statusFormat != "yaml" {
		return fmt.Errorf("invalid output format: %s (must be table, json, or yaml)", statusFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Fetching status of stack %s...", cfg.StackName)
	if statusFormat == "table" {
		s.Start()
	}

	clients, err := newAWSClients(ctx, cfg.Region)
	if err != nil {
		s.Stop()
		return err
	}
	svc := newServices(clients, cfg)

	info, err := svc.stacks.Describe(ctx, cfg.StackName)
	s.Stop()
	if err != nil {
		return fmt.Errorf("failed to describe stack: %w", err)
	}

	status := StackStatus{
		StackName: cfg.StackName,
		Region:    cfg.Region,
		State:     string(info.State),
		RawStatus: info.RawStatus,
		Reason:    info.Reason,
		Outputs:   info.Outputs,
	}

	switch statusFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(status)
	default:
		printStatusTable(status)
		return nil
	}
}

func printStatusTable(status StackStatus) {
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("%s %s (%s)\n", bold("Stack:"), status.StackName, status.Region)
	fmt.Printf("%s %s\n", bold("State:"), colorizeState(stack.State(status.State)))
	if status.RawStatus != "" {
		fmt.Printf("%s %s\n", bold("Status:"), status.RawStatus)
	}
	if status.Reason != "" {
		fmt.Printf("%s %s\n", bold("Reason:"), status.Reason)
	}

	if len(status.Outputs) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OUTPUT\tVALUE")
		keys := make([]string, 0, len(status.Outputs))
		for k := range status.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, status.Outputs[k])
		}
		w.Flush()
	}
}

func colorizeState(state stack.State) string {
	switch state {
	case stack.StateSucceeded:
		return color.GreenString(string(state))
	case stack.StateFailed:
		return color.RedString(string(state))
	case stack.StateInProgress:
		return color.YellowString(string(state))
	default:
		return string(state)
	}
}
