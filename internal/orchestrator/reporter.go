package orchestrator

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Report writes the operator-facing summary for a finished run. It is
// a pure function of the outcome: no remote calls, and never the
// credential value itself, only where to retrieve it.
func Report(w io.Writer, outcome *Outcome) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintln(w)
	switch outcome.Kind {
	case OutcomeSucceeded:
		if outcome.Declined {
			fmt.Fprintf(w, "%s Stack %q left unchanged (update declined); current deployment:\n", yellow("!"), outcome.StackName)
		} else {
			fmt.Fprintf(w, "%s Deployment of stack %q succeeded\n", green("✓"), outcome.StackName)
		}
	case OutcomeCancelled:
		fmt.Fprintf(w, "%s Deployment of stack %q was cancelled; remote state is authoritative, re-run to converge\n", yellow("!"), outcome.StackName)
		return
	default:
		fmt.Fprintf(w, "%s Deployment of stack %q failed\n", red("✗"), outcome.StackName)
		if outcome.Err != nil {
			fmt.Fprintf(w, "  %s\n", outcome.Err)
		}
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Resources"))
	fmt.Fprintf(w, "  User pool:        %s\n", outcome.Outputs[OutputUserPoolID])
	fmt.Fprintf(w, "  User pool client: %s\n", outcome.Outputs[OutputUserPoolClientID])
	fmt.Fprintf(w, "  Site bucket:      %s\n", outcome.Outputs[OutputSiteBucket])
	fmt.Fprintf(w, "  Distribution:     %s\n", outcome.Outputs[OutputDistributionID])

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", bold("Website:"), outcome.Outputs[OutputWebsiteURL])

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Application credential"))
	fmt.Fprintf(w, "  Stored at %s. Retrieve it with:\n", outcome.SecretPath)
	fmt.Fprintf(w, "  aws ssm get-parameter --name %s --with-decryption --query Parameter.Value --output text\n", outcome.SecretPath)
}
