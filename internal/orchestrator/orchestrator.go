// Package orchestrator sequences one full deployment run: probe,
// credential, infrastructure, build, publish, invalidate, report.
// The pipeline is synchronous and stateless between runs; remote
// services are always the source of truth.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chalkan3/sloth-deploy/pkg/config"
	"github.com/chalkan3/sloth-deploy/pkg/credentials"
	"github.com/chalkan3/sloth-deploy/pkg/probe"
	"github.com/chalkan3/sloth-deploy/pkg/publish"
	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

// OutcomeKind classifies the terminal result of one run
type OutcomeKind string

const (
	// OutcomeSucceeded means every phase completed
	OutcomeSucceeded OutcomeKind = "success"
	// OutcomeFailed means a phase failed; Err carries the cause
	OutcomeFailed OutcomeKind = "failure"
	// OutcomeCancelled means the run was interrupted; remote state is
	// authoritative and a re-run will re-probe it
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Required stack output keys: the contract between this tool and the
// template. A missing key is a configuration error, never retryable.
const (
	OutputUserPoolID       = "UserPoolId"
	OutputUserPoolClientID = "UserPoolClientId"
	OutputSiteBucket       = "SiteBucketName"
	OutputDistributionID   = "DistributionId"
	OutputWebsiteURL       = "WebsiteURL"
)

// RequiredOutputs lists every output key the template must produce
var RequiredOutputs = []string{
	OutputUserPoolID,
	OutputUserPoolClientID,
	OutputSiteBucket,
	OutputDistributionID,
	OutputWebsiteURL,
}

// Outcome is the immutable terminal result of one orchestrator run
type Outcome struct {
	Kind       OutcomeKind
	StackName  string
	Outputs    map[string]string
	SecretPath string
	// Declined is true when the operator refused the offered stack
	// update; the outcome reports the pre-run state untouched
	Declined bool
	// CredentialCreated is true when this run generated and persisted
	// a fresh credential
	CredentialCreated bool
	Err               error
}

// StackEnsurer drives the provisioning stack to a terminal state
type StackEnsurer interface {
	Ensure(ctx context.Context, unit stack.Unit, opts stack.Options) (*stack.Result, error)
}

// CredentialEnsurer returns the application credential, creating it
// exactly once
type CredentialEnsurer interface {
	Ensure(ctx context.Context, path, explicit string) (credentials.Credential, bool, error)
}

// IdentityProber locates a reusable identity pool
type IdentityProber interface {
	ProbeIdentity(ctx context.Context) (*probe.IdentityFinding, error)
}

// ArtifactBuilder produces the front-end artifact against injected
// build-time configuration
type ArtifactBuilder interface {
	WriteEnv(values map[string]string) error
	Build(ctx context.Context) (string, error)
}

// ArtifactPublisher uploads artifacts and purges the CDN
type ArtifactPublisher interface {
	EnsurePlaceholder(ctx context.Context, bucket string) error
	SyncDirectory(ctx context.Context, bucket, dir string, opts publish.SyncOptions) (*publish.SyncSummary, error)
	Invalidate(ctx context.Context, distributionID string, paths []string) error
}

// RunOptions are the operator inputs for one run
type RunOptions struct {
	// TemplateBody is the declarative stack template
	TemplateBody string
	// IdentityRef optionally pins a pre-existing identity pool,
	// bypassing the probe
	IdentityRef string
	// Credential is an optional explicit credential value
	Credential string
	// Force suppresses every confirmation prompt
	Force bool
	// Confirm asks the operator a yes/no question; nil declines
	Confirm func(prompt string) bool
	// OnProgress receives raw stack status strings while polling
	OnProgress func(status string)
}

// Orchestrator runs the two-phase deployment pipeline
type Orchestrator struct {
	cfg       *config.Config
	stacks    StackEnsurer
	creds     CredentialEnsurer
	identity  IdentityProber
	builder   ArtifactBuilder
	publisher ArtifactPublisher
	out       io.Writer
}

// New wires an Orchestrator. out receives human-readable progress and
// must never receive a credential value.
func New(cfg *config.Config, stacks StackEnsurer, creds CredentialEnsurer, identity IdentityProber, builder ArtifactBuilder, publisher ArtifactPublisher, out io.Writer) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		stacks:    stacks,
		creds:     creds,
		identity:  identity,
		builder:   builder,
		publisher: publisher,
		out:       out,
	}
}

// Run executes the full pipeline and returns its terminal outcome.
// The returned error, when non-nil, is also recorded in the outcome.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Outcome, error) {
	outcome, err := o.run(ctx, opts)
	if err != nil {
		kind := OutcomeFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = OutcomeCancelled
		}
		return &Outcome{
			Kind:       kind,
			StackName:  o.cfg.StackName,
			SecretPath: o.cfg.SecretPath(),
			Err:        err,
		}, err
	}
	return outcome, nil
}

func (o *Orchestrator) run(ctx context.Context, opts RunOptions) (*Outcome, error) {
	// Resolve the identity pool to reuse, if any.
	identityRef := opts.IdentityRef
	if identityRef == "" {
		finding, err := o.identity.ProbeIdentity(ctx)
		if err != nil {
			return nil, err
		}
		if finding.Present {
			identityRef = finding.Ref.ID
			if finding.Ambiguous {
				fmt.Fprintf(o.out, "Multiple identity pools match project %q; using %s (smallest ID)\n",
					o.cfg.Project, finding.Ref.ID)
			}
			fmt.Fprintf(o.out, "Reusing identity pool %s\n", finding.Ref.ID)
		}
	}

	// Only the secret path travels through the template, and the path
	// is deterministic, so the stack decision can come before the
	// credential is persisted. A declined run must not store one.
	secretPath := o.cfg.SecretPath()

	// Phase one: provision everything. The distribution can reference
	// the bucket immediately; its contents come later.
	unit := stack.Unit{
		Name:         o.cfg.StackName,
		TemplateBody: opts.TemplateBody,
		Parameters: map[string]string{
			"ProjectName":         o.cfg.Project,
			"ExistingUserPoolId":  identityRef,
			"CredentialParameter": secretPath,
		},
		Tags: map[string]string{"Project": o.cfg.Project, "ManagedBy": "sloth-deploy"},
	}

	res, err := o.stacks.Ensure(ctx, unit, stack.Options{
		Force:      opts.Force,
		Confirm:    opts.Confirm,
		OnProgress: opts.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	if err := stack.RequireOutputs(o.cfg.StackName, res.Outputs, RequiredOutputs...); err != nil {
		return nil, err
	}

	// A declined update is terminal: report the existing deployment
	// exactly as it stands, with nothing mutated.
	if res.Declined {
		fmt.Fprintln(o.out, "Update declined, reporting the existing deployment as is")
		return &Outcome{
			Kind:       OutcomeSucceeded,
			StackName:  o.cfg.StackName,
			Outputs:    res.Outputs,
			SecretPath: secretPath,
			Declined:   true,
		}, nil
	}

	cred, created, err := o.creds.Ensure(ctx, secretPath, opts.Credential)
	if err != nil {
		return nil, err
	}
	switch {
	case created:
		fmt.Fprintf(o.out, "Stored new credential at %s\n", secretPath)
	case opts.Credential != "":
		fmt.Fprintf(o.out, "A credential already exists at %s; the supplied value was not used. Run rotate-credential to replace it.\n", secretPath)
	default:
		fmt.Fprintf(o.out, "Reusing credential at %s\n", secretPath)
	}
	_ = cred // value is intentionally never used beyond persistence

	bucket := res.Outputs[OutputSiteBucket]
	distribution := res.Outputs[OutputDistributionID]

	if err := o.publisher.EnsurePlaceholder(ctx, bucket); err != nil {
		return nil, err
	}

	// Phase two: bake the real endpoints into the build, publish, and
	// purge the edge caches.
	env := map[string]string{
		"VITE_REGION":              o.cfg.Region,
		"VITE_USER_POOL_ID":        res.Outputs[OutputUserPoolID],
		"VITE_USER_POOL_CLIENT_ID": res.Outputs[OutputUserPoolClientID],
		"VITE_WEBSITE_URL":         res.Outputs[OutputWebsiteURL],
	}
	if err := o.builder.WriteEnv(env); err != nil {
		return nil, err
	}

	fmt.Fprintln(o.out, "Building front-end artifact...")
	artifact, err := o.builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(o.out, "Publishing artifact to %s\n", bucket)
	summary, err := o.publisher.SyncDirectory(ctx, bucket, artifact, publish.SyncOptions{DeleteOrphans: true})
	if err != nil {
		// A partial upload is recovered by an idempotent re-run, not
		// a rollback.
		return nil, fmt.Errorf("publish incomplete, re-run to resync: %w", err)
	}
	fmt.Fprintf(o.out, "Uploaded %d files, deleted %d orphans\n", summary.Uploaded, summary.Deleted)

	fmt.Fprintf(o.out, "Invalidating distribution %s\n", distribution)
	if err := o.publisher.Invalidate(ctx, distribution, []string{"/*"}); err != nil {
		return nil, err
	}

	return &Outcome{
		Kind:              OutcomeSucceeded,
		StackName:         o.cfg.StackName,
		Outputs:           res.Outputs,
		SecretPath:        secretPath,
		CredentialCreated: created,
	}, nil
}
