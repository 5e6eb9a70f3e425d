package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chalkan3/sloth-deploy/pkg/config"
	"github.com/chalkan3/sloth-deploy/pkg/credentials"
	"github.com/chalkan3/sloth-deploy/pkg/identity"
	"github.com/chalkan3/sloth-deploy/pkg/probe"
	"github.com/chalkan3/sloth-deploy/pkg/publish"
	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

var goodOutputs = map[string]string{
	OutputUserPoolID:       "us-east-1_AAA",
	OutputUserPoolClientID: "client123",
	OutputSiteBucket:       "demo-site-bucket",
	OutputDistributionID:   "E1DEMO",
	OutputWebsiteURL:       "https://d111.cloudfront.net",
}

// harness records the pipeline's calls in order across all stubs
type harness struct {
	calls []string

	stackResult *stack.Result
	stackErr    error
	lastUnit    stack.Unit
	lastOpts    stack.Options

	credErr error

	identityFinding *probe.IdentityFinding
	identityErr     error

	buildErr error
	env      map[string]string

	syncErr       error
	invalidateErr error
	syncedBucket  string
	syncedDir     string
	invalidated   []string
}

func (h *harness) Ensure(ctx context.Context, unit stack.Unit, opts stack.Options) (*stack.Result, error) {
	h.calls = append(h.calls, "stack.Ensure")
	h.lastUnit = unit
	h.lastOpts = opts
	return h.stackResult, h.stackErr
}

func (h *harness) EnsureCredential(ctx context.Context, path, explicit string) (credentials.Credential, bool, error) {
	h.calls = append(h.calls, "credentials.Ensure")
	if h.credErr != nil {
		return credentials.Credential{}, false, h.credErr
	}
	return credentials.Credential{Path: path}, explicit == "", nil
}

func (h *harness) ProbeIdentity(ctx context.Context) (*probe.IdentityFinding, error) {
	h.calls = append(h.calls, "probe.Identity")
	if h.identityErr != nil {
		return nil, h.identityErr
	}
	if h.identityFinding == nil {
		return &probe.IdentityFinding{}, nil
	}
	return h.identityFinding, nil
}

func (h *harness) WriteEnv(values map[string]string) error {
	h.calls = append(h.calls, "build.WriteEnv")
	h.env = values
	return nil
}

func (h *harness) Build(ctx context.Context) (string, error) {
	h.calls = append(h.calls, "build.Build")
	if h.buildErr != nil {
		return "", h.buildErr
	}
	return "/tmp/artifact", nil
}

func (h *harness) EnsurePlaceholder(ctx context.Context, bucket string) error {
	h.calls = append(h.calls, "publish.Placeholder")
	return nil
}

func (h *harness) SyncDirectory(ctx context.Context, bucket, dir string, opts publish.SyncOptions) (*publish.SyncSummary, error) {
	h.calls = append(h.calls, "publish.Sync")
	h.syncedBucket = bucket
	h.syncedDir = dir
	if h.syncErr != nil {
		return nil, h.syncErr
	}
	return &publish.SyncSummary{Uploaded: 3}, nil
}

func (h *harness) Invalidate(ctx context.Context, distributionID string, paths []string) error {
	h.calls = append(h.calls, "publish.Invalidate")
	h.invalidated = paths
	if h.invalidateErr != nil {
		return h.invalidateErr
	}
	return nil
}

type credAdapter struct{ h *harness }

func (a credAdapter) Ensure(ctx context.Context, path, explicit string) (credentials.Credential, bool, error) {
	return a.h.EnsureCredential(ctx, path, explicit)
}

func testConfig() *config.Config {
	return &config.Config{
		Project:   "demo",
		StackName: "demo-webstack",
		Region:    "us-east-1",
	}
}

func newHarness() *harness {
	return &harness{stackResult: &stack.Result{State: stack.StateSucceeded, Changed: true, Outputs: goodOutputs}}
}

func newOrchestrator(h *harness, out *bytes.Buffer) *Orchestrator {
	return New(testConfig(), h, credAdapter{h}, h, h, h, out)
}

func TestRun_FullPipelineOrder(t *testing.T) {
	h := newHarness()
	var out bytes.Buffer

	outcome, err := newOrchestrator(h, &out).Run(context.Background(), RunOptions{TemplateBody: "{}", Force: true})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome.Kind)
	assert.Equal(t, []string{
		"probe.Identity",
		"stack.Ensure",
		"credentials.Ensure",
		"publish.Placeholder",
		"build.WriteEnv",
		"build.Build",
		"publish.Sync",
		"publish.Invalidate",
	}, h.calls)

	assert.Equal(t, "demo-site-bucket", h.syncedBucket)
	assert.Equal(t, "/tmp/artifact", h.syncedDir)
	assert.Equal(t, []string{"/*"}, h.invalidated)
}

func TestRun_InjectsOutputsIntoBuildEnv(t *testing.T) {
	h := newHarness()

	_, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{Force: true})

	require.NoError(t, err)
	assert.Equal(t, "us-east-1_AAA", h.env["VITE_USER_POOL_ID"])
	assert.Equal(t, "client123", h.env["VITE_USER_POOL_CLIENT_ID"])
	assert.Equal(t, "us-east-1", h.env["VITE_REGION"])
	assert.Equal(t, "https://d111.cloudfront.net", h.env["VITE_WEBSITE_URL"])
}

func TestRun_OperatorIdentityRefSkipsProbe(t *testing.T) {
	h := newHarness()

	_, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{
		Force:       true,
		IdentityRef: "us-east-1_PINNED",
	})

	require.NoError(t, err)
	assert.NotContains(t, h.calls, "probe.Identity")
	assert.Equal(t, "us-east-1_PINNED", h.lastUnit.Parameters["ExistingUserPoolId"])
}

func TestRun_ProbedIdentityFlowsIntoParameters(t *testing.T) {
	h := newHarness()
	h.identityFinding = &probe.IdentityFinding{
		Present:   true,
		Ref:       identity.PoolRef{ID: "us-east-1_FOUND"},
		Ambiguous: true,
	}
	var out bytes.Buffer

	_, err := newOrchestrator(h, &out).Run(context.Background(), RunOptions{Force: true})

	require.NoError(t, err)
	assert.Equal(t, "us-east-1_FOUND", h.lastUnit.Parameters["ExistingUserPoolId"])
	assert.Contains(t, out.String(), "Multiple identity pools")
}

func TestRun_SecretPathTravelsAsParameter(t *testing.T) {
	h := newHarness()

	_, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{Force: true})

	require.NoError(t, err)
	assert.Equal(t, "/demo/demo-webstack/app-credential", h.lastUnit.Parameters["CredentialParameter"])
}

func TestRun_StackFailureAbortsBeforeBuild(t *testing.T) {
	h := newHarness()
	h.stackErr = &stack.OperationFailedError{StackName: "demo-webstack", Status: "ROLLBACK_COMPLETE"}

	outcome, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{Force: true})

	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.NotContains(t, h.calls, "build.Build", "no artifact may be built after a phase-one failure")
	assert.NotContains(t, h.calls, "publish.Sync")
}

func TestRun_MissingOutputIsFatal(t *testing.T) {
	h := newHarness()
	partial := map[string]string{}
	for k, v := range goodOutputs {
		partial[k] = v
	}
	delete(partial, OutputDistributionID)
	h.stackResult = &stack.Result{State: stack.StateSucceeded, Outputs: partial}

	outcome, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{Force: true})

	var missingErr *stack.MissingOutputError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, OutputDistributionID, missingErr.Key)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.NotContains(t, h.calls, "build.Build")
}

func TestRun_PublishFailureSuggestsRerun(t *testing.T) {
	h := newHarness()
	h.syncErr = errors.New("connection reset mid-upload")

	outcome, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{Force: true})

	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Contains(t, err.Error(), "re-run to resync")
	assert.NotContains(t, h.calls, "publish.Invalidate")
}

func TestRun_CancellationYieldsCancelledOutcome(t *testing.T) {
	h := newHarness()
	h.stackErr = context.Canceled

	outcome, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{Force: true})

	require.Error(t, err)
	assert.Equal(t, OutcomeCancelled, outcome.Kind)
}

func TestRun_ForceReachesStackOptions(t *testing.T) {
	h := newHarness()

	_, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{Force: true})

	require.NoError(t, err)
	assert.True(t, h.lastOpts.Force)
}

func TestRun_DeclineIsTerminal(t *testing.T) {
	h := newHarness()
	h.stackResult = &stack.Result{State: stack.StateSucceeded, Declined: true, Outputs: goodOutputs}
	var out bytes.Buffer

	outcome, err := newOrchestrator(h, &out).Run(context.Background(), RunOptions{
		Confirm: func(string) bool { return false },
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome.Kind)
	assert.True(t, outcome.Declined)
	assert.Equal(t, goodOutputs, outcome.Outputs)

	// Declining must end the run: no credential is stored and nothing
	// is uploaded, built, or invalidated after the decision.
	assert.Equal(t, []string{"probe.Identity", "stack.Ensure"}, h.calls)
	assert.Contains(t, out.String(), "Update declined")
}

func TestRun_DeclineNeverStoresCredential(t *testing.T) {
	h := newHarness()
	h.stackResult = &stack.Result{State: stack.StateSucceeded, Declined: true, Outputs: goodOutputs}

	outcome, err := newOrchestrator(h, &bytes.Buffer{}).Run(context.Background(), RunOptions{
		Credential: "explicit-credential-value-1",
	})

	require.NoError(t, err)
	assert.False(t, outcome.CredentialCreated)
	assert.NotContains(t, h.calls, "credentials.Ensure")
}

func TestRun_ExplicitCredentialIgnoredIsSurfaced(t *testing.T) {
	h := newHarness()
	var out bytes.Buffer

	_, err := newOrchestrator(h, &out).Run(context.Background(), RunOptions{
		Force:      true,
		Credential: "explicit-credential-value-1",
	})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "was not used")
	assert.Contains(t, out.String(), "rotate-credential")
	assert.NotContains(t, out.String(), "explicit-credential-value-1")
}

func TestRun_IdempotentRerun(t *testing.T) {
	h := newHarness()
	o := newOrchestrator(h, &bytes.Buffer{})

	first, err := o.Run(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)

	second, err := o.Run(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Outputs, second.Outputs)
	assert.Equal(t, first.SecretPath, second.SecretPath)
}
