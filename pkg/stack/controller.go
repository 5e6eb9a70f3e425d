package stack

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/chalkan3/sloth-deploy/pkg/retry"
)

// API is the narrow provisioning-service surface the controller needs.
// *cloudformation.Client satisfies it.
type API interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// Unit is the immutable deployment unit for one invocation: the
// declarative template plus its named parameters.
type Unit struct {
	Name         string
	TemplateBody string
	Parameters   map[string]string
	Tags         map[string]string
}

// Info is a point-in-time view of a stack
type Info struct {
	State     State
	RawStatus string
	Reason    string
	Outputs   map[string]string
}

// Result is the terminal outcome of an Ensure call
type Result struct {
	State State
	// Changed is false when the stack was reused or the update was a no-op
	Changed bool
	// Declined is true when the operator refused the offered update.
	// The run must stop at reporting; no further mutation may follow.
	Declined bool
	Outputs  map[string]string
}

// Options controls a single Ensure call
type Options struct {
	// Force always chooses update-if-exists / create-if-absent and
	// never prompts. It never chooses delete-and-recreate.
	Force bool

	// Confirm asks the operator a yes/no question. A nil Confirm
	// declines everything.
	Confirm func(prompt string) bool

	// OnProgress receives raw status strings while polling
	OnProgress func(status string)
}

// Controller decides create vs update vs reuse vs recreate for a named
// stack and drives the chosen operation to a terminal state.
type Controller struct {
	api          API
	retrier      *retry.Retrier
	pollInterval time.Duration
	timeout      time.Duration
}

// NewController creates a Controller polling at the given fixed
// interval, bounded by the given overall timeout per operation.
func NewController(api API, pollInterval, timeout time.Duration) *Controller {
	cfg := retry.DefaultConfig()
	cfg.RetryIf = retry.IsRetryable
	return &Controller{
		api:          api,
		retrier:      retry.New(cfg),
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Describe fetches and classifies the current stack state. A missing
// stack yields StateAbsent, not an error.
func (c *Controller) Describe(ctx context.Context, name string) (*Info, error) {
	out, err := retry.DoWithData(ctx, c.retrier, func() (*cloudformation.DescribeStacksOutput, error) {
		out, err := c.api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
			StackName: aws.String(name),
		})
		if isThrottled(err) || retry.IsTransientError(err) {
			return nil, retry.NewRetryableError(err)
		}
		return out, err
	})
	if err != nil {
		if isNotExists(err) {
			return &Info{State: StateAbsent}, nil
		}
		return nil, fmt.Errorf("failed to describe stack %q: %w", name, err)
	}
	if len(out.Stacks) == 0 {
		return &Info{State: StateAbsent}, nil
	}

	s := out.Stacks[0]
	raw := string(s.StackStatus)
	state, err := StateFromStatus(raw)
	if err != nil {
		return nil, err
	}

	return &Info{
		State:     state,
		RawStatus: raw,
		Reason:    aws.ToString(s.StackStatusReason),
		Outputs:   outputMap(s.Outputs),
	}, nil
}

// Ensure drives the stack to a terminal successful state, or returns
// the error that explains why it could not.
func (c *Controller) Ensure(ctx context.Context, unit Unit, opts Options) (*Result, error) {
	info, err := c.Describe(ctx, unit.Name)
	if err != nil {
		return nil, err
	}

	// An in-flight operation from a previous run must settle before
	// any decision is made.
	if info.State == StateInProgress {
		info, err = c.waitUntilTerminal(ctx, unit.Name, opts.OnProgress)
		if err != nil {
			return nil, err
		}
	}

	switch info.State {
	case StateAbsent:
		return c.create(ctx, unit, opts)

	case StateSucceeded:
		if !opts.Force && !confirm(opts, fmt.Sprintf("Stack %q already exists. Update it?", unit.Name)) {
			return &Result{State: StateSucceeded, Changed: false, Declined: true, Outputs: info.Outputs}, nil
		}
		return c.update(ctx, unit, info, opts)

	case StateFailed:
		if opts.Force {
			// Force never deletes; let the service accept or reject
			// the update and surface its answer.
			return c.update(ctx, unit, info, opts)
		}
		if !confirm(opts, fmt.Sprintf("Stack %q is in failed status %s. Delete and recreate it?", unit.Name, info.RawStatus)) {
			return nil, &OperationFailedError{StackName: unit.Name, Status: info.RawStatus, Reason: info.Reason}
		}
		if err := c.delete(ctx, unit.Name, opts); err != nil {
			return nil, err
		}
		return c.create(ctx, unit, opts)

	default:
		return nil, fmt.Errorf("unexpected terminal state %q for stack %q", info.State, unit.Name)
	}
}

// Delete removes the stack and waits until it is gone
func (c *Controller) Delete(ctx context.Context, name string, opts Options) error {
	return c.delete(ctx, name, opts)
}

func (c *Controller) create(ctx context.Context, unit Unit, opts Options) (*Result, error) {
	_, err := c.api.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(unit.Name),
		TemplateBody: aws.String(unit.TemplateBody),
		Parameters:   parameterList(unit.Parameters),
		Tags:         tagList(unit.Tags),
		Capabilities: []types.Capability{types.CapabilityCapabilityNamedIam},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stack %q: %w", unit.Name, err)
	}

	info, err := c.waitUntilTerminal(ctx, unit.Name, opts.OnProgress)
	if err != nil {
		return nil, err
	}
	if info.State != StateSucceeded {
		return nil, &OperationFailedError{StackName: unit.Name, Status: info.RawStatus, Reason: info.Reason}
	}
	return &Result{State: StateSucceeded, Changed: true, Outputs: info.Outputs}, nil
}

func (c *Controller) update(ctx context.Context, unit Unit, current *Info, opts Options) (*Result, error) {
	_, err := c.api.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(unit.Name),
		TemplateBody: aws.String(unit.TemplateBody),
		Parameters:   parameterList(unit.Parameters),
		Tags:         tagList(unit.Tags),
		Capabilities: []types.Capability{types.CapabilityCapabilityNamedIam},
	})
	if err != nil {
		// Nothing to change is success, not failure.
		if isNoUpdates(err) {
			return &Result{State: StateSucceeded, Changed: false, Outputs: current.Outputs}, nil
		}
		return nil, fmt.Errorf("failed to update stack %q: %w", unit.Name, err)
	}

	info, err := c.waitUntilTerminal(ctx, unit.Name, opts.OnProgress)
	if err != nil {
		return nil, err
	}
	if info.State != StateSucceeded {
		return nil, &OperationFailedError{StackName: unit.Name, Status: info.RawStatus, Reason: info.Reason}
	}
	return &Result{State: StateSucceeded, Changed: true, Outputs: info.Outputs}, nil
}

func (c *Controller) delete(ctx context.Context, name string, opts Options) error {
	_, err := c.api.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete stack %q: %w", name, err)
	}

	info, err := c.waitUntilTerminal(ctx, name, opts.OnProgress)
	if err != nil {
		return err
	}
	if info.State != StateAbsent {
		return &OperationFailedError{StackName: name, Status: info.RawStatus, Reason: info.Reason}
	}
	return nil
}

// waitUntilTerminal polls at a fixed interval until the stack reaches a
// terminal status, the timeout elapses, or the context is cancelled.
func (c *Controller) waitUntilTerminal(ctx context.Context, name string, onProgress func(string)) (*Info, error) {
	deadline := time.Now().Add(c.timeout)
	lastStatus := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := c.Describe(ctx, name)
		if err != nil {
			return nil, err
		}

		if info.RawStatus != "" {
			lastStatus = info.RawStatus
		}
		if onProgress != nil {
			onProgress(info.RawStatus)
		}

		if info.State.Terminal() {
			return info, nil
		}

		if time.Now().After(deadline) {
			return nil, &TimeoutError{StackName: name, Timeout: c.timeout, LastStatus: lastStatus}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// RequireOutputs verifies every required key is present in the output
// map. A missing key means the template no longer matches this tool.
func RequireOutputs(stackName string, outputs map[string]string, keys ...string) error {
	for _, k := range keys {
		if outputs[k] == "" {
			return &MissingOutputError{StackName: stackName, Key: k}
		}
	}
	return nil
}

func confirm(opts Options, prompt string) bool {
	if opts.Confirm == nil {
		return false
	}
	return opts.Confirm(prompt)
}

func outputMap(outputs []types.Output) map[string]string {
	m := make(map[string]string, len(outputs))
	for _, o := range outputs {
		m[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return m
}

func parameterList(params map[string]string) []types.Parameter {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]types.Parameter, 0, len(params))
	for _, k := range keys {
		list = append(list, types.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(params[k]),
		})
	}
	return list
}

func tagList(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]types.Tag, 0, len(tags))
	for _, k := range keys {
		list = append(list, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(tags[k]),
		})
	}
	return list
}
