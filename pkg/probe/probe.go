// Package probe discovers pre-existing remote resources and classifies
// their state before any mutating decision is made. All findings are
// transient: nothing is cached between invocations.
package probe

import (
	"context"
	"fmt"

	"github.com/chalkan3/sloth-deploy/pkg/identity"
	"github.com/chalkan3/sloth-deploy/pkg/stack"
)

// StackDescriber classifies the current state of a named stack
type StackDescriber interface {
	Describe(ctx context.Context, name string) (*stack.Info, error)
}

// SecretPeeker reports whether a secret exists without exposing it
type SecretPeeker interface {
	Peek(ctx context.Context, path string) (bool, error)
}

// PoolFinder locates a reusable identity pool
type PoolFinder interface {
	Find(ctx context.Context) (ref identity.PoolRef, found bool, ambiguous bool, err error)
}

// StackFinding is the probe result for the provisioning stack
type StackFinding struct {
	Present bool
	Info    *stack.Info
}

// SecretFinding is the probe result for the stored credential
type SecretFinding struct {
	Present bool
	Path    string
}

// IdentityFinding is the probe result for the identity pool
type IdentityFinding struct {
	Present bool
	Ref     identity.PoolRef
	// Ambiguous is true when more than one pool matched; the returned
	// Ref is the deterministic tie-break winner.
	Ambiguous bool
}

// Prober queries the remote services for pre-existing resources
type Prober struct {
	stacks  StackDescriber
	secrets SecretPeeker
	pools   PoolFinder
}

// New creates a Prober over the three remote services
func New(stacks StackDescriber, secrets SecretPeeker, pools PoolFinder) *Prober {
	return &Prober{stacks: stacks, secrets: secrets, pools: pools}
}

// ProbeStack classifies the named stack. A missing stack is a normal
// finding; an unrecognized status is a fatal error from the describer.
func (p *Prober) ProbeStack(ctx context.Context, name string) (*StackFinding, error) {
	info, err := p.stacks.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	return &StackFinding{Present: info.State != stack.StateAbsent, Info: info}, nil
}

// ProbeSecret reports whether a credential is already stored at path.
// Not-found is a normal finding; any other error is fatal.
func (p *Prober) ProbeSecret(ctx context.Context, path string) (*SecretFinding, error) {
	found, err := p.secrets.Peek(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe secret %s: %w", path, err)
	}
	return &SecretFinding{Present: found, Path: path}, nil
}

// ProbeIdentity looks for an existing identity pool to reuse
func (p *Prober) ProbeIdentity(ctx context.Context) (*IdentityFinding, error) {
	ref, found, ambiguous, err := p.pools.Find(ctx)
	if err != nil {
		return nil, err
	}
	return &IdentityFinding{Present: found, Ref: ref, Ambiguous: ambiguous}, nil
}
