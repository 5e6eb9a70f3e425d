// Package identity wraps the managed identity service (user pools).
// Pools are always borrowed, never owned: the deployment looks them up
// each run and holds only transient references.
package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// API is the narrow identity-service surface the client needs.
// *cognitoidentityprovider.Client satisfies it.
type API interface {
	ListUserPools(ctx context.Context, params *cognitoidentityprovider.ListUserPoolsInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ListUserPoolsOutput, error)
	CreateUserPool(ctx context.Context, params *cognitoidentityprovider.CreateUserPoolInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.CreateUserPoolOutput, error)
}

// PoolRef is a borrowed handle to an identity pool
type PoolRef struct {
	ID   string
	Name string
}

// Client lists and creates identity pools for one project
type Client struct {
	api    API
	prefix string
}

// NewClient creates a Client scoped to pools whose names start with
// the project prefix.
func NewClient(api API, projectPrefix string) *Client {
	return &Client{api: api, prefix: projectPrefix}
}

// List returns all pools matching the project prefix, sorted by ID
func (c *Client) List(ctx context.Context) ([]PoolRef, error) {
	var refs []PoolRef
	var next *string

	for {
		out, err := c.api.ListUserPools(ctx, &cognitoidentityprovider.ListUserPoolsInput{
			MaxResults: aws.Int32(60),
			NextToken:  next,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list identity pools: %w", err)
		}

		for _, p := range out.UserPools {
			name := aws.ToString(p.Name)
			if c.prefix != "" && !strings.HasPrefix(name, c.prefix) {
				continue
			}
			refs = append(refs, PoolRef{ID: aws.ToString(p.Id), Name: name})
		}

		if out.NextToken == nil {
			break
		}
		next = out.NextToken
	}

	// The service documents no ordering guarantee; sort by ID so the
	// selection below is deterministic across runs.
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// Find returns the pool to reuse, if any. When more than one pool
// matches, the lexicographically smallest ID wins; ambiguous reports
// that more than one candidate existed so callers can log it.
func (c *Client) Find(ctx context.Context) (ref PoolRef, found bool, ambiguous bool, err error) {
	refs, err := c.List(ctx)
	if err != nil {
		return PoolRef{}, false, false, err
	}
	if len(refs) == 0 {
		return PoolRef{}, false, false, nil
	}
	return refs[0], true, len(refs) > 1, nil
}

// Create provisions a new identity pool with email sign-in
func (c *Client) Create(ctx context.Context, name string) (PoolRef, error) {
	out, err := c.api.CreateUserPool(ctx, &cognitoidentityprovider.CreateUserPoolInput{
		PoolName:               aws.String(name),
		AutoVerifiedAttributes: []types.VerifiedAttributeType{types.VerifiedAttributeTypeEmail},
		UsernameAttributes:     []types.UsernameAttributeType{types.UsernameAttributeTypeEmail},
	})
	if err != nil {
		return PoolRef{}, fmt.Errorf("failed to create identity pool %q: %w", name, err)
	}
	return PoolRef{ID: aws.ToString(out.UserPool.Id), Name: aws.ToString(out.UserPool.Name)}, nil
}
