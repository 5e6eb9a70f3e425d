// Package credentials generates, persists, and retrieves the
// application credential. A credential persisted to the secret store
// is never regenerated or overwritten implicitly; only Rotate may
// replace it.
package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
)

// MinLength is the policy minimum for any credential, generated or
// operator-supplied
const MinLength = 20

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ErrNotFound indicates no credential is stored at the requested path
var ErrNotFound = errors.New("credential not found")

// API is the narrow secret-store surface the manager needs.
// *ssm.Client satisfies it.
type API interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// Credential is an opaque secret value plus its secret-store location.
// Its String method masks the value so accidental printing never leaks
// it.
type Credential struct {
	value string
	Path  string
}

// Value returns the raw secret. Callers must never write it to logs,
// command lines, or stack parameters that echo into outputs.
func (c Credential) Value() string {
	return c.value
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential(%s at %s)", Mask(c.value), c.Path)
}

// PolicyError indicates a credential value violates the entropy policy
type PolicyError struct {
	Length int
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("credential is %d characters; the minimum is %d", e.Length, MinLength)
}

// Manager owns the application credential lifecycle
type Manager struct {
	api    API
	genLen int
}

// NewManager creates a Manager that generates credentials of genLen
// alphanumeric characters when none exists.
func NewManager(api API, genLen int) *Manager {
	if genLen < MinLength {
		genLen = MinLength
	}
	return &Manager{api: api, genLen: genLen}
}

// Ensure returns the credential at path, creating it exactly once.
// Priority: existing stored value > explicit operator value > a fresh
// generated value. The returned bool reports whether a new credential
// was persisted.
func (m *Manager) Ensure(ctx context.Context, path, explicit string) (Credential, bool, error) {
	// Reject a bad operator value before any remote call.
	if explicit != "" && len(explicit) < MinLength {
		return Credential{}, false, &PolicyError{Length: len(explicit)}
	}

	existing, found, err := m.read(ctx, path)
	if err != nil {
		return Credential{}, false, err
	}
	if found {
		// Re-running a deployment must never rotate a credential a
		// client may already be using.
		return Credential{value: existing, Path: path}, false, nil
	}

	value := explicit
	if value == "" {
		value, err = Generate(m.genLen)
		if err != nil {
			return Credential{}, false, err
		}
	}

	if err := m.write(ctx, path, value, false); err != nil {
		return Credential{}, false, err
	}
	return Credential{value: value, Path: path}, true, nil
}

// Rotate replaces the credential at path. This is the only code path
// allowed to overwrite a persisted credential, and it only runs on an
// explicit operator request.
func (m *Manager) Rotate(ctx context.Context, path, explicit string) (Credential, error) {
	if explicit != "" && len(explicit) < MinLength {
		return Credential{}, &PolicyError{Length: len(explicit)}
	}

	value := explicit
	if value == "" {
		var err error
		value, err = Generate(m.genLen)
		if err != nil {
			return Credential{}, err
		}
	}

	if err := m.write(ctx, path, value, true); err != nil {
		return Credential{}, err
	}
	return Credential{value: value, Path: path}, nil
}

// Peek returns whether a credential exists at path without exposing it
func (m *Manager) Peek(ctx context.Context, path string) (bool, error) {
	_, found, err := m.read(ctx, path)
	return found, err
}

// Fetch returns the stored credential. Used only by verification flows
// that display the masked form.
func (m *Manager) Fetch(ctx context.Context, path string) (Credential, error) {
	value, found, err := m.read(ctx, path)
	if err != nil {
		return Credential{}, err
	}
	if !found {
		return Credential{}, fmt.Errorf("no credential stored at %s: %w", path, ErrNotFound)
	}
	return Credential{value: value, Path: path}, nil
}

func (m *Manager) read(ctx context.Context, path string) (string, bool, error) {
	out, err := m.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	return aws.ToString(out.Parameter.Value), true, nil
}

func (m *Manager) write(ctx context.Context, path, value string, overwrite bool) error {
	_, err := m.api.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		return fmt.Errorf("failed to persist secret %s: %w", path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ParameterNotFound"
}

// Generate produces n alphanumeric characters from a cryptographically
// strong random source
func Generate(n int) (string, error) {
	if n < MinLength {
		return "", &PolicyError{Length: n}
	}

	max := big.NewInt(int64(len(alphanumeric)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		buf[i] = alphanumeric[idx.Int64()]
	}
	return string(buf), nil
}

// Mask hides the middle of a secret, showing only the first and last
// four characters
func Mask(value string) string {
	if len(value) < 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
