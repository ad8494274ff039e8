// internal/infra/solana/seed_source_sm.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretspb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	mintdom "blockto/internal/domain/mint"
)

var (
	ErrSeedNotConfigured = errors.New("seed_source: not configured")
	ErrSeedNotFound      = errors.New("seed_source: secret not found")
	ErrSeedAccessDenied  = errors.New("seed_source: secret access denied")
)

// SeedSource returns the custodial mnemonic. Called once at startup.
type SeedSource interface {
	LoadMnemonic(ctx context.Context) (string, error)
}

// EnvSeedSource holds a mnemonic read from the environment (CUSTODIAL_MNEMONIC / BLOCKTO_MNEMONIC).
type EnvSeedSource struct {
	Mnemonic string
}

func (s EnvSeedSource) LoadMnemonic(context.Context) (string, error) {
	m := strings.TrimSpace(s.Mnemonic)
	if m == "" {
		return "", fmt.Errorf("%w: %w: mnemonic env is empty", mintdom.ErrKeyDerivation, ErrSeedNotConfigured)
	}
	return m, nil
}

// SecretManagerSeedSource reads the mnemonic from a Secret Manager secret version.
type SecretManagerSeedSource struct {
	Client *secretmanager.Client

	// Name accepts "projects/<p>/secrets/<s>" or a full ".../versions/<v>" path.
	Name string
}

func NewSecretManagerSeedSource(client *secretmanager.Client, name string) *SecretManagerSeedSource {
	return &SecretManagerSeedSource{Client: client, Name: strings.TrimSpace(name)}
}

func (s *SecretManagerSeedSource) LoadMnemonic(ctx context.Context) (string, error) {
	if s == nil || s.Client == nil || s.Name == "" {
		return "", fmt.Errorf("%w: %w", mintdom.ErrKeyDerivation, ErrSeedNotConfigured)
	}

	name := secretVersionName(s.Name)
	res, err := s.Client.AccessSecretVersion(ctx, &secretspb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("%w: %w", mintdom.ErrKeyDerivation, classifySecretError(err))
	}
	if res == nil || res.Payload == nil {
		return "", fmt.Errorf("%w: %w", mintdom.ErrKeyDerivation, ErrSeedNotFound)
	}

	m := strings.TrimSpace(string(res.Payload.Data))
	clear(res.Payload.Data)
	if m == "" {
		return "", fmt.Errorf("%w: %w: empty payload", mintdom.ErrKeyDerivation, ErrSeedNotFound)
	}
	return m, nil
}

func secretVersionName(name string) string {
	n := strings.Trim(strings.TrimSpace(name), "/")
	if strings.Contains(n, "/versions/") {
		return n
	}
	return n + "/versions/latest"
}

func classifySecretError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrSeedNotFound, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", ErrSeedAccessDenied, err)
	default:
		return fmt.Errorf("seed_source: access secret version: %w", err)
	}
}
