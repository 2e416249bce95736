package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"modelscout/internal/config"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/utils/crypto"
	"modelscout/internal/utils/idgen"
	"modelscout/internal/utils/platformerrors"
)

const encryptedPrefix = "enc:"

// Store resolves provider credentials.
type Store interface {
	// GetSecureKey returns the credential for a provider. Providers whose
	// config declares no key env var resolve to an empty credential.
	GetSecureKey(ctx context.Context, provider string) (string, error)
}

// EnvStore reads credentials from the environment variables named in the
// provider config. Values prefixed "enc:" are AES-GCM ciphertexts
// decrypted with the service's provider key secret.
type EnvStore struct {
	cfg *config.Config
}

func NewEnvStore(cfg *config.Config) *EnvStore {
	return &EnvStore{cfg: cfg}
}

func (s *EnvStore) GetSecureKey(ctx context.Context, provider string) (string, error) {
	entry, ok := s.cfg.ProviderByName(provider)
	if !ok {
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
			platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("provider %q is not configured", provider), nil,
			"3c7d9a15-2b60-4a8e-b1f4-9e57c8d20a6b")
	}

	if entry.APIKeyEnv == "" {
		// Keyless provider (e.g. a local runtime).
		return "", nil
	}

	value := strings.TrimSpace(os.Getenv(entry.APIKeyEnv))
	if value == "" {
		return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
			platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("credential for provider %q is absent (%s not set)", provider, entry.APIKeyEnv), nil,
			"b8e4f1d7-6a92-4c35-8d01-47fa3e9c52b0")
	}

	if strings.HasPrefix(value, encryptedPrefix) {
		secret := strings.TrimSpace(s.cfg.ProviderKeySecret)
		if secret == "" {
			return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
				platformerrors.ErrorTypeConfiguration,
				"PROVIDER_KEY_SECRET is not configured but an encrypted credential was supplied", nil,
				"f2a0c6e9-1d48-4b73-a5c2-80d9e6b13f47")
		}
		plain, err := crypto.DecryptString(secret, strings.TrimPrefix(value, encryptedPrefix))
		if err != nil {
			return "", platformerrors.NewError(ctx, platformerrors.LayerInfrastructure,
				platformerrors.ErrorTypeConfiguration,
				fmt.Sprintf("failed to decrypt credential for provider %q", provider), err,
				"7d5b2e90-c3f6-4817-9a24-e1b08c64da53")
		}
		value = plain
	}

	log := logger.GetLogger()
	log.Debug().
		Str("provider", provider).
		Str("key_fingerprint", idgen.HashKey256(value, []byte(provider))[:8]).
		Msg("resolved provider credential")
	return value, nil
}
