package secrets

import (
	"context"
	"testing"

	"modelscout/internal/config"
	"modelscout/internal/utils/crypto"
	"modelscout/internal/utils/platformerrors"
)

func storeConfig() *config.Config {
	return &config.Config{
		Providers: []config.ProviderEntry{
			{Name: "openai", Vendor: "openai", APIKeyEnv: "TEST_SECRETS_OPENAI_KEY"},
			{Name: "ollama", Vendor: "ollama"},
		},
	}
}

func TestGetSecureKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_SECRETS_OPENAI_KEY", "sk-plain")

	store := NewEnvStore(storeConfig())
	key, err := store.GetSecureKey(context.Background(), "openai")
	if err != nil {
		t.Fatalf("GetSecureKey failed: %v", err)
	}
	if key != "sk-plain" {
		t.Fatalf("key = %q, want sk-plain", key)
	}
}

func TestGetSecureKeyAbsent(t *testing.T) {
	t.Setenv("TEST_SECRETS_OPENAI_KEY", "")

	store := NewEnvStore(storeConfig())
	_, err := store.GetSecureKey(context.Background(), "openai")
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeConfiguration) {
		t.Fatalf("error type = %v, want CONFIGURATION", platformerrors.TypeOf(err))
	}
}

func TestGetSecureKeyUnknownProvider(t *testing.T) {
	store := NewEnvStore(storeConfig())
	_, err := store.GetSecureKey(context.Background(), "ghost")
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeConfiguration) {
		t.Fatalf("error type = %v, want CONFIGURATION", platformerrors.TypeOf(err))
	}
}

func TestGetSecureKeyKeylessProvider(t *testing.T) {
	store := NewEnvStore(storeConfig())
	key, err := store.GetSecureKey(context.Background(), "ollama")
	if err != nil {
		t.Fatalf("GetSecureKey failed: %v", err)
	}
	if key != "" {
		t.Fatalf("key = %q, want empty for keyless provider", key)
	}
}

func TestGetSecureKeyDecryptsEncValues(t *testing.T) {
	ciphertext, err := crypto.EncryptString("service-secret", "sk-decrypted")
	if err != nil {
		t.Fatalf("EncryptString failed: %v", err)
	}
	t.Setenv("TEST_SECRETS_OPENAI_KEY", "enc:"+ciphertext)

	cfg := storeConfig()
	cfg.ProviderKeySecret = "service-secret"
	store := NewEnvStore(cfg)

	key, err := store.GetSecureKey(context.Background(), "openai")
	if err != nil {
		t.Fatalf("GetSecureKey failed: %v", err)
	}
	if key != "sk-decrypted" {
		t.Fatalf("key = %q, want sk-decrypted", key)
	}
}

func TestGetSecureKeyEncWithoutServiceSecret(t *testing.T) {
	t.Setenv("TEST_SECRETS_OPENAI_KEY", "enc:deadbeef")

	store := NewEnvStore(storeConfig())
	_, err := store.GetSecureKey(context.Background(), "openai")
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeConfiguration) {
		t.Fatalf("error type = %v, want CONFIGURATION", platformerrors.TypeOf(err))
	}
}

func TestGetSecureKeyBadCiphertext(t *testing.T) {
	t.Setenv("TEST_SECRETS_OPENAI_KEY", "enc:not-a-ciphertext")

	cfg := storeConfig()
	cfg.ProviderKeySecret = "service-secret"
	store := NewEnvStore(cfg)

	_, err := store.GetSecureKey(context.Background(), "openai")
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeConfiguration) {
		t.Fatalf("error type = %v, want CONFIGURATION", platformerrors.TypeOf(err))
	}
}
