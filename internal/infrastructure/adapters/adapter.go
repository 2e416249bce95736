package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/ratelimit"
	"modelscout/internal/utils/platformerrors"
)

// TestKind selects the probe used to verify a model responds.
type TestKind string

const (
	TestKindChat      TestKind = "chat"
	TestKindEmbedding TestKind = "embedding"
	// TestKindProbe only checks the model is known to the provider.
	TestKindProbe TestKind = "probe"
)

// PageRequest asks an adapter for one page of its model listing. Cursor
// is opaque to callers; an empty cursor means the first page. Adapters
// whose remote API is unpaged return the full set on the first page.
type PageRequest struct {
	Cursor string
	Limit  int
	Search string
}

// Page is one page of discovered models. An empty NextCursor means the
// listing is exhausted.
type Page struct {
	Records    []catalog.ModelRecord
	NextCursor string
}

// Stats are cumulative per-adapter call counters. Reading stats never
// fails and never touches the provider.
type Stats struct {
	Provider      string    `json:"provider"`
	Requests      int64     `json:"requests"`
	Failures      int64     `json:"failures"`
	CacheHits     int64     `json:"cache_hits"`
	InitializedAt time.Time `json:"initialized_at,omitempty"`
	LastCallAt    time.Time `json:"last_call_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// QuotaGate is the slice of the rate limiter adapters depend on. Every
// outbound provider call passes through Acquire first; provider-signaled
// quota exhaustion is reported back so the limiter can back off.
type QuotaGate interface {
	Acquire(ctx context.Context, req ratelimit.Request) error
	ReportQuotaExceeded(provider string, providerRetryAfter time.Duration)
}

// Adapter is the uniform surface over one model provider's catalog API.
// Initialize must be called (and succeed) before any discovery method;
// it is idempotent. Cleanup releases client resources and always
// succeeds.
type Adapter interface {
	Name() string
	Vendor() string
	Initialize(ctx context.Context) error
	DiscoverModels(ctx context.Context, page PageRequest) (Page, error)
	GetModelDetails(ctx context.Context, modelID string) (catalog.ModelRecord, error)
	TestModel(ctx context.Context, modelID string, kind TestKind) error
	Stats() Stats
	Cleanup()
}

// Options carries the collaborator wiring shared by all adapters.
type Options struct {
	Gate      QuotaGate
	CacheSize int
	CacheTTL  time.Duration
}

// New builds the adapter for a configured provider entry. The API key is
// resolved by the caller; keyless vendors accept an empty key.
func New(entry config.ProviderEntry, apiKey string, opts Options) (Adapter, error) {
	switch strings.ToLower(entry.Vendor) {
	case "openai":
		return NewOpenAIAdapter(entry, apiKey, opts), nil
	case "openrouter":
		return NewOpenRouterAdapter(entry, apiKey, opts), nil
	case "ollama":
		return NewOllamaAdapter(entry, opts), nil
	default:
		return nil, platformerrors.NewError(context.Background(), platformerrors.LayerAdapter,
			platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("unsupported provider vendor %q", entry.Vendor), nil,
			"c91f4b27-3e85-4d60-a1c9-7b2f80de5634")
	}
}
