package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"resty.dev/v3"

	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/metrics"
	"modelscout/internal/infrastructure/ratelimit"
	"modelscout/internal/utils/httpclients"
	"modelscout/internal/utils/platformerrors"
)

// baseAdapter holds the state every concrete adapter shares: the resty
// client, the quota gate, the response cache and call counters. Concrete
// adapters embed it and implement the vendor-specific mapping.
type baseAdapter struct {
	name    string
	vendor  string
	baseURL string
	apiKey  string

	gate      QuotaGate
	respCache *lru.LRU[string, any]
	cacheTTL  time.Duration

	mu          sync.Mutex
	client      *resty.Client
	initialized bool
	stats       Stats
}

func newBaseAdapter(name, vendor, baseURL, apiKey string, opts Options) baseAdapter {
	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return baseAdapter{
		name:      name,
		vendor:    vendor,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		gate:      opts.Gate,
		respCache: lru.NewLRU[string, any](size, nil, ttl),
		cacheTTL:  ttl,
		stats:     Stats{Provider: name},
	}
}

func (b *baseAdapter) Name() string   { return b.name }
func (b *baseAdapter) Vendor() string { return b.vendor }

// initClient builds the resty client once. Idempotent.
func (b *baseAdapter) initClient() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return
	}
	b.client = httpclients.NewClient(b.name)
	if b.apiKey != "" {
		b.client.SetAuthToken(b.apiKey)
	}
	b.initialized = true
	b.stats.InitializedAt = time.Now().UTC()
}

func (b *baseAdapter) requireInitialized(ctx context.Context) error {
	b.mu.Lock()
	ok := b.initialized
	b.mu.Unlock()
	if ok {
		return nil
	}
	return platformerrors.NewError(ctx, platformerrors.LayerAdapter,
		platformerrors.ErrorTypeConfiguration,
		fmt.Sprintf("adapter %q used before Initialize", b.name), nil,
		"8d2a61f0-4c37-4b8e-95d1-e6f0a2b47c18")
}

func (b *baseAdapter) restyClient() *resty.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// acquire charges the provider's quota budget before an outbound call.
func (b *baseAdapter) acquire(ctx context.Context, tokenCost float64, priority ratelimit.Priority) error {
	if b.gate == nil {
		return nil
	}
	return b.gate.Acquire(ctx, ratelimit.Request{
		Provider:  b.name,
		TokenCost: tokenCost,
		Priority:  priority,
	})
}

func (b *baseAdapter) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return b.baseURL + path
	}
	return b.baseURL + "/" + path
}

func (b *baseAdapter) recordCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Requests++
	b.stats.LastCallAt = time.Now().UTC()
	if err != nil {
		b.stats.Failures++
		b.stats.LastError = err.Error()
	}
}

func (b *baseAdapter) recordCacheHit() {
	b.mu.Lock()
	b.stats.CacheHits++
	b.mu.Unlock()
	metrics.AdapterCacheHitsTotal.WithLabelValues(b.name).Inc()
}

func (b *baseAdapter) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Cleanup drops the client and cached responses. Safe to call more than
// once; a cleaned-up adapter must be re-initialized before use.
func (b *baseAdapter) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
	b.respCache.Purge()
	b.initialized = false
}

func (b *baseAdapter) cachedPage(key string) (Page, bool) {
	if v, ok := b.respCache.Get(key); ok {
		if page, ok := v.(Page); ok {
			b.recordCacheHit()
			return page, true
		}
	}
	return Page{}, false
}

func (b *baseAdapter) cachedRecord(key string) (catalog.ModelRecord, bool) {
	if v, ok := b.respCache.Get(key); ok {
		if record, ok := v.(catalog.ModelRecord); ok {
			b.recordCacheHit()
			return record, true
		}
	}
	return catalog.ModelRecord{}, false
}

func (b *baseAdapter) storeCached(key string, value any) {
	b.respCache.Add(key, value)
}

// probe issues one lightweight GET during initialization. A failed probe
// tears the adapter back down and surfaces as a configuration error: an
// adapter that cannot reach its provider must not report ready.
func (b *baseAdapter) probe(ctx context.Context, url string) error {
	if err := b.acquire(ctx, 0, ratelimit.PriorityHigh); err != nil {
		b.Cleanup()
		return err
	}
	resp, err := b.restyClient().R().
		SetContext(ctx).
		Get(url)
	b.recordCall(err)
	if err != nil {
		b.Cleanup()
		return platformerrors.NewError(ctx, platformerrors.LayerAdapter,
			platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("provider %q failed its connectivity probe", b.name), err,
			"c93e5f1a-8027-4d6b-b4e8-61a0d72c95f3")
	}
	if resp.IsError() {
		cause := b.errorFromResponse(ctx, resp, "connectivity probe")
		b.Cleanup()
		return platformerrors.NewError(ctx, platformerrors.LayerAdapter,
			platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("provider %q failed its connectivity probe", b.name), cause,
			"2f81ad64-530c-49b7-9e12-d8c46b0a37e5")
	}
	return nil
}

// errorFromResponse maps a provider error response onto the call
// taxonomy. Quota exhaustion is reported to the gate so subsequent
// acquisitions back off.
func (b *baseAdapter) errorFromResponse(ctx context.Context, resp *resty.Response, message string) error {
	statusCode := 0
	body := ""
	retryAfter := time.Duration(0)
	if resp != nil {
		statusCode = resp.StatusCode()
		retryAfter = retryAfterFromHeader(resp.Header().Get("Retry-After"))
		if resp.RawResponse != nil && resp.RawResponse.Body != nil {
			raw, err := io.ReadAll(resp.RawResponse.Body)
			resp.RawResponse.Body.Close()
			if err == nil {
				body = strings.TrimSpace(string(raw))
			}
		}
		if body == "" {
			body = strings.TrimSpace(resp.String())
		}
	}

	errType := platformerrors.FromStatusCode(statusCode)
	metrics.ProviderErrorsTotal.WithLabelValues(b.name, string(errType)).Inc()

	if errType == platformerrors.ErrorTypeQuotaExceeded && b.gate != nil {
		b.gate.ReportQuotaExceeded(b.name, retryAfter)
	}

	detail := fmt.Sprintf("%s: provider %q returned status %d", message, b.name, statusCode)
	if body != "" {
		detail = fmt.Sprintf("%s: %s", detail, truncate(body, 512))
	}
	return platformerrors.NewError(ctx, platformerrors.LayerAdapter, errType, detail, nil,
		"a57e30c2-9b14-4f86-bd63-1c8f5a02e749").WithRetryAfter(retryAfter)
}

// transportError wraps a client-side failure (DNS, connect, ctx expiry).
func (b *baseAdapter) transportError(ctx context.Context, err error, message string) error {
	errType := platformerrors.ErrorTypeTransient
	if ctx.Err() != nil {
		errType = platformerrors.ErrorTypeTimeout
	}
	metrics.ProviderErrorsTotal.WithLabelValues(b.name, string(errType)).Inc()
	return platformerrors.NewError(ctx, platformerrors.LayerAdapter, errType,
		fmt.Sprintf("%s: provider %q unreachable", message, b.name), err,
		"6b9d14f8-2ae0-4c57-8391-d5c7e62f0ab4")
}

// retryAfterFromHeader parses a Retry-After value, either delay seconds
// or an HTTP date.
func retryAfterFromHeader(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
