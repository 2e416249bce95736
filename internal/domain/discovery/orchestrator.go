package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/adapters"
	"modelscout/internal/infrastructure/cache"
	"modelscout/internal/infrastructure/embeddings"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/infrastructure/metrics"
	"modelscout/internal/infrastructure/observability"
	"modelscout/internal/infrastructure/persistence"
	"modelscout/internal/infrastructure/ratelimit"
	"modelscout/internal/infrastructure/secrets"
	"modelscout/internal/utils/idgen"
	"modelscout/internal/utils/platformerrors"
)

const aggregateCacheKey = "discovery:aggregate:last"

type registeredProvider struct {
	entry      config.ProviderEntry
	adapter    adapters.Adapter
	enumerator *Enumerator
	initFailed bool
}

// ProviderStats is one provider's line in the service stats report.
type ProviderStats struct {
	Provider  string          `json:"provider"`
	Vendor    string          `json:"vendor"`
	Adapter   adapters.Stats  `json:"adapter"`
	RateLimit ratelimit.Stats `json:"rate_limit"`
}

// RunSummary is the last aggregate without its model payload.
type RunSummary struct {
	RunID       string                    `json:"run_id"`
	TotalUnique int                       `json:"total_unique"`
	Duplicates  int                       `json:"duplicates"`
	Providers   []catalog.ProviderOutcome `json:"providers"`
	Failures    []catalog.ProviderFailure `json:"failures,omitempty"`
	Duration    time.Duration             `json:"duration"`
	CompletedAt time.Time                 `json:"completed_at"`
}

// ServiceStats is the full stats report of the discovery service.
type ServiceStats struct {
	Providers []ProviderStats `json:"providers"`
	LastRun   *RunSummary     `json:"last_run,omitempty"`
}

// Orchestrator coordinates discovery across every registered provider:
// it fans enumeration out (or walks providers sequentially), isolates
// per-provider failures, merges the results under the dedup invariant
// and hands the aggregate to the cache, embeddings and persistence
// collaborators.
type Orchestrator struct {
	cfg      *config.Config
	limiter  *ratelimit.Limiter
	secrets  secrets.Store
	cache    cache.Store
	embedder *embeddings.Service
	sink     persistence.Sink

	mu        sync.RWMutex
	providers []*registeredProvider
	lastRun   *catalog.AggregateResult
}

func NewOrchestrator(
	cfg *config.Config,
	limiter *ratelimit.Limiter,
	secretStore secrets.Store,
	cacheStore cache.Store,
	embedder *embeddings.Service,
	sink persistence.Sink,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		limiter:  limiter,
		secrets:  secretStore,
		cache:    cacheStore,
		embedder: embedder,
		sink:     sink,
	}
}

// RegisterAdapter registers a pre-built adapter under a provider entry.
// Used for custom adapters; RegisterProviders covers the built-in
// vendors.
func (o *Orchestrator) RegisterAdapter(entry config.ProviderEntry, adapter adapters.Adapter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.limiter.Configure(entry.Name, entry.RateLimit)
	o.providers = append(o.providers, &registeredProvider{
		entry:      entry,
		adapter:    adapter,
		enumerator: NewEnumerator(adapter, StrategyFromKnobs(entry.Enumeration)),
	})
}

// RegisterProviders builds an adapter per configured provider entry and
// registers its quota budget with the rate limiter. Registration order
// is config order; that order decides which duplicate survives a merge.
func (o *Orchestrator) RegisterProviders(ctx context.Context) error {
	log := logger.GetLogger()

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, entry := range o.cfg.Providers {
		apiKey, err := o.secrets.GetSecureKey(ctx, entry.Name)
		if err != nil {
			return err
		}

		adapter, err := adapters.New(entry, apiKey, adapters.Options{
			Gate:      o.limiter,
			CacheSize: o.cfg.AdapterCacheSize,
			CacheTTL:  o.cfg.AdapterCacheTTL,
		})
		if err != nil {
			return err
		}

		o.limiter.Configure(entry.Name, entry.RateLimit)
		o.providers = append(o.providers, &registeredProvider{
			entry:      entry,
			adapter:    adapter,
			enumerator: NewEnumerator(adapter, StrategyFromKnobs(entry.Enumeration)),
		})
		log.Info().
			Str("provider", entry.Name).
			Str("vendor", entry.Vendor).
			Msg("provider registered for discovery")
	}

	if len(o.providers) == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeConfiguration,
			"no providers are registered for discovery", nil,
			"0a48c7d2-95e1-4b36-8fd0-62b3a91e07c5")
	}
	return nil
}

// InitializeAll initializes every adapter. A provider that fails to
// initialize is logged and left out of default discovery runs rather
// than failing the service, unless every provider fails.
func (o *Orchestrator) InitializeAll(ctx context.Context) error {
	log := logger.GetLogger()

	o.mu.RLock()
	providers := append([]*registeredProvider(nil), o.providers...)
	o.mu.RUnlock()

	outcomes := make([]bool, len(providers))
	failed := 0
	for i, p := range providers {
		if err := p.adapter.Initialize(ctx); err != nil {
			outcomes[i] = true
			failed++
			log.Error().Err(err).
				Str("provider", p.entry.Name).
				Msg("provider initialization failed")
			continue
		}
	}

	o.mu.Lock()
	for i, p := range providers {
		p.initFailed = outcomes[i]
	}
	o.mu.Unlock()

	if failed == len(providers) && len(providers) > 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeConfiguration,
			"every configured provider failed to initialize", nil,
			"d79b20e4-63af-4c18-95b2-1f0e84c7a6d3")
	}
	return nil
}

// DiscoverAll runs one full aggregation over the requested provider
// subset (default: every provider that initialized successfully).
// Provider failures never abort the run: each failed provider becomes a
// structured failure line in the aggregate, so the report is explicit
// about what is missing. Only a usage error (no eligible providers, an
// unknown provider name) propagates.
func (o *Orchestrator) DiscoverAll(ctx context.Context, opts catalog.DiscoveryOptions) (*catalog.AggregateResult, error) {
	o.mu.RLock()
	registered := append([]*registeredProvider(nil), o.providers...)
	o.mu.RUnlock()

	if len(registered) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeConfiguration,
			"discovery requested before any provider was registered", nil,
			"4e92d1b7-08c5-4f3a-a6d9-57b20c8e13f6")
	}

	providers, err := selectProviders(ctx, registered, opts.Providers)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeConfiguration,
			"no provider is eligible for discovery, every registered provider failed to initialize", nil,
			"8c05f9e2-41db-4a76-b3c8-290e67d1a5f4")
	}

	ctx, span := observability.StartSpan(ctx, o.cfg.ServiceName, "discovery.run")
	defer span.End()

	overallTimeout := o.cfg.DiscoveryTimeout
	if opts.Timeout > 0 {
		overallTimeout = opts.Timeout
	}
	runCtx := ctx
	if overallTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, overallTimeout)
		defer cancel()
	}

	startedAt := time.Now()

	// Slots are indexed by registration order so the merge sees results
	// in provider-iteration order regardless of completion order.
	results := make([]*catalog.DiscoveryResult, len(providers))
	failures := make([]*catalog.ProviderFailure, len(providers))

	if o.cfg.DiscoveryMode == "sequential" {
		o.discoverSequential(runCtx, providers, opts, results, failures)
	} else {
		o.discoverParallel(runCtx, providers, opts, results, failures)
	}

	ordered := make([]catalog.DiscoveryResult, 0, len(providers))
	failed := make([]catalog.ProviderFailure, 0)
	for i := range providers {
		if results[i] != nil {
			ordered = append(ordered, *results[i])
		}
		if failures[i] != nil {
			failed = append(failed, *failures[i])
		}
	}

	runID, err := idgen.GenerateSecureID("run", 16)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInternal, "failed to allocate run id", err,
			"9c61f3a8-2d04-4e7b-b95c-80da16e24f73")
	}

	agg := catalog.Merge(runID, ordered, failed, time.Since(startedAt), time.Now().UTC())
	observability.AddSpanAttributes(ctx,
		attribute.String("run.id", agg.RunID),
		attribute.Int("run.total_unique", agg.TotalUnique),
		attribute.Int("run.failures", len(agg.Failures)),
	)

	status := "ok"
	if len(failed) > 0 {
		status = "partial"
	}
	if len(ordered) == 0 {
		status = "failed"
	}
	metrics.DiscoveryRunsTotal.WithLabelValues(o.cfg.DiscoveryMode, status).Inc()

	o.afterRun(ctx, agg)
	return agg, nil
}

func (o *Orchestrator) discoverParallel(
	ctx context.Context,
	providers []*registeredProvider,
	opts catalog.DiscoveryOptions,
	results []*catalog.DiscoveryResult,
	failures []*catalog.ProviderFailure,
) {
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			providerCtx := gctx
			if o.cfg.ProviderTimeout > 0 {
				var cancel context.CancelFunc
				providerCtx, cancel = context.WithTimeout(gctx, o.cfg.ProviderTimeout)
				defer cancel()
			}
			result, err := p.enumerator.Enumerate(providerCtx, opts)
			if err != nil {
				failures[i] = providerFailure(p.entry.Name, err)
				return nil
			}
			results[i] = &result
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) discoverSequential(
	ctx context.Context,
	providers []*registeredProvider,
	opts catalog.DiscoveryOptions,
	results []*catalog.DiscoveryResult,
	failures []*catalog.ProviderFailure,
) {
	for i, p := range providers {
		if err := ctx.Err(); err != nil {
			// The run deadline covers the remaining providers too; they
			// are reported, never silently dropped.
			failures[i] = &catalog.ProviderFailure{
				Provider:  p.entry.Name,
				ErrorType: string(platformerrors.ErrorTypeTimeout),
				Message:   "run deadline expired before this provider was reached",
			}
			continue
		}

		providerCtx := ctx
		if o.cfg.ProviderTimeout > 0 {
			var cancel context.CancelFunc
			providerCtx, cancel = context.WithTimeout(ctx, o.cfg.ProviderTimeout)
			result, err := p.enumerator.Enumerate(providerCtx, opts)
			cancel()
			if err != nil {
				failures[i] = providerFailure(p.entry.Name, err)
			} else {
				results[i] = &result
			}
		} else {
			result, err := p.enumerator.Enumerate(providerCtx, opts)
			if err != nil {
				failures[i] = providerFailure(p.entry.Name, err)
			} else {
				results[i] = &result
			}
		}

		if i < len(providers)-1 && o.cfg.SequentialDelay > 0 {
			timer := time.NewTimer(o.cfg.SequentialDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// selectProviders resolves a requested subset against the registered
// set, preserving registration order. An explicitly named provider runs
// even when its initialization failed; the default selection skips
// those. Unknown names are a usage error.
func selectProviders(ctx context.Context, registered []*registeredProvider, names []string) ([]*registeredProvider, error) {
	if len(names) == 0 {
		selected := make([]*registeredProvider, 0, len(registered))
		for _, p := range registered {
			if !p.initFailed {
				selected = append(selected, p)
			}
		}
		return selected, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	selected := make([]*registeredProvider, 0, len(names))
	for _, p := range registered {
		if wanted[p.entry.Name] {
			selected = append(selected, p)
			delete(wanted, p.entry.Name)
		}
	}
	if len(wanted) > 0 {
		var unknown []string
		for _, name := range names {
			if wanted[name] {
				unknown = append(unknown, name)
				delete(wanted, name)
			}
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			"unknown providers requested for discovery: "+strings.Join(unknown, ", "), nil,
			"b7e03d58-26c4-4f19-a8d7-501f92c6e83b")
	}
	return selected, nil
}

func providerFailure(provider string, err error) *catalog.ProviderFailure {
	log := logger.GetLogger()
	log.Error().Err(err).Str("provider", provider).Msg("provider discovery failed")
	return &catalog.ProviderFailure{
		Provider:  provider,
		ErrorType: string(platformerrors.TypeOf(err)),
		Message:   err.Error(),
	}
}

// afterRun hands a completed aggregate to the collaborators. All of
// this is best-effort: collaborator failures are logged, the aggregate
// is already final.
func (o *Orchestrator) afterRun(ctx context.Context, agg *catalog.AggregateResult) {
	log := logger.GetLogger()

	o.mu.Lock()
	o.lastRun = agg
	o.mu.Unlock()

	if o.cache != nil {
		if err := o.cache.Put(ctx, aggregateCacheKey, agg, o.cfg.DiscoveryCacheTTL); err != nil {
			log.Warn().Err(err).Msg("failed to cache discovery aggregate")
		}
	}

	var vectors map[string][]float32
	if o.embedder != nil && o.embedder.Enabled() {
		vectors = o.embedder.EmbedRecords(ctx, agg.Models)
	}

	if o.sink != nil {
		if err := o.sink.SaveRun(ctx, o.cfg.DiscoveryMode, agg, vectors); err != nil {
			log.Error().Err(err).Str("run_id", agg.RunID).Msg("failed to persist discovery run")
		}
	}

	log.Info().
		Str("run_id", agg.RunID).
		Int("total_unique", agg.TotalUnique).
		Int("duplicates", agg.Duplicates).
		Int("failures", len(agg.Failures)).
		Dur("duration", agg.Duration).
		Msg("discovery run completed")
}

// FindModels answers catalog queries from the cached aggregate, running
// a fresh discovery when nothing cached is available or the cached run
// has expired.
func (o *Orchestrator) FindModels(ctx context.Context, criteria catalog.FindCriteria) ([]catalog.ModelRecord, error) {
	agg, err := o.currentAggregate(ctx)
	if err != nil {
		return nil, err
	}

	var matched []catalog.ModelRecord
	for _, record := range agg.Models {
		if !criteria.Matches(record) {
			continue
		}
		matched = append(matched, record)
		if criteria.Limit > 0 && len(matched) >= criteria.Limit {
			break
		}
	}
	return matched, nil
}

func (o *Orchestrator) currentAggregate(ctx context.Context) (*catalog.AggregateResult, error) {
	ttl := o.cfg.DiscoveryCacheTTL
	fresh := func(agg *catalog.AggregateResult) bool {
		return ttl <= 0 || time.Since(agg.CompletedAt) < ttl
	}

	o.mu.RLock()
	last := o.lastRun
	o.mu.RUnlock()
	if last != nil && fresh(last) {
		return last, nil
	}

	if o.cache != nil {
		var cached catalog.AggregateResult
		if ok, err := o.cache.Get(ctx, aggregateCacheKey, &cached); err == nil && ok && fresh(&cached) {
			o.mu.Lock()
			o.lastRun = &cached
			o.mu.Unlock()
			return &cached, nil
		}
	}

	return o.DiscoverAll(ctx, catalog.DiscoveryOptions{})
}

// GetModelDetails resolves one model through its provider's adapter.
func (o *Orchestrator) GetModelDetails(ctx context.Context, provider, modelID string) (catalog.ModelRecord, error) {
	p, err := o.providerByName(ctx, provider)
	if err != nil {
		return catalog.ModelRecord{}, err
	}
	return p.adapter.GetModelDetails(ctx, modelID)
}

// TestModel probes one model through its provider's adapter.
func (o *Orchestrator) TestModel(ctx context.Context, provider, modelID string, kind adapters.TestKind) error {
	p, err := o.providerByName(ctx, provider)
	if err != nil {
		return err
	}
	return p.adapter.TestModel(ctx, modelID, kind)
}

func (o *Orchestrator) providerByName(ctx context.Context, name string) (*registeredProvider, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, p := range o.providers {
		if p.entry.Name == name {
			return p, nil
		}
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
		platformerrors.ErrorTypeNotFound,
		"provider "+name+" is not registered", nil,
		"6f24b8c1-d50e-4a97-83f2-19e6d0c47ab5")
}

// Stats reports adapter and limiter counters per provider plus the last
// run summary. Never touches a provider.
func (o *Orchestrator) Stats() ServiceStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := ServiceStats{}
	for _, p := range o.providers {
		stats.Providers = append(stats.Providers, ProviderStats{
			Provider:  p.entry.Name,
			Vendor:    p.entry.Vendor,
			Adapter:   p.adapter.Stats(),
			RateLimit: o.limiter.Stats(p.entry.Name),
		})
	}
	if o.lastRun != nil {
		stats.LastRun = &RunSummary{
			RunID:       o.lastRun.RunID,
			TotalUnique: o.lastRun.TotalUnique,
			Duplicates:  o.lastRun.Duplicates,
			Providers:   o.lastRun.Providers,
			Failures:    o.lastRun.Failures,
			Duration:    o.lastRun.Duration,
			CompletedAt: o.lastRun.CompletedAt,
		}
	}
	return stats
}

// Cleanup releases every adapter's resources.
func (o *Orchestrator) Cleanup() {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, p := range o.providers {
		p.adapter.Cleanup()
	}
}
