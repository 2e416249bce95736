package discovery

import (
	"context"
	"sort"
	"time"

	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/adapters"
	"modelscout/internal/infrastructure/metrics"
	"modelscout/internal/utils/platformerrors"
)

// Enumerator walks one provider's catalog through its adapter, applying
// the strategy's predicates and caps, and produces the provider's
// DiscoveryResult. The sleep hook exists for tests; production wiring
// leaves it nil and gets a real timer.
type Enumerator struct {
	adapter  adapters.Adapter
	strategy Strategy
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewEnumerator(adapter adapters.Adapter, strategy Strategy) *Enumerator {
	return &Enumerator{adapter: adapter, strategy: strategy}
}

// Enumerate runs the batch loop: fetch a page, filter it, stop when the
// cursor ends, the cap is reached or the context expires. A courtesy
// delay separates page fetches so a paged provider is not hammered.
func (e *Enumerator) Enumerate(ctx context.Context, opts catalog.DiscoveryOptions) (catalog.DiscoveryResult, error) {
	strategy := e.strategy.withOptions(opts)
	startedAt := time.Now()

	search := ""
	if strategy.SupportsSearch {
		search = opts.Search
	}

	result := catalog.DiscoveryResult{
		Provider: e.adapter.Name(),
		Strategy: strategy.Name(),
		Options:  opts,
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, platformerrors.NewError(ctx, platformerrors.LayerDomain,
				platformerrors.ErrorTypeTimeout,
				"enumeration abandoned before completion", err,
				"f83b1d60-25c9-4e74-a1f8-6d0c92e54b37")
		}

		page, err := e.adapter.DiscoverModels(ctx, adapters.PageRequest{
			Cursor: cursor,
			Limit:  strategy.BatchSize,
			Search: search,
		})
		if err != nil {
			return result, err
		}

		result.Fetched += len(page.Records)
		now := time.Now().UTC()
		for _, record := range page.Records {
			if !strategy.include(record) {
				result.Filtered++
				continue
			}
			result.Models = append(result.Models, record.WithEnumerationMetadata(now, strategy.Name()))
			if strategy.MaxModels > 0 && len(result.Models) >= strategy.MaxModels {
				break
			}
		}

		capped := strategy.MaxModels > 0 && len(result.Models) >= strategy.MaxModels
		if page.NextCursor == "" || capped || !strategy.SupportsPagination {
			break
		}
		cursor = page.NextCursor

		if strategy.CourtesyDelay > 0 {
			if err := e.pause(ctx, strategy.CourtesyDelay); err != nil {
				return result, platformerrors.NewError(ctx, platformerrors.LayerDomain,
					platformerrors.ErrorTypeTimeout,
					"enumeration abandoned during courtesy delay", err,
					"71c5e2a9-4f08-4db6-93e1-b87d60f3c24a")
			}
		}
	}

	sortRecords(result.Models)
	result.Duration = time.Since(startedAt)

	metrics.ModelsDiscoveredTotal.WithLabelValues(result.Provider).Add(float64(len(result.Models)))
	metrics.DiscoveryDuration.WithLabelValues(result.Provider).Observe(result.Duration.Seconds())
	return result, nil
}

func (e *Enumerator) pause(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sortRecords orders by popularity descending with unknown popularity
// last, then by display name, then id, so repeated runs over the same
// catalog yield identical ordering.
func sortRecords(records []catalog.ModelRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		pi, pj := records[i].Popularity, records[j].Popularity
		switch {
		case pi != nil && pj != nil && *pi != *pj:
			return *pi > *pj
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		if records[i].DisplayName != records[j].DisplayName {
			return records[i].DisplayName < records[j].DisplayName
		}
		return records[i].ID < records[j].ID
	})
}
