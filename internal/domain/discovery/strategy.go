package discovery

import (
	"time"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
)

// Strategy captures how one provider's catalog gets enumerated: batch
// shape, hard caps and the inclusion predicates applied to every fetched
// record.
type Strategy struct {
	BatchSize          int
	MaxModels          int
	SupportsPagination bool
	SupportsFiltering  bool
	SupportsSearch     bool
	MinPopularity      float64
	ExcludedTags       []string
	IncludeDeprecated  bool
	CourtesyDelay      time.Duration
}

// StrategyFromKnobs lifts the per-provider config into a strategy.
func StrategyFromKnobs(k config.EnumerationKnobs) Strategy {
	return Strategy{
		BatchSize:          k.BatchSize,
		MaxModels:          k.MaxModels,
		SupportsPagination: k.SupportsPagination,
		SupportsFiltering:  k.SupportsFiltering,
		SupportsSearch:     k.SupportsSearch,
		MinPopularity:      k.MinPopularity,
		ExcludedTags:       k.ExcludedTags,
		IncludeDeprecated:  k.IncludeDeprecated,
		CourtesyDelay:      k.CourtesyDelay.Std(),
	}
}

// Name labels the enumeration style for run metadata.
func (s Strategy) Name() string {
	if s.SupportsPagination {
		return "paged"
	}
	return "single_batch"
}

// withOptions overlays per-run options onto the configured strategy.
// Only explicitly set options override; zero values leave the config in
// force, except IncludeDeprecated which the caller states outright.
func (s Strategy) withOptions(opts catalog.DiscoveryOptions) Strategy {
	if opts.BatchSize > 0 {
		s.BatchSize = opts.BatchSize
	}
	if opts.MaxModels > 0 {
		s.MaxModels = opts.MaxModels
	}
	if opts.MinPopularity > 0 {
		s.MinPopularity = opts.MinPopularity
	}
	if len(opts.ExcludedTags) > 0 {
		s.ExcludedTags = opts.ExcludedTags
	}
	if opts.IncludeDeprecated {
		s.IncludeDeprecated = true
	}
	return s
}

// include applies the inclusion predicates to one fetched record. A
// record with unknown popularity passes the popularity floor: absence of
// a signal is not evidence of unpopularity.
func (s Strategy) include(record catalog.ModelRecord) bool {
	if record.Deprecated && !s.IncludeDeprecated {
		return false
	}
	for _, excluded := range s.ExcludedTags {
		if record.HasTag(excluded) {
			return false
		}
	}
	if s.MinPopularity > 0 && record.Popularity != nil && *record.Popularity < s.MinPopularity {
		return false
	}
	return true
}
