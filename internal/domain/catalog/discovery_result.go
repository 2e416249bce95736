package catalog

import (
	"sort"
	"time"
)

// DiscoveryOptions parameterizes one enumeration run against one provider.
type DiscoveryOptions struct {
	// Providers restricts the run to these registered provider names.
	// Empty means every provider that initialized successfully.
	Providers         []string      `json:"providers,omitempty"`
	BatchSize         int           `json:"batch_size,omitempty"`
	MaxModels         int           `json:"max_models,omitempty"`
	MinPopularity     float64       `json:"min_popularity,omitempty"`
	ExcludedTags      []string      `json:"excluded_tags,omitempty"`
	IncludeDeprecated bool          `json:"include_deprecated"`
	Search            string        `json:"search,omitempty"`
	Timeout           time.Duration `json:"timeout,omitempty"`
}

// DiscoveryResult is the per-provider output of one enumeration run.
// Constructed once per invocation and never mutated afterwards.
type DiscoveryResult struct {
	Provider string           `json:"provider"`
	Models   []ModelRecord    `json:"models"`
	Fetched  int              `json:"fetched"`
	Filtered int              `json:"filtered"`
	Strategy string           `json:"strategy"`
	Duration time.Duration    `json:"duration"`
	Options  DiscoveryOptions `json:"options"`
}

// ProviderFailure records why one provider's enumeration did not succeed.
type ProviderFailure struct {
	Provider  string `json:"provider"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// ProviderOutcome is the per-provider line of an aggregate's breakdown.
type ProviderOutcome struct {
	Provider  string        `json:"provider"`
	Succeeded bool          `json:"succeeded"`
	Fetched   int           `json:"fetched"`
	Unique    int           `json:"unique"`
	Filtered  int           `json:"filtered"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// AggregateResult merges all per-provider discovery results of one run.
// Append-only during construction; frozen once returned to a caller.
type AggregateResult struct {
	RunID       string            `json:"run_id"`
	Models      []ModelRecord     `json:"models"`
	TotalUnique int               `json:"total_unique"`
	Duplicates  int               `json:"duplicates"`
	Providers   []ProviderOutcome `json:"providers"`
	Failures    []ProviderFailure `json:"failures,omitempty"`
	Duration    time.Duration     `json:"duration"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Merge folds per-provider results into an aggregate, enforcing the
// dedup invariant: of any records sharing (provider, id), the first
// encountered in provider-iteration order survives and every later
// occurrence increments Duplicates. The final model list is sorted by
// provider, then name, so repeated runs yield stable ordering.
func Merge(runID string, results []DiscoveryResult, failures []ProviderFailure, duration time.Duration, completedAt time.Time) *AggregateResult {
	agg := &AggregateResult{
		RunID:       runID,
		Failures:    failures,
		Duration:    duration,
		CompletedAt: completedAt,
	}

	seen := make(map[string]struct{})
	for _, result := range results {
		unique := 0
		for _, record := range result.Models {
			key := record.Key()
			if _, dup := seen[key]; dup {
				agg.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			agg.Models = append(agg.Models, record)
			unique++
		}
		agg.Providers = append(agg.Providers, ProviderOutcome{
			Provider:  result.Provider,
			Succeeded: true,
			Fetched:   result.Fetched,
			Unique:    unique,
			Filtered:  result.Filtered,
			Duration:  result.Duration,
		})
	}

	for _, failure := range failures {
		agg.Providers = append(agg.Providers, ProviderOutcome{
			Provider: failure.Provider,
			Error:    failure.ErrorType + ": " + failure.Message,
		})
	}

	sort.Slice(agg.Models, func(i, j int) bool {
		if agg.Models[i].Provider != agg.Models[j].Provider {
			return agg.Models[i].Provider < agg.Models[j].Provider
		}
		if agg.Models[i].DisplayName != agg.Models[j].DisplayName {
			return agg.Models[i].DisplayName < agg.Models[j].DisplayName
		}
		return agg.Models[i].ID < agg.Models[j].ID
	})
	agg.TotalUnique = len(agg.Models)

	return agg
}
