package catalog

import (
	"testing"
	"time"
)

func record(provider, id string) ModelRecord {
	return ModelRecord{Provider: provider, ID: id, DisplayName: id}
}

func TestMergeCrossProviderIDsAreDistinct(t *testing.T) {
	results := []DiscoveryResult{
		{Provider: "p", Models: []ModelRecord{record("p", "m1"), record("p", "m2"), record("p", "m3")}, Fetched: 3},
		{Provider: "q", Models: []ModelRecord{record("q", "m2"), record("q", "m3")}, Fetched: 2},
	}

	agg := Merge("run_test", results, nil, time.Second, time.Now())

	if agg.TotalUnique != 5 {
		t.Fatalf("TotalUnique = %d, want 5 (same id under different providers is not a duplicate)", agg.TotalUnique)
	}
	if agg.Duplicates != 0 {
		t.Fatalf("Duplicates = %d, want 0", agg.Duplicates)
	}
}

func TestMergeFirstOccurrenceWins(t *testing.T) {
	first := record("p", "m1")
	first.DisplayName = "kept"
	second := record("p", "m1")
	second.DisplayName = "dropped"

	results := []DiscoveryResult{
		{Provider: "p", Models: []ModelRecord{first}, Fetched: 1},
		{Provider: "p", Models: []ModelRecord{second, record("p", "m2")}, Fetched: 2},
	}

	agg := Merge("run_test", results, nil, time.Second, time.Now())

	if agg.TotalUnique != 2 {
		t.Fatalf("TotalUnique = %d, want 2", agg.TotalUnique)
	}
	if agg.Duplicates != 1 {
		t.Fatalf("Duplicates = %d, want 1", agg.Duplicates)
	}
	for _, m := range agg.Models {
		if m.ID == "m1" && m.DisplayName != "kept" {
			t.Fatalf("duplicate resolution kept the later record: %q", m.DisplayName)
		}
	}
}

func TestMergeAccountingInvariant(t *testing.T) {
	results := []DiscoveryResult{
		{Provider: "p", Models: []ModelRecord{record("p", "a"), record("p", "b"), record("p", "a")}, Fetched: 3},
		{Provider: "q", Models: []ModelRecord{record("q", "a"), record("q", "a")}, Fetched: 2},
	}

	agg := Merge("run_test", results, nil, time.Second, time.Now())

	totalListed := 0
	for _, result := range results {
		totalListed += len(result.Models)
	}
	if agg.TotalUnique+agg.Duplicates != totalListed {
		t.Fatalf("unique(%d) + duplicates(%d) != listed(%d)", agg.TotalUnique, agg.Duplicates, totalListed)
	}

	uniqueSum := 0
	for _, outcome := range agg.Providers {
		uniqueSum += outcome.Unique
	}
	if uniqueSum != agg.TotalUnique {
		t.Fatalf("per-provider unique sum %d != aggregate unique %d", uniqueSum, agg.TotalUnique)
	}
}

func TestMergeRecordsFailures(t *testing.T) {
	results := []DiscoveryResult{
		{Provider: "p", Models: []ModelRecord{record("p", "a")}, Fetched: 1},
	}
	failures := []ProviderFailure{
		{Provider: "q", ErrorType: "AUTH", Message: "invalid credential"},
	}

	agg := Merge("run_test", results, failures, time.Second, time.Now())

	if len(agg.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(agg.Failures))
	}
	if len(agg.Providers) != 2 {
		t.Fatalf("provider breakdown lines = %d, want 2", len(agg.Providers))
	}
	var failedLine *ProviderOutcome
	for i := range agg.Providers {
		if agg.Providers[i].Provider == "q" {
			failedLine = &agg.Providers[i]
		}
	}
	if failedLine == nil {
		t.Fatal("failed provider missing from breakdown")
	}
	if failedLine.Succeeded {
		t.Fatal("failed provider marked succeeded")
	}
	if failedLine.Error == "" {
		t.Fatal("failed provider has no error message")
	}
}

func TestMergeOrderingIsStable(t *testing.T) {
	results := []DiscoveryResult{
		{Provider: "zeta", Models: []ModelRecord{record("zeta", "z2"), record("zeta", "z1")}},
		{Provider: "alpha", Models: []ModelRecord{record("alpha", "a1")}},
	}

	first := Merge("run_1", results, nil, time.Second, time.Now())
	second := Merge("run_2", results, nil, time.Second, time.Now())

	if len(first.Models) != len(second.Models) {
		t.Fatalf("model counts differ: %d vs %d", len(first.Models), len(second.Models))
	}
	for i := range first.Models {
		if first.Models[i].Key() != second.Models[i].Key() {
			t.Fatalf("ordering differs at %d: %s vs %s", i, first.Models[i].Key(), second.Models[i].Key())
		}
	}
	if first.Models[0].Provider != "alpha" {
		t.Fatalf("first model provider = %s, want alpha", first.Models[0].Provider)
	}
}
