package catalog

import (
	"testing"
	"time"
)

func TestModelRecordKey(t *testing.T) {
	m := ModelRecord{Provider: "openai", ID: "gpt-4o"}
	if m.Key() != "openai/gpt-4o" {
		t.Fatalf("Key() = %q", m.Key())
	}
}

func TestWithEnumerationMetadataDoesNotMutate(t *testing.T) {
	original := ModelRecord{Provider: "p", ID: "m"}
	at := time.Now()

	enriched := original.WithEnumerationMetadata(at, "paged")

	if !original.DiscoveredAt.IsZero() || original.Strategy != "" {
		t.Fatal("original record was mutated")
	}
	if !enriched.DiscoveredAt.Equal(at) || enriched.Strategy != "paged" {
		t.Fatalf("enriched record = %+v", enriched)
	}
}

func TestFindCriteriaMatches(t *testing.T) {
	m := ModelRecord{
		Provider:     "openrouter",
		ID:           "meta/llama-3-70b",
		DisplayName:  "Llama 3 70B",
		Task:         "chat",
		Capabilities: []string{"chat", "streaming", "function_calling"},
	}

	tests := []struct {
		name     string
		criteria FindCriteria
		want     bool
	}{
		{"empty criteria", FindCriteria{}, true},
		{"provider match", FindCriteria{Provider: "openrouter"}, true},
		{"provider mismatch", FindCriteria{Provider: "openai"}, false},
		{"task match", FindCriteria{Task: "chat"}, true},
		{"task mismatch", FindCriteria{Task: "embedding"}, false},
		{"all capabilities present", FindCriteria{Capabilities: []string{"chat", "streaming"}}, true},
		{"one capability missing", FindCriteria{Capabilities: []string{"chat", "vision"}}, false},
		{"query on id", FindCriteria{Query: "llama-3"}, true},
		{"query on display name case-insensitive", FindCriteria{Query: "LLAMA"}, true},
		{"query mismatch", FindCriteria{Query: "mistral"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.criteria.Matches(m); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
