package discovery

import (
	"testing"
	"time"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
)

func floatPtr(f float64) *float64 { return &f }

func TestStrategyName(t *testing.T) {
	if name := (Strategy{SupportsPagination: true}).Name(); name != "paged" {
		t.Fatalf("Name() = %q, want paged", name)
	}
	if name := (Strategy{}).Name(); name != "single_batch" {
		t.Fatalf("Name() = %q, want single_batch", name)
	}
}

func TestStrategyFromKnobs(t *testing.T) {
	knobs := config.EnumerationKnobs{
		BatchSize:          50,
		MaxModels:          200,
		SupportsPagination: true,
		MinPopularity:      0.5,
		ExcludedTags:       []string{"legacy"},
		CourtesyDelay:      config.Duration(250 * time.Millisecond),
	}

	s := StrategyFromKnobs(knobs)

	if s.BatchSize != 50 || s.MaxModels != 200 || !s.SupportsPagination {
		t.Fatalf("strategy = %+v", s)
	}
	if s.CourtesyDelay != 250*time.Millisecond {
		t.Fatalf("courtesy delay = %v", s.CourtesyDelay)
	}
}

func TestStrategyWithOptionsOverlay(t *testing.T) {
	base := Strategy{BatchSize: 100, MaxModels: 500, MinPopularity: 0.2}

	overlaid := base.withOptions(catalog.DiscoveryOptions{MaxModels: 10, IncludeDeprecated: true})

	if overlaid.MaxModels != 10 {
		t.Fatalf("MaxModels = %d, want 10", overlaid.MaxModels)
	}
	if overlaid.BatchSize != 100 || overlaid.MinPopularity != 0.2 {
		t.Fatalf("zero-valued options must not override config: %+v", overlaid)
	}
	if !overlaid.IncludeDeprecated {
		t.Fatal("IncludeDeprecated not applied")
	}
}

func TestStrategyInclude(t *testing.T) {
	s := Strategy{MinPopularity: 0.5, ExcludedTags: []string{"deprecated-family"}}

	tests := []struct {
		name   string
		record catalog.ModelRecord
		want   bool
	}{
		{"plain record", catalog.ModelRecord{ID: "a"}, true},
		{"deprecated excluded by default", catalog.ModelRecord{ID: "a", Deprecated: true}, false},
		{"excluded tag, case-insensitive", catalog.ModelRecord{ID: "a", Tags: []string{"Deprecated-Family"}}, false},
		{"below popularity floor", catalog.ModelRecord{ID: "a", Popularity: floatPtr(0.1)}, false},
		{"above popularity floor", catalog.ModelRecord{ID: "a", Popularity: floatPtr(0.9)}, true},
		{"unknown popularity passes the floor", catalog.ModelRecord{ID: "a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.include(tt.record); got != tt.want {
				t.Errorf("include() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStrategyIncludeDeprecatedOptIn(t *testing.T) {
	s := Strategy{IncludeDeprecated: true}
	if !s.include(catalog.ModelRecord{ID: "a", Deprecated: true}) {
		t.Fatal("deprecated record should pass when opted in")
	}
}
