package catalog

import (
	"strings"
	"time"

	decimal "github.com/shopspring/decimal"
)

// Capability tags attached to a model record.
const (
	CapabilityChat            = "chat"
	CapabilityCompletion      = "completion"
	CapabilityVision          = "vision"
	CapabilityFunctionCalling = "function_calling"
	CapabilityStreaming       = "streaming"
	CapabilityEmbeddings      = "embeddings"
	CapabilityReasoning       = "reasoning"
	CapabilityAudio           = "audio"
)

// ModelPricing is the provider's advertised price per million tokens.
type ModelPricing struct {
	PromptPerMTok     decimal.Decimal `json:"prompt_per_mtok"`
	CompletionPerMTok decimal.Decimal `json:"completion_per_mtok"`
	Currency          string          `json:"currency"`
}

// ModelRecord is the canonical representation of one model offered by one
// provider. Identity is the (Provider, ID) pair. Records are value
// objects: enrichment copies a record, it never mutates one in place.
type ModelRecord struct {
	Provider        string         `json:"provider"`
	ID              string         `json:"id"`
	DisplayName     string         `json:"display_name"`
	Task            string         `json:"task"` // "chat", "embedding", "image", ...
	Capabilities    []string       `json:"capabilities,omitempty"`
	ContextLength   int            `json:"context_length,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Pricing         *ModelPricing  `json:"pricing,omitempty"`
	Streaming       bool           `json:"streaming"`
	FunctionCalling bool           `json:"function_calling"`
	Popularity      *float64       `json:"popularity,omitempty"`
	Deprecated      bool           `json:"deprecated"`
	Tags            []string       `json:"tags,omitempty"`
	Raw             map[string]any `json:"-"`

	// Enumeration metadata, attached post-fetch.
	DiscoveredAt time.Time `json:"discovered_at"`
	Strategy     string    `json:"strategy,omitempty"`
}

// Key returns the composite identity used for deduplication.
func (m ModelRecord) Key() string {
	return m.Provider + "/" + m.ID
}

// HasCapability reports whether the record carries the given tag.
func (m ModelRecord) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasTag reports whether the record carries the given raw provider tag.
func (m ModelRecord) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// WithEnumerationMetadata returns a copy carrying discovery metadata.
func (m ModelRecord) WithEnumerationMetadata(at time.Time, strategy string) ModelRecord {
	m.DiscoveredAt = at
	m.Strategy = strategy
	return m
}

// FindCriteria filters an aggregate's model list.
type FindCriteria struct {
	Provider     string
	Task         string
	Capabilities []string // all must match
	Query        string   // substring on name or id, case-insensitive
	Limit        int
}

// Matches reports whether the record satisfies every populated criterion.
func (c FindCriteria) Matches(m ModelRecord) bool {
	if c.Provider != "" && m.Provider != c.Provider {
		return false
	}
	if c.Task != "" && m.Task != c.Task {
		return false
	}
	for _, capability := range c.Capabilities {
		if !m.HasCapability(capability) {
			return false
		}
	}
	if c.Query != "" {
		q := strings.ToLower(c.Query)
		if !strings.Contains(strings.ToLower(m.ID), q) &&
			!strings.Contains(strings.ToLower(m.DisplayName), q) {
			return false
		}
	}
	return true
}
