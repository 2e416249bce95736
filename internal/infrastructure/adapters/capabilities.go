package adapters

import (
	"strings"

	"modelscout/internal/domain/catalog"
)

// taskDefaults are the capabilities implied by a model's task when the
// provider says nothing more specific.
var taskDefaults = map[string][]string{
	"chat":       {catalog.CapabilityChat, catalog.CapabilityStreaming},
	"completion": {catalog.CapabilityCompletion},
	"embedding":  {catalog.CapabilityEmbeddings},
	"audio":      {catalog.CapabilityAudio},
}

// tagCapabilities maps provider-advertised tags onto capability names.
// Declaration order is the resolution order.
var tagCapabilities = []struct {
	tag        string
	capability string
}{
	{"vision", catalog.CapabilityVision},
	{"multimodal", catalog.CapabilityVision},
	{"image", catalog.CapabilityVision},
	{"tools", catalog.CapabilityFunctionCalling},
	{"function-calling", catalog.CapabilityFunctionCalling},
	{"function_calling", catalog.CapabilityFunctionCalling},
	{"reasoning", catalog.CapabilityReasoning},
	{"thinking", catalog.CapabilityReasoning},
	{"audio", catalog.CapabilityAudio},
	{"embedding", catalog.CapabilityEmbeddings},
	{"embeddings", catalog.CapabilityEmbeddings},
}

// inferCapabilities merges the task-implied defaults with capabilities
// derived from provider tags and the provider's explicit capability
// list. Explicit capabilities take precedence: they are never dropped
// or rewritten, defaults only fill gaps. Output order is deterministic:
// explicit first, then tag-derived, then task defaults.
func inferCapabilities(task string, tags []string, explicit []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(capability string) {
		capability = strings.ToLower(strings.TrimSpace(capability))
		if capability == "" {
			return
		}
		if _, dup := seen[capability]; dup {
			return
		}
		seen[capability] = struct{}{}
		out = append(out, capability)
	}

	for _, capability := range explicit {
		add(capability)
	}
	for _, entry := range tagCapabilities {
		for _, tag := range tags {
			if strings.EqualFold(strings.TrimSpace(tag), entry.tag) {
				add(entry.capability)
			}
		}
	}
	for _, capability := range taskDefaults[strings.ToLower(task)] {
		add(capability)
	}
	return out
}
