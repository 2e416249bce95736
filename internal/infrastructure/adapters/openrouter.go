package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	decimal "github.com/shopspring/decimal"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/ratelimit"
	"modelscout/internal/utils/platformerrors"
)

// OpenRouterAdapter discovers models from OpenRouter's aggregated
// catalog. The remote listing is a single document; pagination is served
// from the cached full set with a numeric offset cursor so enumeration
// can batch without refetching.
type OpenRouterAdapter struct {
	baseAdapter
}

type openRouterModelsResponse struct {
	Data []openRouterModel `json:"data"`
}

type openRouterModel struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	Created             int64                  `json:"created"`
	Description         string                 `json:"description"`
	ContextLength       int                    `json:"context_length"`
	Pricing             openRouterPricing      `json:"pricing"`
	Architecture        openRouterArchitecture `json:"architecture"`
	TopProvider         openRouterTopProvider  `json:"top_provider"`
	SupportedParameters []string               `json:"supported_parameters"`
}

type openRouterPricing struct {
	// USD per token, serialized as decimal strings.
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

type openRouterArchitecture struct {
	Modality         string   `json:"modality"`
	InputModalities  []string `json:"input_modalities"`
	OutputModalities []string `json:"output_modalities"`
	Tokenizer        string   `json:"tokenizer"`
}

type openRouterTopProvider struct {
	ContextLength       int  `json:"context_length"`
	MaxCompletionTokens int  `json:"max_completion_tokens"`
	IsModerated         bool `json:"is_moderated"`
}

func NewOpenRouterAdapter(entry config.ProviderEntry, apiKey string, opts Options) *OpenRouterAdapter {
	baseURL := entry.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterAdapter{
		baseAdapter: newBaseAdapter(entry.Name, "openrouter", baseURL, apiKey, opts),
	}
}

// Initialize builds the HTTP client and probes the public catalog
// endpoint. A missing key is not a configuration error here; keyed
// endpoints fail with AUTH when actually called.
func (a *OpenRouterAdapter) Initialize(ctx context.Context) error {
	a.initClient()
	return a.probe(ctx, a.endpoint("/models"))
}

func (a *OpenRouterAdapter) DiscoverModels(ctx context.Context, page PageRequest) (Page, error) {
	if err := a.requireInitialized(ctx); err != nil {
		return Page{}, err
	}

	offset := 0
	if page.Cursor != "" {
		parsed, err := strconv.Atoi(page.Cursor)
		if err != nil || parsed < 0 {
			return Page{}, platformerrors.NewError(ctx, platformerrors.LayerAdapter,
				platformerrors.ErrorTypeValidation,
				fmt.Sprintf("invalid pagination cursor %q for provider %q", page.Cursor, a.name), err,
				"2e8b5f91-c043-4d67-a8e2-97f1d0b36c5a")
		}
		offset = parsed
	}

	all, err := a.fullListing(ctx, page.Search)
	if err != nil {
		return Page{}, err
	}

	if offset >= len(all) {
		return Page{}, nil
	}
	limit := page.Limit
	if limit <= 0 {
		limit = len(all) - offset
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	result := Page{Records: all[offset:end]}
	if end < len(all) {
		result.NextCursor = strconv.Itoa(end)
	}
	return result, nil
}

// fullListing fetches and caches the complete catalog. Pages are sliced
// out of this snapshot so one enumeration run sees a consistent set.
func (a *OpenRouterAdapter) fullListing(ctx context.Context, search string) ([]catalog.ModelRecord, error) {
	cacheKey := "models:search=" + strings.ToLower(search)
	if cached, ok := a.cachedPage(cacheKey); ok {
		return cached.Records, nil
	}

	if err := a.acquire(ctx, 0, ratelimit.PriorityLow); err != nil {
		return nil, err
	}

	var respBody openRouterModelsResponse
	resp, err := a.restyClient().R().
		SetContext(ctx).
		SetResult(&respBody).
		Get(a.endpoint("/models"))
	a.recordCall(err)
	if err != nil {
		return nil, a.transportError(ctx, err, "list models")
	}
	if resp.IsError() {
		return nil, a.errorFromResponse(ctx, resp, "list models")
	}

	records := make([]catalog.ModelRecord, 0, len(respBody.Data))
	for _, m := range respBody.Data {
		if search != "" {
			lower := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(m.ID), lower) &&
				!strings.Contains(strings.ToLower(m.Name), lower) {
				continue
			}
		}
		records = append(records, a.toRecord(m))
	}
	a.storeCached(cacheKey, Page{Records: records})
	return records, nil
}

func (a *OpenRouterAdapter) GetModelDetails(ctx context.Context, modelID string) (catalog.ModelRecord, error) {
	if err := a.requireInitialized(ctx); err != nil {
		return catalog.ModelRecord{}, err
	}

	// The catalog document already carries full detail per model.
	all, err := a.fullListing(ctx, "")
	if err != nil {
		return catalog.ModelRecord{}, err
	}
	for _, record := range all {
		if record.ID == modelID {
			return record, nil
		}
	}
	return catalog.ModelRecord{}, platformerrors.NewError(ctx, platformerrors.LayerAdapter,
		platformerrors.ErrorTypeNotFound,
		fmt.Sprintf("model %q is not known to provider %q", modelID, a.name), nil,
		"b04c7e26-19d8-45f3-a6b0-8e52c91d73af")
}

func (a *OpenRouterAdapter) TestModel(ctx context.Context, modelID string, kind TestKind) error {
	if err := a.requireInitialized(ctx); err != nil {
		return err
	}

	if kind != TestKindChat {
		_, err := a.GetModelDetails(ctx, modelID)
		return err
	}

	if strings.TrimSpace(a.apiKey) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerAdapter,
			platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("provider %q requires an API key for completion probes", a.name), nil,
			"53a9f0d4-6c81-4b2e-97d5-1e40b8c6f239")
	}
	if err := a.acquire(ctx, 8, ratelimit.PriorityHigh); err != nil {
		return err
	}
	body := map[string]any{
		"model":      modelID,
		"messages":   []map[string]string{{"role": "user", "content": "ping"}},
		"max_tokens": 1,
	}
	resp, err := a.restyClient().R().
		SetContext(ctx).
		SetBody(body).
		Post(a.endpoint("/chat/completions"))
	a.recordCall(err)
	if err != nil {
		return a.transportError(ctx, err, "test model")
	}
	if resp.IsError() {
		return a.errorFromResponse(ctx, resp, "test model")
	}
	return nil
}

func (a *OpenRouterAdapter) toRecord(m openRouterModel) catalog.ModelRecord {
	displayName := m.Name
	if displayName == "" {
		displayName = m.ID
	}

	// The modality string and the input-modalities list often describe
	// the same ability; tags stay unique regardless of the source.
	var tags []string
	addTag := func(tag string) {
		for _, existing := range tags {
			if existing == tag {
				return
			}
		}
		tags = append(tags, tag)
	}
	modality := strings.ToLower(m.Architecture.Modality)
	if strings.Contains(modality, "image") || strings.Contains(modality, "multimodal") {
		addTag("vision")
	}
	for _, in := range m.Architecture.InputModalities {
		if strings.EqualFold(in, "image") {
			addTag("vision")
		}
		if strings.EqualFold(in, "audio") {
			addTag("audio")
		}
	}
	var explicit []string
	for _, param := range m.SupportedParameters {
		if param == "tools" || param == "tool_choice" {
			explicit = append(explicit, catalog.CapabilityFunctionCalling)
		}
		if param == "reasoning" || param == "include_reasoning" {
			explicit = append(explicit, catalog.CapabilityReasoning)
		}
	}

	record := catalog.ModelRecord{
		Provider:        a.name,
		ID:              m.ID,
		DisplayName:     displayName,
		Task:            "chat",
		Capabilities:    inferCapabilities("chat", tags, explicit),
		ContextLength:   m.ContextLength,
		MaxOutputTokens: m.TopProvider.MaxCompletionTokens,
		Pricing:         openRouterPricingToModel(m.Pricing),
		Streaming:       true,
		Tags:            tags,
		Raw: map[string]any{
			"created":     m.Created,
			"description": m.Description,
			"tokenizer":   m.Architecture.Tokenizer,
			"moderated":   m.TopProvider.IsModerated,
		},
	}
	record.FunctionCalling = record.HasCapability(catalog.CapabilityFunctionCalling)
	return record
}

// openRouterPricingToModel converts per-token USD strings to the
// canonical per-million-token decimals. Unparseable prices are dropped
// rather than recorded as zero.
func openRouterPricingToModel(p openRouterPricing) *catalog.ModelPricing {
	prompt, promptErr := decimal.NewFromString(strings.TrimSpace(p.Prompt))
	completion, completionErr := decimal.NewFromString(strings.TrimSpace(p.Completion))
	if promptErr != nil && completionErr != nil {
		return nil
	}
	perMTok := decimal.NewFromInt(1_000_000)
	pricing := &catalog.ModelPricing{Currency: "USD"}
	if promptErr == nil {
		pricing.PromptPerMTok = prompt.Mul(perMTok)
	}
	if completionErr == nil {
		pricing.CompletionPerMTok = completion.Mul(perMTok)
	}
	return pricing
}

var _ Adapter = (*OpenRouterAdapter)(nil)
