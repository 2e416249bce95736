package adapters

import (
	"context"
	"fmt"
	"strings"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/ratelimit"
	"modelscout/internal/utils/platformerrors"
)

// OpenAIAdapter discovers models from an OpenAI-compatible /v1 API. The
// listing endpoint is unpaged; the full set is returned on the first
// page.
type OpenAIAdapter struct {
	baseAdapter
}

type openAIModelsResponse struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

func NewOpenAIAdapter(entry config.ProviderEntry, apiKey string, opts Options) *OpenAIAdapter {
	baseURL := entry.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{
		baseAdapter: newBaseAdapter(entry.Name, "openai", baseURL, apiKey, opts),
	}
}

// Initialize validates the credential, builds the HTTP client and runs
// one lightweight listing probe against the provider.
func (a *OpenAIAdapter) Initialize(ctx context.Context) error {
	if strings.TrimSpace(a.apiKey) == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerAdapter,
			platformerrors.ErrorTypeConfiguration,
			fmt.Sprintf("provider %q requires an API key", a.name), nil,
			"0f6a83d1-74c2-4e9b-a5d8-3b91c0e62f57")
	}
	a.initClient()
	return a.probe(ctx, a.endpoint("/models?limit=1"))
}

func (a *OpenAIAdapter) DiscoverModels(ctx context.Context, page PageRequest) (Page, error) {
	if err := a.requireInitialized(ctx); err != nil {
		return Page{}, err
	}
	// Unpaged listing: any non-empty cursor is past the end.
	if page.Cursor != "" {
		return Page{}, nil
	}

	cacheKey := "models:search=" + strings.ToLower(page.Search)
	if cached, ok := a.cachedPage(cacheKey); ok {
		return cached, nil
	}

	if err := a.acquire(ctx, 0, ratelimit.PriorityLow); err != nil {
		return Page{}, err
	}

	var respBody openAIModelsResponse
	resp, err := a.restyClient().R().
		SetContext(ctx).
		SetResult(&respBody).
		Get(a.endpoint("/models"))
	a.recordCall(err)
	if err != nil {
		return Page{}, a.transportError(ctx, err, "list models")
	}
	if resp.IsError() {
		return Page{}, a.errorFromResponse(ctx, resp, "list models")
	}

	records := make([]catalog.ModelRecord, 0, len(respBody.Data))
	for _, m := range respBody.Data {
		if page.Search != "" && !strings.Contains(strings.ToLower(m.ID), strings.ToLower(page.Search)) {
			continue
		}
		records = append(records, a.toRecord(m))
	}
	result := Page{Records: records}
	a.storeCached(cacheKey, result)
	return result, nil
}

func (a *OpenAIAdapter) GetModelDetails(ctx context.Context, modelID string) (catalog.ModelRecord, error) {
	if err := a.requireInitialized(ctx); err != nil {
		return catalog.ModelRecord{}, err
	}

	cacheKey := "details:" + modelID
	if cached, ok := a.cachedRecord(cacheKey); ok {
		return cached, nil
	}

	if err := a.acquire(ctx, 0, ratelimit.PriorityHigh); err != nil {
		return catalog.ModelRecord{}, err
	}

	var m openAIModel
	resp, err := a.restyClient().R().
		SetContext(ctx).
		SetResult(&m).
		Get(a.endpoint("/models/" + modelID))
	a.recordCall(err)
	if err != nil {
		return catalog.ModelRecord{}, a.transportError(ctx, err, "get model details")
	}
	if resp.StatusCode() == 404 {
		return catalog.ModelRecord{}, platformerrors.NewError(ctx, platformerrors.LayerAdapter,
			platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("model %q is not known to provider %q", modelID, a.name), nil,
			"47d2e9b0-8c15-4f6a-b3d7-0e92a61c58f4")
	}
	if resp.IsError() {
		return catalog.ModelRecord{}, a.errorFromResponse(ctx, resp, "get model details")
	}

	record := a.toRecord(m)
	a.storeCached(cacheKey, record)
	return record, nil
}

// TestModel issues the cheapest possible request that exercises the
// model for the given kind.
func (a *OpenAIAdapter) TestModel(ctx context.Context, modelID string, kind TestKind) error {
	if err := a.requireInitialized(ctx); err != nil {
		return err
	}

	switch kind {
	case TestKindChat:
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

	case TestKindEmbedding:
		if err := a.acquire(ctx, 1, ratelimit.PriorityHigh); err != nil {
			return err
		}
		body := map[string]any{"model": modelID, "input": "ping"}
		resp, err := a.restyClient().R().
			SetContext(ctx).
			SetBody(body).
			Post(a.endpoint("/embeddings"))
		a.recordCall(err)
		if err != nil {
			return a.transportError(ctx, err, "test model")
		}
		if resp.IsError() {
			return a.errorFromResponse(ctx, resp, "test model")
		}
		return nil

	default:
		_, err := a.GetModelDetails(ctx, modelID)
		return err
	}
}

func (a *OpenAIAdapter) toRecord(m openAIModel) catalog.ModelRecord {
	task := openAITask(m.ID)
	tags := openAITags(m.ID)
	record := catalog.ModelRecord{
		Provider:     a.name,
		ID:           m.ID,
		DisplayName:  m.ID,
		Task:         task,
		Capabilities: inferCapabilities(task, tags, nil),
		Streaming:    task == "chat",
		Tags:         tags,
		Deprecated:   openAIDeprecated(m.ID),
		Raw:          map[string]any{"owned_by": m.OwnedBy, "created": m.Created},
	}
	record.FunctionCalling = record.HasCapability(catalog.CapabilityFunctionCalling)
	return record
}

// openAITask classifies a model by its id. The listing endpoint carries
// no task metadata, so naming conventions are all there is.
func openAITask(id string) string {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "embedding"):
		return "embedding"
	case strings.Contains(lower, "whisper"), strings.Contains(lower, "tts"):
		return "audio"
	case strings.Contains(lower, "dall-e"), strings.Contains(lower, "image"):
		return "image"
	case strings.Contains(lower, "moderation"):
		return "moderation"
	case strings.HasPrefix(lower, "davinci"), strings.HasPrefix(lower, "babbage"):
		return "completion"
	default:
		return "chat"
	}
}

func openAITags(id string) []string {
	lower := strings.ToLower(id)
	var tags []string
	if strings.Contains(lower, "4o") || strings.Contains(lower, "vision") {
		tags = append(tags, "vision")
	}
	if strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4") {
		tags = append(tags, "reasoning")
	}
	if openAITask(id) == "chat" && !strings.HasPrefix(lower, "o1") {
		tags = append(tags, "tools")
	}
	return tags
}

func openAIDeprecated(id string) bool {
	lower := strings.ToLower(id)
	return strings.Contains(lower, "-0301") || strings.Contains(lower, "-0314") ||
		strings.HasPrefix(lower, "text-davinci") || strings.HasPrefix(lower, "code-davinci")
}

var _ Adapter = (*OpenAIAdapter)(nil)
