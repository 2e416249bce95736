package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/ratelimit"
	"modelscout/internal/utils/platformerrors"
)

// OllamaAdapter discovers models installed on a local Ollama runtime.
// The runtime is keyless; Initialize probes /api/version so a stopped
// daemon is caught at startup, while mid-run unreachability surfaces as
// TRANSIENT.
type OllamaAdapter struct {
	baseAdapter
}

type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

type ollamaModel struct {
	Name       string             `json:"name"`
	Model      string             `json:"model"`
	ModifiedAt time.Time          `json:"modified_at"`
	Size       int64              `json:"size"`
	Digest     string             `json:"digest"`
	Details    ollamaModelDetails `json:"details"`
}

type ollamaModelDetails struct {
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

type ollamaShowResponse struct {
	Details    ollamaModelDetails `json:"details"`
	Parameters string             `json:"parameters"`
	ModelInfo  map[string]any     `json:"model_info"`
}

func NewOllamaAdapter(entry config.ProviderEntry, opts Options) *OllamaAdapter {
	baseURL := entry.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaAdapter{
		baseAdapter: newBaseAdapter(entry.Name, "ollama", baseURL, "", opts),
	}
}

func (a *OllamaAdapter) Initialize(ctx context.Context) error {
	a.initClient()
	return a.probe(ctx, a.endpoint("/api/version"))
}

func (a *OllamaAdapter) DiscoverModels(ctx context.Context, page PageRequest) (Page, error) {
	if err := a.requireInitialized(ctx); err != nil {
		return Page{}, err
	}
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

	var respBody ollamaTagsResponse
	resp, err := a.restyClient().R().
		SetContext(ctx).
		SetResult(&respBody).
		Get(a.endpoint("/api/tags"))
	a.recordCall(err)
	if err != nil {
		return Page{}, a.transportError(ctx, err, "list models")
	}
	if resp.IsError() {
		return Page{}, a.errorFromResponse(ctx, resp, "list models")
	}

	records := make([]catalog.ModelRecord, 0, len(respBody.Models))
	for _, m := range respBody.Models {
		if page.Search != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(page.Search)) {
			continue
		}
		records = append(records, a.toRecord(m))
	}
	result := Page{Records: records}
	a.storeCached(cacheKey, result)
	return result, nil
}

func (a *OllamaAdapter) GetModelDetails(ctx context.Context, modelID string) (catalog.ModelRecord, error) {
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

	var show ollamaShowResponse
	resp, err := a.restyClient().R().
		SetContext(ctx).
		SetBody(map[string]string{"model": modelID}).
		SetResult(&show).
		Post(a.endpoint("/api/show"))
	a.recordCall(err)
	if err != nil {
		return catalog.ModelRecord{}, a.transportError(ctx, err, "get model details")
	}
	if resp.StatusCode() == 404 {
		return catalog.ModelRecord{}, platformerrors.NewError(ctx, platformerrors.LayerAdapter,
			platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("model %q is not installed on provider %q", modelID, a.name), nil,
			"e61f8a39-0d27-4b54-9c86-3a15d0f72e4b")
	}
	if resp.IsError() {
		return catalog.ModelRecord{}, a.errorFromResponse(ctx, resp, "get model details")
	}

	record := a.toRecord(ollamaModel{Name: modelID, Details: show.Details})
	if len(show.ModelInfo) > 0 {
		record.Raw["model_info"] = show.ModelInfo
		if ctxLen, ok := contextLengthFromModelInfo(show.ModelInfo); ok {
			record.ContextLength = ctxLen
		}
	}
	a.storeCached(cacheKey, record)
	return record, nil
}

func (a *OllamaAdapter) TestModel(ctx context.Context, modelID string, kind TestKind) error {
	if err := a.requireInitialized(ctx); err != nil {
		return err
	}

	switch kind {
	case TestKindChat:
		if err := a.acquire(ctx, 8, ratelimit.PriorityHigh); err != nil {
			return err
		}
		body := map[string]any{
			"model":    modelID,
			"messages": []map[string]string{{"role": "user", "content": "ping"}},
			"stream":   false,
			"options":  map[string]any{"num_predict": 1},
		}
		resp, err := a.restyClient().R().
			SetContext(ctx).
			SetBody(body).
			Post(a.endpoint("/api/chat"))
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
			Post(a.endpoint("/api/embed"))
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

func (a *OllamaAdapter) toRecord(m ollamaModel) catalog.ModelRecord {
	task := "chat"
	lower := strings.ToLower(m.Name)
	if strings.Contains(lower, "embed") {
		task = "embedding"
	}

	var tags []string
	if m.Details.Family != "" {
		tags = append(tags, m.Details.Family)
	}
	for _, family := range m.Details.Families {
		if family != m.Details.Family {
			tags = append(tags, family)
		}
	}
	// Multimodal families advertise a vision projector as a second family.
	for _, family := range m.Details.Families {
		if strings.EqualFold(family, "clip") || strings.EqualFold(family, "mllama") {
			tags = append(tags, "vision")
		}
	}

	record := catalog.ModelRecord{
		Provider:     a.name,
		ID:           m.Name,
		DisplayName:  m.Name,
		Task:         task,
		Capabilities: inferCapabilities(task, tags, nil),
		Streaming:    task == "chat",
		Tags:         tags,
		Raw: map[string]any{
			"digest":             m.Digest,
			"size":               m.Size,
			"parameter_size":     m.Details.ParameterSize,
			"quantization_level": m.Details.QuantizationLevel,
		},
	}
	if !m.ModifiedAt.IsZero() {
		record.Raw["modified_at"] = m.ModifiedAt
	}
	return record
}

// contextLengthFromModelInfo digs the architecture-specific context
// length out of /api/show model_info (e.g. "llama.context_length").
func contextLengthFromModelInfo(info map[string]any) (int, bool) {
	for key, value := range info {
		if !strings.HasSuffix(key, ".context_length") {
			continue
		}
		if f, ok := value.(float64); ok {
			return int(f), true
		}
	}
	return 0, false
}

var _ Adapter = (*OllamaAdapter)(nil)
