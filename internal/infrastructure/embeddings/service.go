package embeddings

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"modelscout/internal/config"
	"modelscout/internal/domain/catalog"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/infrastructure/metrics"
)

const defaultModel = "text-embedding-3-small"

// batchSize caps how many inputs go into one embeddings request.
const batchSize = 100

// Service turns discovered model descriptions into embedding vectors so
// the catalog supports semantic lookup. Disabled unless configured; a
// disabled service is a no-op, not an error.
type Service struct {
	client  *openai.Client
	model   string
	enabled bool
}

func NewService(cfg *config.Config) *Service {
	if !cfg.EmbeddingsEnabled || strings.TrimSpace(cfg.EmbeddingsAPIKey) == "" {
		return &Service{}
	}
	clientConfig := openai.DefaultConfig(cfg.EmbeddingsAPIKey)
	if cfg.EmbeddingsBaseURL != "" {
		clientConfig.BaseURL = cfg.EmbeddingsBaseURL
	}
	model := cfg.EmbeddingsModel
	if model == "" {
		model = defaultModel
	}
	return &Service{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		enabled: true,
	}
}

func (s *Service) Enabled() bool { return s.enabled }

// EmbedRecords computes one vector per record, keyed by the record's
// composite identity. Batch failures skip the affected records and keep
// going; enrichment is best-effort and never fails a discovery run.
func (s *Service) EmbedRecords(ctx context.Context, records []catalog.ModelRecord) map[string][]float32 {
	if !s.enabled || len(records) == 0 {
		return nil
	}
	log := logger.GetLogger()

	vectors := make(map[string][]float32, len(records))
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		inputs := make([]string, len(batch))
		for i, record := range batch {
			inputs[i] = describeRecord(record)
		}

		resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: inputs,
			Model: openai.EmbeddingModel(s.model),
		})
		if err != nil {
			log.Warn().Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("embedding batch failed, skipping")
			metrics.EmbeddingsGeneratedTotal.WithLabelValues("error").Add(float64(len(batch)))
			continue
		}

		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(batch) {
				continue
			}
			vectors[batch[item.Index].Key()] = item.Embedding
		}
		metrics.EmbeddingsGeneratedTotal.WithLabelValues("ok").Add(float64(len(resp.Data)))
	}
	return vectors
}

// describeRecord flattens a record into the text that gets embedded.
func describeRecord(record catalog.ModelRecord) string {
	parts := []string{record.Provider, record.DisplayName, record.Task}
	if len(record.Capabilities) > 0 {
		parts = append(parts, strings.Join(record.Capabilities, " "))
	}
	if description, ok := record.Raw["description"].(string); ok && description != "" {
		parts = append(parts, description)
	}
	return strings.Join(parts, ". ")
}
