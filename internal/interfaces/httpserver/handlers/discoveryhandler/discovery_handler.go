package discoveryhandler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"modelscout/internal/domain/catalog"
	"modelscout/internal/domain/discovery"
	"modelscout/internal/infrastructure/adapters"
	"modelscout/internal/infrastructure/logger"
	"modelscout/internal/utils/platformerrors"
)

// DiscoveryHandler exposes the discovery orchestrator over HTTP.
type DiscoveryHandler struct {
	orchestrator *discovery.Orchestrator
}

func NewDiscoveryHandler(orchestrator *discovery.Orchestrator) *DiscoveryHandler {
	return &DiscoveryHandler{orchestrator: orchestrator}
}

type runRequest struct {
	Providers         []string `json:"providers"`
	BatchSize         int      `json:"batch_size"`
	MaxModels         int      `json:"max_models"`
	MinPopularity     float64  `json:"min_popularity"`
	ExcludedTags      []string `json:"excluded_tags"`
	IncludeDeprecated bool     `json:"include_deprecated"`
	Search            string   `json:"search"`
	TimeoutSeconds    int      `json:"timeout_seconds"`
}

type testRequest struct {
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model" binding:"required"`
	Kind     string `json:"kind"`
}

// ListModels answers GET /v1/models with optional filters.
func (h *DiscoveryHandler) ListModels(c *gin.Context) {
	criteria := catalog.FindCriteria{
		Provider: c.Query("provider"),
		Task:     c.Query("task"),
		Query:    c.Query("q"),
	}
	for _, capability := range c.QueryArray("capability") {
		if capability = strings.TrimSpace(capability); capability != "" {
			criteria.Capabilities = append(criteria.Capabilities, capability)
		}
	}
	if rawLimit := c.Query("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		criteria.Limit = limit
	}

	models, err := h.orchestrator.FindModels(c.Request.Context(), criteria)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"total":  len(models),
		"data":   models,
	})
}

// GetModel answers GET /v1/models/detail?provider=&id=.
func (h *DiscoveryHandler) GetModel(c *gin.Context) {
	provider := c.Query("provider")
	modelID := c.Query("id")
	if provider == "" || modelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and id parameters are required"})
		return
	}

	record, err := h.orchestrator.GetModelDetails(c.Request.Context(), provider, modelID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// TestModel answers POST /v1/models/test.
func (h *DiscoveryHandler) TestModel(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and model are required"})
		return
	}

	kind := adapters.TestKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = adapters.TestKindProbe
	}
	switch kind {
	case adapters.TestKindChat, adapters.TestKindEmbedding, adapters.TestKindProbe:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown test kind " + string(kind)})
		return
	}

	if err := h.orchestrator.TestModel(c.Request.Context(), req.Provider, req.Model, kind); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider": req.Provider,
		"model":    req.Model,
		"kind":     string(kind),
		"status":   "ok",
	})
}

// RunDiscovery answers POST /v1/discovery/runs with a fresh aggregate.
func (h *DiscoveryHandler) RunDiscovery(c *gin.Context) {
	var req runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed run options"})
			return
		}
	}

	opts := catalog.DiscoveryOptions{
		Providers:         req.Providers,
		BatchSize:         req.BatchSize,
		MaxModels:         req.MaxModels,
		MinPopularity:     req.MinPopularity,
		ExcludedTags:      req.ExcludedTags,
		IncludeDeprecated: req.IncludeDeprecated,
		Search:            req.Search,
	}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	agg, err := h.orchestrator.DiscoverAll(c.Request.Context(), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Stats answers GET /v1/discovery/stats.
func (h *DiscoveryHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Stats())
}

func (h *DiscoveryHandler) respondError(c *gin.Context, err error) {
	log := logger.GetLogger()

	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		platformerrors.LogError(log, platformErr)
		status := platformerrors.ErrorTypeToHTTPStatus(platformErr.Type)
		if platformErr.RetryAfter > 0 {
			seconds := int(platformErr.RetryAfter.Seconds() + 0.5)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"type":    string(platformErr.Type),
				"message": platformErr.Message,
				"code":    platformErr.UUID,
			},
		})
		return
	}

	log.Error().Err(err).Msg("unhandled error in discovery handler")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"type":    string(platformerrors.ErrorTypeInternal),
			"message": "internal error",
		},
	})
}
