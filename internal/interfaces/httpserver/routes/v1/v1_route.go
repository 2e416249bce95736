package v1

import (
	"github.com/gin-gonic/gin"

	"modelscout/internal/interfaces/httpserver/handlers/discoveryhandler"
)

// V1Route binds the /v1 API surface.
type V1Route struct {
	discoveryHandler *discoveryhandler.DiscoveryHandler
}

func NewV1Route(discoveryHandler *discoveryhandler.DiscoveryHandler) *V1Route {
	return &V1Route{discoveryHandler: discoveryHandler}
}

func (r *V1Route) RegisterRouter(router *gin.RouterGroup) {
	v1 := router.Group("/v1")

	models := v1.Group("/models")
	models.GET("", r.discoveryHandler.ListModels)
	models.GET("/detail", r.discoveryHandler.GetModel)
	models.POST("/test", r.discoveryHandler.TestModel)

	runs := v1.Group("/discovery")
	runs.POST("/runs", r.discoveryHandler.RunDiscovery)
	runs.GET("/stats", r.discoveryHandler.Stats)
}
