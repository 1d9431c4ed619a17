package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/health", handler.Health)

	// API routes for the station
	station := r.Group("/v1")
	{
		station.POST("/scans", handler.SubmitScan)

		station.GET("/scans", handler.ListScans)

		station.GET("/scan", handler.DeepLinkScan)

		station.GET("/status", handler.Status)
	}
}
