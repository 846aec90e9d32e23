// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package primekg

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/primekg/services/primekg/telemetry"
)

// RegisterRoutes registers the /primekg endpoints on rg.
//
// Endpoints:
//
//	GET  /v1/primekg/search - Tiered name search
//	GET  /v1/primekg/nodes/:id - Node details
//	GET  /v1/primekg/nodes/:id/relationships - Adjacent edges
//	GET  /v1/primekg/drugs/targets - Gene/protein targets of a drug
//	GET  /v1/primekg/diseases/genes - Genes associated with a disease
//	GET  /v1/primekg/paths - Bounded drug to disease paths
//	GET  /v1/primekg/schema - Snapshot vocabulary
//	GET  /v1/primekg/statistics - Snapshot counts
//	GET  /v1/primekg/status - Freshness status
//	GET  /v1/primekg/history - Refresh attempts
//	POST /v1/primekg/refresh - Queue a refresh
//
// Example:
//
//	v1 := router.Group("/v1")
//	primekg.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	kg := rg.Group("/primekg")
	{
		kg.GET("/search", handlers.HandleSearch)

		kg.GET("/nodes/:id", handlers.HandleNodeDetails)
		kg.GET("/nodes/:id/relationships", handlers.HandleNodeRelationships)

		kg.GET("/drugs/targets", handlers.HandleDrugTargets)
		kg.GET("/diseases/genes", handlers.HandleDiseaseGenes)
		kg.GET("/paths", handlers.HandlePaths)

		kg.GET("/schema", handlers.HandleSchema)
		kg.GET("/statistics", handlers.HandleStatistics)

		// Freshness
		kg.GET("/status", handlers.HandleStatus)
		kg.GET("/history", handlers.HandleHistory)
		kg.POST("/refresh", handlers.HandleRefresh)
	}
}

// NewRouter builds the service router with tracing, recovery, health,
// readiness and metrics endpoints. Extra middleware runs after tracing on
// every route; it must be passed here because gin binds a group's
// middleware when a route is registered.
func NewRouter(serviceName string, handlers *Handlers, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware...)

	router.GET("/health", handlers.HandleHealth)
	router.GET("/ready", handlers.HandleReady)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	RegisterRoutes(router.Group("/v1"), handlers)
	return router
}
