package server

import (
	"github.com/gin-gonic/gin"

	"catalogserver/server/middleware"
)

// buildRouter собирает маршруты API
func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(ginMode(s.config.LogLevel))

	router := gin.New()
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinRequestIDMiddleware())
	router.Use(middleware.GinLoggerMiddleware(s.logger))
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinGzipMiddleware())
	router.Use(middleware.GinRateLimitMiddleware(s.config.RateLimitPerSec, s.config.RateLimitBurst))

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/import", s.handleImport)
		api.POST("/resolve", s.handleResolve)
		api.GET("/search", s.handleSearch)

		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)

		api.GET("/rulesets", s.handleListRulesets)
		api.GET("/rulesets/active", s.handleActiveRuleset)
		api.GET("/rulesets/:id", s.handleGetRuleset)

		api.GET("/export/market", s.handleExportMarket)
	}

	return router
}
