package restapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/pkg/metrics"
)

// SetupRouter configures and returns the Gin router instance.
func SetupRouter(handler *PortfolioHandler, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), cors.Default(), requestMetrics())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/positions/:address", handler.GetPositionsHandler)
		v1.GET("/protocols", handler.GetProtocolsHandler)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Swagger.Enabled {
		registerSwagger(router, cfg.Swagger.Path)
	}

	return router
}

// requestMetrics records every request under its route template, so path
// parameters do not blow up the label cardinality.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.CollectHTTPRequest(c.Request.Method, path, c.Writer.Status(), start)
	}
}

func registerSwagger(router *gin.Engine, path string) {
	if path == "" {
		path = "/swagger"
	}
	router.StaticFile("/docs/swagger.yaml", "docs/swagger.yaml")
	router.GET(path+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.yaml")))
}
