// Package api exposes the inventory resources over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/export"
	"github.com/raffchen/inventory/internal/ingestion"
	"github.com/raffchen/inventory/internal/middleware"
	"github.com/raffchen/inventory/internal/recordloader"
)

// BasePath prefixes every resource route.
const BasePath = "/api/inventory"

// Deps wires the router.
type Deps struct {
	Records  RecordService
	Loader   recordloader.Fetcher
	Exporter *export.Service
	Importer *ingestion.Service
	Registry domain.Registry
	Logger   zerolog.Logger
	// Health reports whether the store is reachable. Nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter builds the gin engine. Routes per resource:
//
//	GET    /api/inventory/<resource>              list, X-Total-Count header
//	GET    /api/inventory/<resource>/many         batch get (?id=1&id=2 or ?ids=1,2)
//	GET    /api/inventory/<resource>/export       XLSX export of the list query
//	GET    /api/inventory/<resource>/:id          live record
//	GET    /api/inventory/<resource>/:id/history  change history
//	POST   /api/inventory/<resource>              create or resurrect
//	POST   /api/inventory/<resource>/import       CSV or XLSX upload, one create per row
//	PUT    /api/inventory/<resource>/:id          partial update
//	DELETE /api/inventory/<resource>/:id          soft delete
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(deps.Logger), gin.Recovery())

	router.GET("/healthz", healthHandler(deps.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	loader := deps.Loader
	if loader == nil {
		loader = deps.Records
	}
	h := NewHandlers(deps.Records, deps.Exporter, deps.Importer, deps.Logger)
	inventory := router.Group(BasePath, middleware.DataLoader(loader, deps.Registry))
	for _, resource := range deps.Registry.Resources() {
		kind := deps.Registry[resource]
		g := inventory.Group("/" + resource)
		g.GET("", h.List(kind))
		g.GET("/many", h.GetMany(kind))
		if deps.Exporter != nil {
			g.GET("/export", h.Export(kind))
		}
		g.GET("/:id", h.Get(kind))
		g.GET("/:id/history", h.History(kind))
		g.POST("", h.Create(kind))
		if deps.Importer != nil {
			g.POST("/import", h.Import(kind))
		}
		g.PUT("/:id", h.Update(kind))
		g.DELETE("/:id", h.Delete(kind))
	}
	return router
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
