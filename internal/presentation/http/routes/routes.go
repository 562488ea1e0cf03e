// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/container"
	"github.com/AtRiskMedia/pagecontent-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/pagecontent-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORSMiddleware())

	contentHandlers := handlers.NewContentHandlers(container.ContentReadService, container.ContentWriteService, container.Logger, container.PerfTracker)
	stylesHandlers := handlers.NewStylesHandlers(container.ContentReadService, container.ContentWriteService, container.Logger, container.PerfTracker)
	historyHandlers := handlers.NewHistoryHandlers(container.HistoryService, container.Logger, container.PerfTracker)
	cacheHandlers := handlers.NewCacheHandlers(
		container.ContentReadService,
		container.CacheManager,
		container.Queue,
		container.Hub,
		container.DB,
		container.Logger,
		container.PerfTracker,
	)
	eventsHandlers := handlers.NewEventsHandlers(container.Hub, container.Logger)

	api := r.Group("/api")
	{
		contentAPI := api.Group("/content")
		{
			contentAPI.GET("", contentHandlers.GetContent)
			contentAPI.GET("/events", eventsHandlers.Stream)
			contentAPI.GET("/:pageId", contentHandlers.GetPage)
			contentAPI.POST("/save", contentHandlers.SaveContent)
			contentAPI.POST("/sync", contentHandlers.SyncContent)
			contentAPI.POST("/edits", contentHandlers.SaveEdits)
		}

		stylesAPI := api.Group("/styles")
		{
			stylesAPI.GET("/:pageId", stylesHandlers.GetStyles)
			stylesAPI.POST("/save", stylesHandlers.SaveStyles)
		}

		historyAPI := api.Group("/history")
		{
			historyAPI.GET("/:pageId/:contentType", historyHandlers.ListVersions)
			historyAPI.GET("/:pageId/:contentType/:versionId", historyHandlers.GetVersion)
		}
		api.POST("/restore-version", historyHandlers.RestoreVersion)

		api.POST("/cache/update", cacheHandlers.UpdateCache)
		api.GET("/status", cacheHandlers.Status)
	}

	return r
}
