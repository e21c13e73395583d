package routes

import (
	"context"
	"time"

	"ema_scanner_backend/controllers"
	"ema_scanner_backend/middleware"
	"ema_scanner_backend/services/realtime"
	"ema_scanner_backend/services/scanner"
	"ema_scanner_backend/services/store"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, appCtx context.Context, resultStore *store.ResultStore, sc *scanner.UniverseScanner, archive store.Archive, hub *realtime.Hub) {
	scanController := controllers.NewScanController(appCtx, resultStore, sc, archive)

	// Dashboard and its data feed live at the root, matching what the
	// embedded page fetches.
	router.GET("/", scanController.Dashboard)
	router.GET("/scan", scanController.GetScan)

	// WebSocket push: new-snapshot notifications.
	if hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			hub.HandleWebSocket(c.Writer, c.Request)
		})
	}

	// API v1 group
	api := router.Group("/api/v1")
	{
		scan := api.Group("/scan")
		{
			scan.GET("", scanController.GetScan)
			scan.GET("/status", scanController.GetStatus)

			triggerLimiter := middleware.NewRateLimiter(3, 10*time.Minute)
			scan.POST("/trigger", triggerLimiter.Middleware(), scanController.TriggerScan)
		}

		api.GET("/history", scanController.GetHistory)
	}
}
