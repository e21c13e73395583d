package main

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ema_scanner_backend/config"
	"ema_scanner_backend/routes"
	"ema_scanner_backend/scheduler"
	"ema_scanner_backend/services/marketdata"
	"ema_scanner_backend/services/realtime"
	"ema_scanner_backend/services/scanner"
	"ema_scanner_backend/services/store"
	"ema_scanner_backend/templates"

	"github.com/gin-gonic/gin"
)

// serviceReady tracks whether the scan pipeline finished initializing.
// Guarded for thread-safe access so /ready can check it from any request.
var serviceReady bool
var readyMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  EMA Crossover Scanner - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Load HTML templates from embedded filesystem
	if err := loadTemplates(router); err != nil {
		log.Printf("Warning: Could not load templates: %v", err)
	}

	// Health endpoints first, before the pipeline is wired
	setupHealthEndpoints(router)

	// Create HTTP server with timeouts; bind 0.0.0.0 for container networking
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start serving immediately; the scan pipeline wires up in background
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// appCtx cancels in-flight scans on shutdown, between tickers and
	// between retry attempts, leaving the last published snapshot intact.
	appCtx, cancelScans := context.WithCancel(context.Background())

	var jobScheduler *scheduler.Scheduler
	var archive store.Archive
	var hub *realtime.Hub

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Printf("ERROR: %v", err)
		log.Println("Service will continue in limited mode (no scans)")
		gracefulShutdown(server, nil, nil, nil, cancelScans)
		return
	}

	archive = buildArchive(cfg)

	hub = realtime.NewHub()
	go hub.Run()

	resultStore := store.NewResultStore()
	universeScanner := scanner.NewUniverseScanner(provider, resultStore, scanner.Options{
		Tickers:      cfg.Tickers,
		Pacing:       cfg.PacingInterval,
		LookbackDays: cfg.LookbackDays,
		Retry: marketdata.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Multiplier:  2,
		},
		Archive:  archive,
		Notifier: hub,
	})

	routes.SetupRoutes(router, appCtx, resultStore, universeScanner, archive, hub)

	readyMutex.Lock()
	serviceReady = true
	readyMutex.Unlock()

	jobScheduler = scheduler.NewScheduler(appCtx, cfg, universeScanner)
	go jobScheduler.Start()

	if cfg.ScanOnStart {
		go func() {
			log.Println("Running startup scan...")
			if err := universeScanner.Scan(appCtx); err != nil {
				log.Printf("Startup scan did not complete: %v", err)
			}
		}()
	}

	log.Printf("Application fully initialized: provider=%s, universe=%d tickers, archive=%s",
		provider.Name(), len(cfg.Tickers), archiveName(archive))

	// Graceful shutdown
	gracefulShutdown(server, jobScheduler, archive, hub, cancelScans)
}

// buildProvider constructs the configured market data provider.
func buildProvider(cfg *config.Config) (marketdata.Provider, error) {
	switch cfg.Provider {
	case "polygon":
		if cfg.PolygonAPIKey == "" {
			return nil, fmt.Errorf("POLYGON_API_KEY is not set")
		}
		return marketdata.NewPolygonProvider(cfg.PolygonAPIKey, cfg.PolygonBaseURL), nil
	case "alpaca":
		if cfg.AlpacaAPIKey == "" || cfg.AlpacaSecretKey == "" {
			return nil, fmt.Errorf("ALPACA_API_KEY or ALPACA_SECRET_KEY is not set")
		}
		return marketdata.NewAlpacaProvider(cfg.AlpacaAPIKey, cfg.AlpacaSecretKey), nil
	default:
		return nil, fmt.Errorf("unknown market data provider %q", cfg.Provider)
	}
}

// buildArchive constructs the configured result archive, or nil for none.
// Archive failures are not fatal; the in-memory snapshot still serves.
func buildArchive(cfg *config.Config) store.Archive {
	switch cfg.ArchiveDriver {
	case "mongo":
		archive, err := store.NewMongoArchive(cfg.MongoURI)
		if err != nil {
			log.Printf("MongoDB archive unavailable, continuing without persistence: %v", err)
			return nil
		}
		return archive
	case "sqlite":
		archive, err := store.NewSQLiteArchive(cfg.SQLitePath)
		if err != nil {
			log.Printf("SQLite archive unavailable, continuing without persistence: %v", err)
			return nil
		}
		return archive
	default:
		log.Println("No result archive configured, scan history is in-memory only")
		return nil
	}
}

func archiveName(a store.Archive) string {
	if a == nil {
		return "none"
	}
	return a.Name()
}

// loadTemplates loads HTML templates from the embedded filesystem
func loadTemplates(router *gin.Engine) error {
	tmpl, err := template.ParseFS(templates.TemplateFS, "*.html")
	if err != nil {
		return fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)
	log.Println("HTML templates loaded successfully")
	return nil
}

// setupHealthEndpoints sets up liveness/readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if the scan pipeline is wired
	router.GET("/ready", func(c *gin.Context) {
		readyMutex.RLock()
		isReady := serviceReady
		readyMutex.RUnlock()

		if !isReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Scan pipeline not initialized",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, archive store.Archive, hub *realtime.Hub, cancelScans context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop scheduling new scans and cancel any in-flight pass
	if jobScheduler != nil {
		jobScheduler.Stop()
	}
	cancelScans()

	if hub != nil {
		hub.Shutdown()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close the archive connection
	if archive != nil {
		if err := archive.Close(context.Background()); err != nil {
			log.Printf("Error closing archive: %v", err)
		} else {
			log.Println("Archive connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
