package controllers

import (
	"context"
	"net/http"
	"strconv"

	"ema_scanner_backend/services/scanner"
	"ema_scanner_backend/services/store"

	"github.com/gin-gonic/gin"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	maxHistoryRows = 500
)

// ScanController serves the scan snapshot, scan control and history routes.
type ScanController struct {
	store   *store.ResultStore
	scanner *scanner.UniverseScanner
	archive store.Archive // nil when no archive is configured

	// appCtx outlives individual requests; triggered scans run under it so
	// a closed request connection never cancels a pass mid-flight.
	appCtx context.Context
}

// NewScanController creates a new scan controller
func NewScanController(appCtx context.Context, resultStore *store.ResultStore, sc *scanner.UniverseScanner, archive store.Archive) *ScanController {
	return &ScanController{
		store:   resultStore,
		scanner: sc,
		archive: archive,
		appCtx:  appCtx,
	}
}

// GetScan returns one page of the latest snapshot.
// GET /scan?page=1&per_page=20
func (sc *ScanController) GetScan(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return
	}

	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "per_page must be a positive integer"})
		return
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	c.JSON(http.StatusOK, sc.store.Page(page, perPage))
}

// GetStatus reports the orchestrator state.
// GET /api/v1/scan/status
func (sc *ScanController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, sc.scanner.Status())
}

// TriggerScan kicks off an asynchronous scan pass.
// POST /api/v1/scan/trigger
func (sc *ScanController) TriggerScan(c *gin.Context) {
	if err := sc.scanner.TriggerAsync(sc.appCtx); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scan started"})
}

// GetHistory returns archived rows, newest first.
// GET /api/v1/history?symbol=SPY&limit=50
func (sc *ScanController) GetHistory(c *gin.Context) {
	if sc.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no result archive configured"})
		return
	}

	symbol := c.Query("symbol")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxHistoryRows {
		limit = maxHistoryRows
	}

	results, err := sc.archive.RecentResults(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load archived results"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
		"archive": sc.archive.Name(),
	})
}

// Dashboard serves the auto-refreshing scan table.
// GET /
func (sc *ScanController) Dashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", gin.H{
		"title": "EMA Crossover Scanner",
	})
}
