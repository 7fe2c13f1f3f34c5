package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"venueatlas/database"
)

// GeocodeCacheStats is implemented by the geocoding client.
type GeocodeCacheStats interface {
	CacheStats() (hits, misses int64, size int)
}

// MonitoringHandler serves health and operational stats.
type MonitoringHandler struct {
	store     *database.VenueStore
	geocoder  GeocodeCacheStats
	startTime time.Time
}

// NewMonitoringHandler builds the handler. geocoder may be nil when the
// server runs without an API key.
func NewMonitoringHandler(store *database.VenueStore, geocoder GeocodeCacheStats) *MonitoringHandler {
	return &MonitoringHandler{store: store, geocoder: geocoder, startTime: time.Now()}
}

// HandleHealth is the liveness probe. It pings the store so a wedged SQLite
// file shows up here before it shows up in user traffic.
func (h *MonitoringHandler) HandleHealth(c *gin.Context) {
	if _, err := h.store.CountVenues(c.Request.Context()); err != nil {
		SendError(c, http.StatusServiceUnavailable, "venue store unavailable")
		return
	}
	SendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// HandleStats reports catalog and queue sizes plus geocode cache hit rates.
func (h *MonitoringHandler) HandleStats(c *gin.Context) {
	ctx := c.Request.Context()

	venues, err := h.store.CountVenues(ctx)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	aliases, err := h.store.CountAliases(ctx)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	pending, err := h.store.ListReviewEntries(ctx, database.ReviewFilter{Status: database.ReviewPending})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	stats := gin.H{
		"venues":         venues,
		"aliases":        aliases,
		"pending_review": len(pending),
		"uptime":         time.Since(h.startTime).String(),
	}
	if h.geocoder != nil {
		hits, misses, size := h.geocoder.CacheStats()
		stats["geocode_cache"] = gin.H{"hits": hits, "misses": misses, "size": size}
	}
	SendJSON(c, http.StatusOK, stats)
}
