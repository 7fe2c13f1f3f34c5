package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"venueatlas/server/services"
)

// DiscoveryHandler feeds scraped venue names into the discovery pipeline.
type DiscoveryHandler struct {
	discovery *services.DiscoveryService
}

// NewDiscoveryHandler builds the handler.
func NewDiscoveryHandler(discovery *services.DiscoveryService) *DiscoveryHandler {
	return &DiscoveryHandler{discovery: discovery}
}

// DiscoverRequest carries a batch of raw names from one scrape.
type DiscoverRequest struct {
	Names  []string `json:"names" binding:"required"`
	Source string   `json:"source"`
}

// HandleDiscover runs one discovery batch synchronously and returns the
// summary. Large batches belong in the CLI, not this endpoint.
func (h *DiscoveryHandler) HandleDiscover(c *gin.Context) {
	var req DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, "names array is required")
		return
	}
	if len(req.Names) == 0 {
		SendError(c, http.StatusBadRequest, "names array is empty")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	summary, err := h.discovery.Discover(c.Request.Context(), req.Names, req.Source)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, summary)
}
