package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"venueatlas/server/services"
)

// ResolveHandler serves venue-name resolution.
type ResolveHandler struct {
	resolver *services.ResolverService
}

// NewResolveHandler builds the handler.
func NewResolveHandler(resolver *services.ResolverService) *ResolveHandler {
	return &ResolveHandler{resolver: resolver}
}

// ResolveRequest is the lookup body.
type ResolveRequest struct {
	Name string `json:"name" binding:"required"`
}

// HandleResolve resolves one raw venue name.
func (h *ResolveHandler) HandleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, "name is required")
		return
	}

	resolution, err := h.resolver.Resolve(c.Request.Context(), req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, resolution)
}
