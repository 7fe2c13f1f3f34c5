package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"venueatlas/database"
	"venueatlas/server/services"
)

// ReviewHandler serves the review-queue admin surface.
type ReviewHandler struct {
	review *services.ReviewService
}

// NewReviewHandler builds the handler.
func NewReviewHandler(review *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{review: review}
}

// HandleList returns queue entries. Filters: status, source, min_confidence,
// max_age_hours, limit.
func (h *ReviewHandler) HandleList(c *gin.Context) {
	filter := database.ReviewFilter{
		Status: database.ReviewStatus(c.Query("status")),
		Source: c.Query("source"),
	}
	if v := c.Query("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			SendError(c, http.StatusBadRequest, "min_confidence must be a number")
			return
		}
		filter.MinConfidence = f
	}
	if v := c.Query("max_age_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			SendError(c, http.StatusBadRequest, "max_age_hours must be a non-negative integer")
			return
		}
		filter.MaxAge = time.Duration(hours) * time.Hour
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			SendError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.review.List(c.Request.Context(), filter)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// ReviewActionRequest names the venue an approval or rejection refers to.
type ReviewActionRequest struct {
	VenueID string `json:"venue_id"`
}

// HandleApprove binds the entry's alias to an existing venue.
func (h *ReviewHandler) HandleApprove(c *gin.Context) {
	var req ReviewActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.VenueID == "" {
		SendError(c, http.StatusBadRequest, "venue_id is required")
		return
	}

	entry, err := h.review.Approve(c.Request.Context(), c.Param("id"), req.VenueID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, entry)
}

// HandleReject marks the suggested pairing invalid. venue_id is optional;
// without it the entry is closed with no pairing recorded.
func (h *ReviewHandler) HandleReject(c *gin.Context) {
	var req ReviewActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.review.Reject(c.Request.Context(), c.Param("id"), req.VenueID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, entry)
}

// CreateVenueRequest carries the new venue to resolve an entry with.
type CreateVenueRequest struct {
	CanonicalName string   `json:"canonical_name" binding:"required"`
	Address       string   `json:"address" binding:"required"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	PostalCode    string   `json:"postal_code"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	PlaceID       *string  `json:"place_id"`
}

// HandleCreateVenue resolves an entry by creating a new venue.
func (h *ReviewHandler) HandleCreateVenue(c *gin.Context) {
	var req CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, "canonical_name and address are required")
		return
	}

	entry, err := h.review.CreateVenue(c.Request.Context(), c.Param("id"), &database.Venue{
		CanonicalName: req.CanonicalName,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		PostalCode:    req.PostalCode,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		PlaceID:       req.PlaceID,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, entry)
}

// HandleAutoApprove runs the unattended approval sweep.
func (h *ReviewHandler) HandleAutoApprove(c *gin.Context) {
	approved, err := h.review.AutoApprove(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, gin.H{"approved": approved})
}
