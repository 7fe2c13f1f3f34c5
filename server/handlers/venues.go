package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"venueatlas/database"
	"venueatlas/importer"
	"venueatlas/server/services"
)

// VenueHandler serves venue lookup and bulk import.
type VenueHandler struct {
	store   *database.VenueStore
	imports *services.ImportService
}

// NewVenueHandler builds the handler.
func NewVenueHandler(store *database.VenueStore, imports *services.ImportService) *VenueHandler {
	return &VenueHandler{store: store, imports: imports}
}

// HandleGetVenue fetches one venue by id.
func (h *VenueHandler) HandleGetVenue(c *gin.Context) {
	venue, err := h.store.GetVenue(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, venue)
}

// HandleImport accepts either a JSON body of venue records or a multipart
// upload of a .json/.xlsx file.
func (h *VenueHandler) HandleImport(c *gin.Context) {
	records, err := h.parseRecords(c)
	if err != nil {
		SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(records) == 0 {
		SendError(c, http.StatusBadRequest, "no venue records found")
		return
	}

	source := c.DefaultQuery("source", "import")
	summary, err := h.imports.Import(c.Request.Context(), records, source)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SendJSON(c, http.StatusOK, summary)
}

func (h *VenueHandler) parseRecords(c *gin.Context) ([]importer.VenueRecord, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		f, err := fileHeader.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if filepath.Ext(fileHeader.Filename) == ".xlsx" {
			return importer.ParseXLSX(f)
		}
		return importer.ParseJSON(f)
	}
	return importer.ParseJSON(c.Request.Body)
}
