package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"venueatlas/database"
	"venueatlas/importer"
	"venueatlas/normalization"
)

// ImportSummary reports the outcome of a bulk venue import.
type ImportSummary struct {
	VenuesCreated  int      `json:"venues_created"`
	VenuesUpdated  int      `json:"venues_updated"`
	AliasesCreated int      `json:"aliases_created"`
	AliasesSkipped int      `json:"aliases_skipped"`
	Errors         []string `json:"errors,omitempty"`
}

// ImportService loads curated venue lists into the store. Running the same
// file twice is safe: the second pass updates rows in place and inserts no
// duplicate aliases.
type ImportService struct {
	store *database.VenueStore
	log   *logrus.Entry
}

// NewImportService builds an import service.
func NewImportService(store *database.VenueStore, log *logrus.Logger) *ImportService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ImportService{store: store, log: log.WithField("component", "import")}
}

// Import upserts each record and its aliases. A record missing required
// fields is reported in the summary and skipped; it does not abort the rest
// of the batch. Store outages do abort, since every later record would fail
// the same way.
func (is *ImportService) Import(ctx context.Context, records []importer.VenueRecord, source string) (*ImportSummary, error) {
	summary := &ImportSummary{}

	for i, rec := range records {
		if rec.CanonicalName == "" || rec.Address == "" {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("record %d: canonical name and address are required", i+1))
			continue
		}

		venue := &database.Venue{
			CanonicalName:  rec.CanonicalName,
			NormalizedName: normalization.Normalize(rec.CanonicalName).Normalized,
			Address:        rec.Address,
			City:           rec.City,
			State:          rec.State,
			PostalCode:     rec.PostalCode,
			Latitude:       rec.Latitude,
			Longitude:      rec.Longitude,
			PlaceID:        rec.PlaceID,
		}
		created, err := is.store.UpsertVenue(ctx, venue)
		if err != nil {
			return summary, err
		}
		if created {
			summary.VenuesCreated++
		} else {
			summary.VenuesUpdated++
		}

		for _, alias := range rec.Aliases {
			norm := normalization.Normalize(alias).Normalized
			if norm == "" {
				summary.AliasesSkipped++
				continue
			}
			inserted, err := is.store.InsertAlias(ctx, &database.VenueAlias{
				VenueID:         venue.ID,
				AliasText:       alias,
				NormalizedAlias: norm,
				Source:          source,
			})
			if err != nil {
				return summary, err
			}
			if inserted {
				summary.AliasesCreated++
			} else {
				summary.AliasesSkipped++
			}
		}
	}

	is.log.WithFields(logrus.Fields{
		"created": summary.VenuesCreated,
		"updated": summary.VenuesUpdated,
		"aliases": summary.AliasesCreated,
		"errors":  len(summary.Errors),
	}).Info("venue import finished")
	return summary, nil
}
