package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"venueatlas/database"
	"venueatlas/normalization"
)

// ReviewService adjudicates queue entries. Every action is idempotent so a
// retried admin request cannot double-apply.
type ReviewService struct {
	store *database.VenueStore
	// AutoApproveCeiling is the minimum top-candidate confidence (0-100)
	// for the unattended approval sweep.
	ceiling float64
	log     *logrus.Entry
}

// NewReviewService builds a review service with the given auto-approve ceiling.
func NewReviewService(store *database.VenueStore, ceiling float64, log *logrus.Logger) *ReviewService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReviewService{
		store:   store,
		ceiling: ceiling,
		log:     log.WithField("component", "review"),
	}
}

// List returns queue entries matching the filter.
func (rv *ReviewService) List(ctx context.Context, f database.ReviewFilter) ([]*database.ReviewEntry, error) {
	return rv.store.ListReviewEntries(ctx, f)
}

// Approve binds the entry's alias to an existing venue. The transition lands
// first; the alias insert after it is idempotent, so a retry that finds the
// entry already approved with the same venue still heals a missing alias row.
func (rv *ReviewService) Approve(ctx context.Context, entryID, venueID string) (*database.ReviewEntry, error) {
	entry, err := rv.store.GetReviewEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	venue, err := rv.store.GetVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}

	if err := rv.store.TransitionReview(ctx, entryID, database.ReviewApproved, &venueID, false); err != nil {
		return nil, err
	}
	if _, err := rv.store.InsertAlias(ctx, &database.VenueAlias{
		VenueID:         venue.ID,
		AliasText:       entry.RawText,
		NormalizedAlias: entry.NormalizedText,
		Source:          "review",
	}); err != nil {
		return nil, err
	}

	rv.log.WithFields(logrus.Fields{
		"entry": entryID,
		"venue": venue.CanonicalName,
	}).Info("review entry approved")
	return rv.store.GetReviewEntry(ctx, entryID)
}

// Reject marks the entry's alias as not matching the given venue. The pairing
// is remembered so discovery stops re-suggesting that venue for this alias.
func (rv *ReviewService) Reject(ctx context.Context, entryID, venueID string) (*database.ReviewEntry, error) {
	entry, err := rv.store.GetReviewEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if venueID != "" {
		if err := rv.store.RecordRejection(ctx, entry.NormalizedText, venueID); err != nil {
			return nil, err
		}
	}
	var chosen *string
	if venueID != "" {
		chosen = &venueID
	}
	if err := rv.store.TransitionReview(ctx, entryID, database.ReviewRejected, chosen, false); err != nil {
		return nil, err
	}
	return rv.store.GetReviewEntry(ctx, entryID)
}

// CreateVenue resolves the entry by creating a brand-new venue and attaching
// the alias to it.
func (rv *ReviewService) CreateVenue(ctx context.Context, entryID string, venue *database.Venue) (*database.ReviewEntry, error) {
	entry, err := rv.store.GetReviewEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if venue.CanonicalName == "" {
		return nil, fmt.Errorf("canonical name is required")
	}
	venue.NormalizedName = normalization.Normalize(venue.CanonicalName).Normalized

	if _, err := rv.store.UpsertVenue(ctx, venue); err != nil {
		return nil, err
	}
	if err := rv.store.TransitionReview(ctx, entryID, database.ReviewCreatedNew, &venue.ID, false); err != nil {
		return nil, err
	}
	if _, err := rv.store.InsertAlias(ctx, &database.VenueAlias{
		VenueID:         venue.ID,
		AliasText:       entry.RawText,
		NormalizedAlias: entry.NormalizedText,
		Source:          "review",
	}); err != nil {
		return nil, err
	}
	return rv.store.GetReviewEntry(ctx, entryID)
}

// AutoApprove sweeps pending entries whose top candidate is a stored venue at
// or above the ceiling, approving each unattended. Returns the number
// approved.
func (rv *ReviewService) AutoApprove(ctx context.Context) (int, error) {
	entries, err := rv.store.ListReviewEntries(ctx, database.ReviewFilter{
		Status:        database.ReviewPending,
		MinConfidence: rv.ceiling,
	})
	if err != nil {
		return 0, err
	}

	approved := 0
	for _, entry := range entries {
		if len(entry.Candidates) == 0 {
			continue
		}
		top := entry.Candidates[0]
		if top.VenueID == "" || top.Confidence < rv.ceiling {
			continue
		}
		if err := rv.store.TransitionReview(ctx, entry.ID, database.ReviewApproved, &top.VenueID, true); err != nil {
			// Another reviewer may have won the race; skip, do not abort
			// the sweep.
			rv.log.WithError(err).WithField("entry", entry.ID).Warn("auto-approve transition skipped")
			continue
		}
		if _, err := rv.store.InsertAlias(ctx, &database.VenueAlias{
			VenueID:         top.VenueID,
			AliasText:       entry.RawText,
			NormalizedAlias: entry.NormalizedText,
			Source:          "auto_approve",
		}); err != nil {
			return approved, err
		}
		approved++
	}

	if approved > 0 {
		rv.log.WithField("approved", approved).Info("auto-approve sweep finished")
	}
	return approved, nil
}
