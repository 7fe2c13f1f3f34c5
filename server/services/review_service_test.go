package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venueatlas/database"
)

func enqueueEntry(t *testing.T, store *database.VenueStore, raw, norm string, candidates []database.ReviewCandidate) *database.ReviewEntry {
	t.Helper()
	entry := &database.ReviewEntry{
		RawText:        raw,
		NormalizedText: norm,
		Source:         "schedule",
		Candidates:     candidates,
	}
	queued, err := store.EnqueueReview(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, queued)
	return entry
}

func TestApproveBindsAlias(t *testing.T) {
	store := newTestStore(t)
	venue := seedVenue(t, store, "East West Ice Palace", "23770 S Western Ave", "Harbor City")
	entry := enqueueEntry(t, store, "EW Ice Palace", "ew ice palace", nil)

	rv := NewReviewService(store, 90, nil)
	updated, err := rv.Approve(context.Background(), entry.ID, venue.ID)
	require.NoError(t, err)

	assert.Equal(t, database.ReviewApproved, updated.Status)
	require.NotNil(t, updated.ChosenVenueID)
	assert.Equal(t, venue.ID, *updated.ChosenVenueID)
	assert.False(t, updated.AutoApproved)

	aliases, err := store.CountAliases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, aliases)
}

// A retried approval for the same venue is a no-op: one alias row, no error.
func TestApproveIdempotent(t *testing.T) {
	store := newTestStore(t)
	venue := seedVenue(t, store, "East West Ice Palace", "23770 S Western Ave", "Harbor City")
	entry := enqueueEntry(t, store, "EW Ice Palace", "ew ice palace", nil)

	rv := NewReviewService(store, 90, nil)
	_, err := rv.Approve(context.Background(), entry.ID, venue.ID)
	require.NoError(t, err)
	_, err = rv.Approve(context.Background(), entry.ID, venue.ID)
	require.NoError(t, err)

	aliases, err := store.CountAliases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, aliases)
}

func TestApproveConflictingVenueRejected(t *testing.T) {
	store := newTestStore(t)
	first := seedVenue(t, store, "East West Ice Palace", "23770 S Western Ave", "Harbor City")
	second := seedVenue(t, store, "Anaheim Ice", "300 W Lincoln Ave", "Anaheim")
	entry := enqueueEntry(t, store, "EW Ice Palace", "ew ice palace", nil)

	rv := NewReviewService(store, 90, nil)
	_, err := rv.Approve(context.Background(), entry.ID, first.ID)
	require.NoError(t, err)

	_, err = rv.Approve(context.Background(), entry.ID, second.ID)
	assert.True(t, errors.Is(err, database.ErrTerminalState))
}

func TestApproveUnknownVenue(t *testing.T) {
	store := newTestStore(t)
	entry := enqueueEntry(t, store, "EW Ice Palace", "ew ice palace", nil)

	rv := NewReviewService(store, 90, nil)
	_, err := rv.Approve(context.Background(), entry.ID, "no-such-venue")
	assert.True(t, errors.Is(err, database.ErrNotFound))

	// The entry stays pending; the bad request must not consume it.
	current, err := store.GetReviewEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ReviewPending, current.Status)
}

func TestRejectRecordsPairing(t *testing.T) {
	store := newTestStore(t)
	venue := seedVenue(t, store, "Anaheim Ice", "300 W Lincoln Ave", "Anaheim")
	entry := enqueueEntry(t, store, "Anaheim Rink", "anaheim rink", []database.ReviewCandidate{
		{VenueID: venue.ID, Name: venue.CanonicalName, Confidence: 60, Origin: "store"},
	})

	rv := NewReviewService(store, 90, nil)
	updated, err := rv.Reject(context.Background(), entry.ID, venue.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ReviewRejected, updated.Status)

	rejected, err := store.ListRejectedVenueIDs(context.Background(), "anaheim rink")
	require.NoError(t, err)
	assert.True(t, rejected[venue.ID])

	aliases, err := store.CountAliases(context.Background())
	require.NoError(t, err)
	assert.Zero(t, aliases, "rejection must not create an alias")
}

func TestCreateVenueFromEntry(t *testing.T) {
	store := newTestStore(t)
	entry := enqueueEntry(t, store, "Poway ICE", "poway ice", nil)

	rv := NewReviewService(store, 90, nil)
	updated, err := rv.CreateVenue(context.Background(), entry.ID, &database.Venue{
		CanonicalName: "The Rinks - Poway ICE",
		Address:       "12455 Kerran St",
		City:          "Poway",
		State:         "CA",
	})
	require.NoError(t, err)
	assert.Equal(t, database.ReviewCreatedNew, updated.Status)

	venue, err := store.FindVenueByCanonicalName(context.Background(), "The Rinks - Poway ICE")
	require.NoError(t, err)
	require.NotNil(t, updated.ChosenVenueID)
	assert.Equal(t, venue.ID, *updated.ChosenVenueID)

	aliases, err := store.CountAliases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, aliases)
}

func TestAutoApproveSweep(t *testing.T) {
	store := newTestStore(t)
	venue := seedVenue(t, store, "Great Park Ice", "888 Ridge Valley", "Irvine")

	strong := enqueueEntry(t, store, "Great Park Ice Facility", "great park ice facility", []database.ReviewCandidate{
		{VenueID: venue.ID, Name: venue.CanonicalName, Confidence: 95, Origin: "store"},
	})
	weak := enqueueEntry(t, store, "Park Ice", "park ice", []database.ReviewCandidate{
		{VenueID: venue.ID, Name: venue.CanonicalName, Confidence: 55, Origin: "store"},
	})
	external := enqueueEntry(t, store, "Glacier Falls", "glacier falls", []database.ReviewCandidate{
		{PlaceID: "p-ext", Name: "Glacier Falls", Confidence: 96, Origin: "geocode"},
	})

	rv := NewReviewService(store, 90, nil)
	approved, err := rv.AutoApprove(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, approved)

	got, err := store.GetReviewEntry(context.Background(), strong.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ReviewApproved, got.Status)
	assert.True(t, got.AutoApproved)

	for _, id := range []string{weak.ID, external.ID} {
		got, err := store.GetReviewEntry(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, database.ReviewPending, got.Status, "geocode-only or weak entries stay pending")
	}

	// Sweeping again finds nothing new.
	approved, err = rv.AutoApprove(context.Background())
	require.NoError(t, err)
	assert.Zero(t, approved)
}
