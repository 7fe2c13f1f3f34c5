package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *VenueStore {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewWithDB(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestUpsertVenueIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v := &Venue{
		CanonicalName:  "Toyota Sports Performance Center",
		NormalizedName: "toyota sports performance center",
		Address:        "555 N Nash St",
		City:           "El Segundo",
		State:          "CA",
	}
	created, err := store.UpsertVenue(ctx, v)
	require.NoError(t, err)
	assert.True(t, created)
	firstID := v.ID

	again := &Venue{
		CanonicalName:  "Toyota Sports Performance Center",
		NormalizedName: "toyota sports performance center",
		Address:        "555 North Nash Street",
	}
	created, err = store.UpsertVenue(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstID, again.ID)

	count, err := store.CountVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	fetched, err := store.GetVenue(ctx, firstID)
	require.NoError(t, err)
	// The later import record is authoritative for address components.
	assert.Equal(t, "555 North Nash Street", fetched.Address)
	assert.Equal(t, "", fetched.City)
}

func TestInsertAliasUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v := &Venue{CanonicalName: "Yorba Linda ICE", NormalizedName: "yorba linda ice"}
	_, err := store.UpsertVenue(ctx, v)
	require.NoError(t, err)

	alias := &VenueAlias{
		VenueID:         v.ID,
		AliasText:       "YLICE",
		NormalizedAlias: "yorba linda ice",
		Source:          "import",
	}
	inserted, err := store.InsertAlias(ctx, alias)
	require.NoError(t, err)
	assert.True(t, inserted)

	duplicate := &VenueAlias{
		VenueID:         v.ID,
		AliasText:       "YLICE",
		NormalizedAlias: "yorba linda ice",
		Source:          "import",
	}
	inserted, err = store.InsertAlias(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := store.CountAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListNameEntriesIncludesWeights(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v := &Venue{CanonicalName: "Great Park Ice", NormalizedName: "great park ice"}
	_, err := store.UpsertVenue(ctx, v)
	require.NoError(t, err)

	_, err = store.InsertAlias(ctx, &VenueAlias{
		VenueID:          v.ID,
		AliasText:        "GPI",
		NormalizedAlias:  "gpi",
		Source:           "schedule-feed",
		ConfidenceWeight: 0.8,
	})
	require.NoError(t, err)

	entries, err := store.ListNameEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byText := map[string]NameEntry{}
	for _, e := range entries {
		byText[e.Text] = e
	}
	assert.Equal(t, 1.0, byText["great park ice"].Weight)
	assert.Equal(t, 0.8, byText["gpi"].Weight)
	assert.Equal(t, v.ID, byText["gpi"].VenueID)
}

func TestEnqueueReviewSinglePendingEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &ReviewEntry{
		RawText:        "Glacial Gardens",
		NormalizedText: "glacial gardens",
		Source:         "schedule-feed",
		Candidates: []ReviewCandidate{
			{VenueID: "v1", Name: "Glacial Gardens Skating Arena", Confidence: 62, Origin: "store"},
		},
	}
	queued, err := store.EnqueueReview(ctx, entry)
	require.NoError(t, err)
	assert.True(t, queued)

	// A racing discovery run enqueues the same normalized alias.
	duplicate := &ReviewEntry{
		RawText:        "GLACIAL GARDENS",
		NormalizedText: "glacial gardens",
		Source:         "schedule-feed",
	}
	queued, err = store.EnqueueReview(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, queued)

	pending, err := store.ListReviewEntries(ctx, ReviewFilter{Status: ReviewPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Glacial Gardens", pending[0].RawText)
	assert.InDelta(t, 62, pending[0].TopConfidence, 1e-9)
}

func TestTransitionReviewTerminality(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &ReviewEntry{RawText: "Ice Realm", NormalizedText: "ice realm", Source: "test"}
	_, err := store.EnqueueReview(ctx, entry)
	require.NoError(t, err)

	venueID := "venue-b"
	require.NoError(t, store.TransitionReview(ctx, entry.ID, ReviewApproved, &venueID, false))

	// Retried identical approval (network retry) is a no-op success.
	require.NoError(t, store.TransitionReview(ctx, entry.ID, ReviewApproved, &venueID, false))

	// Any other transition out of the terminal state is refused.
	other := "venue-c"
	err = store.TransitionReview(ctx, entry.ID, ReviewApproved, &other, false)
	assert.ErrorIs(t, err, ErrTerminalState)
	err = store.TransitionReview(ctx, entry.ID, ReviewRejected, &venueID, false)
	assert.ErrorIs(t, err, ErrTerminalState)

	got, err := store.GetReviewEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ReviewApproved, got.Status)
	require.NotNil(t, got.ChosenVenueID)
	assert.Equal(t, venueID, *got.ChosenVenueID)
	assert.NotNil(t, got.ResolvedAt)

	// The alias may be queued again later; terminal entries stay as audit
	// records without blocking.
	requeue := &ReviewEntry{RawText: "Ice Realm", NormalizedText: "ice realm", Source: "test"}
	queued, err := store.EnqueueReview(ctx, requeue)
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestTransitionReviewUnknownEntry(t *testing.T) {
	store := newTestStore(t)
	err := store.TransitionReview(context.Background(), "missing", ReviewApproved, nil, false)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordRejection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRejection(ctx, "ice center", "venue-1"))
	require.NoError(t, store.RecordRejection(ctx, "ice center", "venue-1")) // duplicate no-op
	require.NoError(t, store.RecordRejection(ctx, "ice center", "venue-2"))

	rejected, err := store.ListRejectedVenueIDs(ctx, "ice center")
	require.NoError(t, err)
	assert.Len(t, rejected, 2)
	assert.True(t, rejected["venue-1"])
	assert.True(t, rejected["venue-2"])
}

func TestListReviewEntriesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sources := []string{"feed-a", "feed-b", "feed-a"}
	for i, src := range sources {
		entry := &ReviewEntry{
			RawText:        fmt.Sprintf("Venue %d", i),
			NormalizedText: fmt.Sprintf("venue %d", i),
			Source:         src,
			Candidates: []ReviewCandidate{
				{VenueID: "v", Name: "x", Confidence: float64(40 + 20*i), Origin: "store"},
			},
		}
		queued, err := store.EnqueueReview(ctx, entry)
		require.NoError(t, err)
		require.True(t, queued)
	}

	bySource, err := store.ListReviewEntries(ctx, ReviewFilter{Source: "feed-a"})
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	confident, err := store.ListReviewEntries(ctx, ReviewFilter{MinConfidence: 60})
	require.NoError(t, err)
	assert.Len(t, confident, 2)

	fresh, err := store.ListReviewEntries(ctx, ReviewFilter{MaxAge: time.Hour})
	require.NoError(t, err)
	assert.Len(t, fresh, 3)

	limited, err := store.ListReviewEntries(ctx, ReviewFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestBulkVenueLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	faker := gofakeit.New(42)

	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("%s %s Arena %d", faker.City(), faker.LastName(), i)
		v := &Venue{
			CanonicalName:  name,
			NormalizedName: name, // normalization exercised elsewhere
			Address:        faker.Street(),
			City:           faker.City(),
			State:          faker.StateAbr(),
		}
		_, err := store.UpsertVenue(ctx, v)
		require.NoError(t, err)
	}

	count, err := store.CountVenues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, count)

	entries, err := store.ListNameEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 200)
}
