package services

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"venueatlas/database"
	"venueatlas/normalization"
)

func newTestStore(t *testing.T) *database.VenueStore {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := database.NewWithDB(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedVenue(t *testing.T, store *database.VenueStore, canonicalName, address, city string) *database.Venue {
	t.Helper()
	v := &database.Venue{
		CanonicalName:  canonicalName,
		NormalizedName: normalization.Normalize(canonicalName).Normalized,
		Address:        address,
		City:           city,
		State:          "CA",
	}
	_, err := store.UpsertVenue(context.Background(), v)
	require.NoError(t, err)
	return v
}

func seedAlias(t *testing.T, store *database.VenueStore, venueID, alias string, weight float64) {
	t.Helper()
	_, err := store.InsertAlias(context.Background(), &database.VenueAlias{
		VenueID:          venueID,
		AliasText:        alias,
		NormalizedAlias:  normalization.Normalize(alias).Normalized,
		Source:           "seed",
		ConfidenceWeight: weight,
	})
	require.NoError(t, err)
}

func defaultResolverConfig() ResolverConfig {
	return ResolverConfig{AutoThreshold: 0.70, ReviewThreshold: 0.50, TieEpsilon: 0.05}
}
