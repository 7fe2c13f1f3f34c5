package database

import (
	"context"
	"fmt"
)

// Schema notes: SQLite keeps the engine embedded the way the rest of the
// stack expects, and the trigram scoring runs in-process over normalized
// text, so the only indexes needed here are the uniqueness constraints the
// write paths upsert against.
const schema = `
CREATE TABLE IF NOT EXISTS venues (
    id              TEXT PRIMARY KEY,
    canonical_name  TEXT NOT NULL UNIQUE,
    normalized_name TEXT NOT NULL,
    address         TEXT NOT NULL DEFAULT '',
    city            TEXT NOT NULL DEFAULT '',
    state           TEXT NOT NULL DEFAULT '',
    postal_code     TEXT NOT NULL DEFAULT '',
    latitude        REAL,
    longitude       REAL,
    place_id        TEXT,
    metadata        TEXT,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_venues_normalized_name ON venues(normalized_name);
CREATE INDEX IF NOT EXISTS idx_venues_place_id ON venues(place_id);

CREATE TABLE IF NOT EXISTS venue_aliases (
    id                TEXT PRIMARY KEY,
    venue_id          TEXT NOT NULL REFERENCES venues(id),
    alias_text        TEXT NOT NULL,
    normalized_alias  TEXT NOT NULL,
    source            TEXT NOT NULL DEFAULT 'import',
    confidence_weight REAL NOT NULL DEFAULT 1.0,
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(venue_id, normalized_alias)
);

CREATE INDEX IF NOT EXISTS idx_aliases_normalized ON venue_aliases(normalized_alias);

CREATE TABLE IF NOT EXISTS alias_rejections (
    id               TEXT PRIMARY KEY,
    normalized_alias TEXT NOT NULL,
    venue_id         TEXT NOT NULL,
    rejected_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(normalized_alias, venue_id)
);

CREATE TABLE IF NOT EXISTS review_queue (
    id              TEXT PRIMARY KEY,
    raw_text        TEXT NOT NULL,
    normalized_text TEXT NOT NULL,
    candidates      TEXT NOT NULL DEFAULT '[]',
    top_confidence  REAL NOT NULL DEFAULT 0,
    source          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending','approved','rejected','created_new')),
    chosen_venue_id TEXT,
    auto_approved   INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    resolved_at     TIMESTAMP
);

-- One active entry per normalized alias; terminated entries stay as audit
-- records without blocking a future re-queue.
CREATE UNIQUE INDEX IF NOT EXISTS idx_review_pending_unique
    ON review_queue(normalized_text) WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS idx_review_status ON review_queue(status);
`

// Migrate creates the schema. Safe to run on every startup.
func (s *VenueStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply venue schema: %w", wrapUnavailable(err))
	}
	return nil
}
