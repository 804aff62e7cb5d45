package breadcrumbstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// ScanForEntityBackfill returns up to limit breadcrumbs that carry an
// embedding but no entity_keywords yet, ordered by (created_at, id) so a
// caller can keep a resumable watermark across runs (§4.8's "scan up to
// 10000 records" extended, per SPEC_FULL.md, into a resumable cursor rather
// than a one-shot scan). after/afterID exclude everything at-or-before the
// watermark via keyset pagination — cheaper than OFFSET for a cursor that
// grows monotonically across repeated startups.
func (g *Gateway) ScanForEntityBackfill(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]models.Breadcrumb, error) {
	const q = `
		SELECT ` + breadcrumbColumns + `
		FROM breadcrumbs
		WHERE owner_id = $1
			AND embedding IS NOT NULL
			AND (entity_keywords IS NULL OR array_length(entity_keywords, 1) IS NULL)
			AND (created_at, id) > ($2, $3)
		ORDER BY created_at, id
		LIMIT $4`

	return g.queryBreadcrumbs(ctx, q, g.ownerID, after, afterID, limit)
}

// GetBackfillCursor returns the watermark persisted by the last backfill run,
// or the zero watermark (epoch, nil uuid) if none exists yet. The cursor is a
// single row shared by all owners; it is not scoped to this gateway's owner.
func (g *Gateway) GetBackfillCursor(ctx context.Context) (time.Time, uuid.UUID, error) {
	const q = `SELECT last_created_at, last_id FROM entity_backfill_cursor WHERE id = 1`

	var lastID *uuid.UUID
	var lastCreatedAt time.Time
	err := g.pool.QueryRow(ctx, q).Scan(&lastCreatedAt, &lastID)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Unix(0, 0).UTC(), uuid.Nil, nil
	}
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("get_backfill_cursor: %w", err)
	}
	if lastID == nil {
		return lastCreatedAt, uuid.Nil, nil
	}
	return lastCreatedAt, *lastID, nil
}

// SetBackfillCursor persists the watermark after a backfill batch, upserting
// the singleton row.
func (g *Gateway) SetBackfillCursor(ctx context.Context, createdAt time.Time, id uuid.UUID) error {
	const q = `
		INSERT INTO entity_backfill_cursor (id, last_created_at, last_id, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			last_created_at = EXCLUDED.last_created_at,
			last_id = EXCLUDED.last_id,
			updated_at = now()`

	if _, err := g.pool.Exec(ctx, q, createdAt, id); err != nil {
		return fmt.Errorf("set_backfill_cursor: %w", err)
	}
	return nil
}
