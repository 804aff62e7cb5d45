package eventloop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// backfillStore is the slice of C1 the startup backfill needs.
type backfillStore interface {
	ScanForEntityBackfill(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]models.Breadcrumb, error)
	UpdateEntities(ctx context.Context, id uuid.UUID, keywords []string) error
	GetBackfillCursor(ctx context.Context) (time.Time, uuid.UUID, error)
	SetBackfillCursor(ctx context.Context, createdAt time.Time, id uuid.UUID) error
}

// backfillBatchSize bounds how many rows a single ScanForEntityBackfill call
// fetches; Backfill loops calling it until the 10000-record cap (§4.8) is
// reached or a batch comes back short.
const backfillBatchSize = 500

// Backfill implements §4.8's startup entity backfill, extended (per
// SPEC_FULL.md) into a resumable scan: it resumes from the watermark
// GetBackfillCursor returns rather than always rescanning from the
// beginning, and persists the new watermark after each batch so a crash
// mid-backfill loses at most one batch's worth of progress. Stops after
// maxRecords total or when a batch returns fewer rows than requested.
func Backfill(ctx context.Context, store backfillStore, extract extractKeywords, maxRecords int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	after, afterID, err := store.GetBackfillCursor(ctx)
	if err != nil {
		return fmt.Errorf("backfill: load cursor: %w", err)
	}

	processed := 0
	for processed < maxRecords {
		batchLimit := backfillBatchSize
		if remaining := maxRecords - processed; remaining < batchLimit {
			batchLimit = remaining
		}

		batch, err := store.ScanForEntityBackfill(ctx, after, afterID, batchLimit)
		if err != nil {
			return fmt.Errorf("backfill: scan: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, bc := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			keywords := extract(bc.Title + "\n" + string(bc.Context))
			if len(keywords) > 0 {
				if err := store.UpdateEntities(ctx, bc.ID, keywords); err != nil {
					logger.Error("backfill: update entities", "id", bc.ID, "error", err)
				}
			}
			after, afterID = bc.CreatedAt, bc.ID
		}
		processed += len(batch)

		if err := store.SetBackfillCursor(ctx, after, afterID); err != nil {
			return fmt.Errorf("backfill: save cursor: %w", err)
		}

		if len(batch) < batchLimit {
			break
		}
	}

	logger.Info("entity backfill complete", "processed", processed)
	return nil
}
