package breadcrumbstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// UpdateEntities persists C2's extracted keywords onto an existing
// breadcrumb, bumping updated_at but leaving version untouched — entity
// extraction is a derived annotation, not a content change (§4.2 note on
// entity_keywords being computed, not authored).
func (g *Gateway) UpdateEntities(ctx context.Context, id uuid.UUID, keywords []string) error {
	const q = `
		UPDATE breadcrumbs
		SET entity_keywords = $1, updated_at = now()
		WHERE id = $2 AND owner_id = $3`

	tag, err := g.pool.Exec(ctx, q, keywords, id, g.ownerID)
	if err != nil {
		return fmt.Errorf("update_entities: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateContextRecord inserts a new breadcrumb with version 1. rec.ID is
// used when set, otherwise a fresh uuid is generated here; timestamps are
// assigned server-side. Nil tags, context and entity_keywords are stored as
// empty values. The stored row is returned.
func (g *Gateway) CreateContextRecord(ctx context.Context, rec models.Breadcrumb) (models.Breadcrumb, error) {
	if rec.SchemaName == "" {
		return models.Breadcrumb{}, NewValidationError("schema_name", "must not be empty")
	}

	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	payload := rec.Context
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	keywords := rec.EntityKeywords
	if keywords == nil {
		keywords = []string{}
	}

	q := fmt.Sprintf(`
		INSERT INTO breadcrumbs (
			id, owner_id, schema_name, title, tags, context, embedding,
			entity_keywords, trigger_event_id, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, 1, now(), now()
		)
		RETURNING %s`, breadcrumbColumns)

	var embedding any
	if rec.Embedding != nil {
		v := pgvector.NewVector(rec.Embedding)
		embedding = &v
	}

	rows, err := g.pool.Query(ctx, q,
		id, g.ownerID, rec.SchemaName, rec.Title, tags, payload,
		embedding, keywords, rec.TriggerEventID,
	)
	if err != nil {
		return models.Breadcrumb{}, fmt.Errorf("create_context_record: %w", err)
	}
	return pgx.CollectExactlyOneRow(rows, scanBreadcrumb)
}

// UpdateContextRecord applies an optimistic-concurrency update (§5/§7):
// the write only lands if expectedVersion still matches the row's current
// version, otherwise ErrVersionMismatch is returned and the caller must
// re-read and retry. Returns ErrNotFound if the id doesn't exist at all.
func (g *Gateway) UpdateContextRecord(ctx context.Context, id uuid.UUID, expectedVersion int, title string, tags []string, payload json.RawMessage) (models.Breadcrumb, error) {
	q := fmt.Sprintf(`
		UPDATE breadcrumbs
		SET title = $1, tags = $2, context = $3, version = version + 1, updated_at = now()
		WHERE id = $4 AND owner_id = $5 AND version = $6
		RETURNING %s`, breadcrumbColumns)

	rows, err := g.pool.Query(ctx, q, title, tags, payload, id, g.ownerID, expectedVersion)
	if err != nil {
		return models.Breadcrumb{}, fmt.Errorf("update_context_record: %w", err)
	}
	updated, err := pgx.CollectExactlyOneRow(rows, scanBreadcrumb)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Breadcrumb{}, fmt.Errorf("update_context_record: %w", err)
	}

	// No row matched (id, owner_id, version) together — disambiguate
	// missing-entirely from version-stale so callers can react correctly.
	if _, getErr := g.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
		return models.Breadcrumb{}, ErrNotFound
	}
	return models.Breadcrumb{}, ErrVersionMismatch
}
