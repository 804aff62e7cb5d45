package breadcrumbstore

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

const breadcrumbColumns = `
	id, owner_id, schema_name, title, tags, context, embedding,
	entity_keywords, trigger_event_id, version, created_at, updated_at`

// scanBreadcrumb is the pgx.CollectRows closure shared by every query in
// this package, following glyphoxa/semantic_index.go's scan-closure idiom.
func scanBreadcrumb(row pgx.CollectableRow) (models.Breadcrumb, error) {
	var (
		b              models.Breadcrumb
		embedding      *pgvector.Vector
		triggerEventID *uuid.UUID
		entityKeywords []string
	)

	if err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.SchemaName,
		&b.Title,
		&b.Tags,
		&b.Context,
		&embedding,
		&entityKeywords,
		&triggerEventID,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return models.Breadcrumb{}, err
	}

	if embedding != nil {
		b.Embedding = embedding.Slice()
	}
	b.EntityKeywords = entityKeywords
	b.TriggerEventID = triggerEventID

	return b, nil
}

// scoredBreadcrumb pairs a breadcrumb with its fused hybrid-ranking score.
type scoredBreadcrumb struct {
	Breadcrumb models.Breadcrumb
	Score      float64
}

// scanBreadcrumbScored scans the same columns as scanBreadcrumb plus a
// trailing `score` column, for find_similar_hybrid's ranked result set.
func scanBreadcrumbScored(row pgx.CollectableRow) (scoredBreadcrumb, error) {
	var (
		b              models.Breadcrumb
		embedding      *pgvector.Vector
		triggerEventID *uuid.UUID
		entityKeywords []string
		score          float64
	)

	if err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.SchemaName,
		&b.Title,
		&b.Tags,
		&b.Context,
		&embedding,
		&entityKeywords,
		&triggerEventID,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
		&score,
	); err != nil {
		return scoredBreadcrumb{}, err
	}

	if embedding != nil {
		b.Embedding = embedding.Slice()
	}
	b.EntityKeywords = entityKeywords
	b.TriggerEventID = triggerEventID

	return scoredBreadcrumb{Breadcrumb: b, Score: score}, nil
}
