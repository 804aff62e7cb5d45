package graphbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// Builder computes and persists C3's four edge types for a newly observed
// breadcrumb. It reads and writes breadcrumb_edges directly through a
// pgxpool.Pool, following the same hand-written-SQL approach as
// pkg/breadcrumbstore (grounded on glyphoxa's knowledge_graph.go).
type Builder struct {
	pool *pgxpool.Pool
}

// New constructs a Builder.
func New(pool *pgxpool.Pool) *Builder {
	return &Builder{pool: pool}
}

// BuildEdgesForBreadcrumb computes causal, tag, temporal, and semantic edges
// for bc and upserts them in bulk. It mirrors edge_builder.rs's
// build_edges_for_breadcrumb: every edge type is attempted independently,
// and absence of a signal (no trigger, no tags, no embedding) simply yields
// no edges of that type rather than an error.
func (b *Builder) BuildEdgesForBreadcrumb(ctx context.Context, bc models.Breadcrumb) error {
	var edges []models.Edge

	if e, ok := b.causalEdge(bc); ok {
		edges = append(edges, e)
	}

	tagEdges, err := b.tagEdges(ctx, bc)
	if err != nil {
		return fmt.Errorf("build tag edges: %w", err)
	}
	edges = append(edges, tagEdges...)

	temporalEdges, err := b.temporalEdges(ctx, bc)
	if err != nil {
		return fmt.Errorf("build temporal edges: %w", err)
	}
	edges = append(edges, temporalEdges...)

	semanticEdges, err := b.semanticEdges(ctx, bc)
	if err != nil {
		return fmt.Errorf("build semantic edges: %w", err)
	}
	edges = append(edges, semanticEdges...)

	if len(edges) == 0 {
		return nil
	}
	return b.upsertEdges(ctx, edges)
}

// causalEdge emits trigger_event_id → bc.ID when bc carries a trigger
// reference (§4.3 Causal). Weight is fixed at 0.95.
func (b *Builder) causalEdge(bc models.Breadcrumb) (models.Edge, bool) {
	if bc.TriggerEventID == nil {
		return models.Edge{}, false
	}
	return models.Edge{
		FromID: *bc.TriggerEventID,
		ToID:   bc.ID,
		Type:   models.EdgeCausal,
		Weight: 0.95,
	}, true
}

// tagEdges implements §4.3's TagRelated rule. Session tags take exclusive
// precedence over other tags — when bc carries any session:* tag, only the
// session-scoped search runs (matching edge_builder.rs's
// `if !other_tags.is_empty() && session_tags.is_empty()` guard, which means
// the two searches never both fire for the same breadcrumb).
func (b *Builder) tagEdges(ctx context.Context, bc models.Breadcrumb) ([]models.Edge, error) {
	var sessionTags, otherTags []string
	for _, t := range bc.Tags {
		switch {
		case strings.HasPrefix(t, "session:"):
			sessionTags = append(sessionTags, t)
		case strings.HasPrefix(t, "system:"):
			// excluded from both sets
		default:
			otherTags = append(otherTags, t)
		}
	}

	if len(sessionTags) > 0 {
		return b.tagOverlapEdges(ctx, bc, sessionTags, 100, 0.9, true)
	}
	if len(otherTags) > 0 {
		return b.tagOverlapEdges(ctx, bc, otherTags, 20, 0, false)
	}
	return nil, nil
}

func (b *Builder) tagOverlapEdges(ctx context.Context, bc models.Breadcrumb, searchTags []string, limit int, fixedWeight float32, sessionScoped bool) ([]models.Edge, error) {
	const q = `
		SELECT id, tags
		FROM breadcrumbs
		WHERE tags && $1::text[]
		  AND id != $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := b.pool.Query(ctx, q, searchTags, bc.ID, limit)
	if err != nil {
		return nil, err
	}
	type row struct {
		ID   uuid.UUID
		Tags []string
	}
	matches, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var m row
		err := r.Scan(&m.ID, &m.Tags)
		return m, err
	})
	if err != nil {
		return nil, err
	}

	edges := make([]models.Edge, 0, len(matches))
	for _, m := range matches {
		shared := sharedTagCount(bc.Tags, m.Tags)
		sharedI16 := int16(shared)

		weight := fixedWeight
		if !sessionScoped {
			denom := float32(len(bc.Tags))
			if denom < 1 {
				denom = 1
			}
			weight = float32(shared) / denom
			if weight > 0.8 {
				weight = 0.8
			}
		}

		edges = append(edges, models.Edge{
			FromID:         bc.ID,
			ToID:           m.ID,
			Type:           models.EdgeTagRelated,
			Weight:         weight,
			SharedTagCount: &sharedI16,
		})
	}
	return edges, nil
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	count := 0
	for _, t := range a {
		if _, ok := set[t]; ok {
			count++
		}
	}
	return count
}

// temporalEdges implements §4.3's Temporal rule: up to 50 records within
// ±5 minutes, weight decaying linearly to 0 at the 5-minute boundary.
func (b *Builder) temporalEdges(ctx context.Context, bc models.Breadcrumb) ([]models.Edge, error) {
	const q = `
		SELECT id, created_at
		FROM breadcrumbs
		WHERE created_at BETWEEN $1 - INTERVAL '5 minutes' AND $1 + INTERVAL '5 minutes'
		  AND id != $2
		ORDER BY ABS(EXTRACT(EPOCH FROM (created_at - $1)))
		LIMIT 50`

	rows, err := b.pool.Query(ctx, q, bc.CreatedAt, bc.ID)
	if err != nil {
		return nil, err
	}
	type row struct {
		ID        uuid.UUID
		CreatedAt time.Time
	}
	matches, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var m row
		err := r.Scan(&m.ID, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, err
	}

	edges := make([]models.Edge, 0, len(matches))
	for _, m := range matches {
		deltaSec := bc.CreatedAt.Unix() - m.CreatedAt.Unix()
		if deltaSec < 0 {
			deltaSec = -deltaSec
		}
		weight := 1 - float32(deltaSec)/300
		if weight < 0 {
			weight = 0
		}
		delta := deltaSec
		edges = append(edges, models.Edge{
			FromID:       bc.ID,
			ToID:         m.ID,
			Type:         models.EdgeTemporal,
			Weight:       weight,
			TimeDeltaSec: &delta,
		})
	}
	return edges, nil
}

// semanticEdges implements §4.3's Semantic rule: the 20 nearest neighbors by
// vector distance, keeping only those whose similarity (1/(1+dist)) exceeds
// 0.8. Breadcrumbs without an embedding contribute nothing.
func (b *Builder) semanticEdges(ctx context.Context, bc models.Breadcrumb) ([]models.Edge, error) {
	if bc.Embedding == nil {
		return nil, nil
	}

	const q = `
		SELECT id, (1.0 / (1.0 + (embedding <=> $1)))::real AS similarity
		FROM breadcrumbs
		WHERE embedding IS NOT NULL AND id != $2
		ORDER BY embedding <=> $1
		LIMIT 20`

	vec := toPgvector(bc.Embedding)
	rows, err := b.pool.Query(ctx, q, vec, bc.ID)
	if err != nil {
		return nil, err
	}
	type row struct {
		ID         uuid.UUID
		Similarity float32
	}
	matches, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var m row
		err := r.Scan(&m.ID, &m.Similarity)
		return m, err
	})
	if err != nil {
		return nil, err
	}

	edges := make([]models.Edge, 0, len(matches))
	for _, m := range matches {
		if m.Similarity <= 0.8 {
			continue
		}
		sim := m.Similarity
		edges = append(edges, models.Edge{
			FromID:     bc.ID,
			ToID:       m.ID,
			Type:       models.EdgeSemantic,
			Weight:     m.Similarity,
			Similarity: &sim,
		})
	}
	return edges, nil
}

// upsertEdges bulk-writes edges, replacing weight and diagnostic fields on
// conflicting (from_id, to_id) pairs (§4.3 "Upsert policy").
func (b *Builder) upsertEdges(ctx context.Context, edges []models.Edge) error {
	batch := &pgx.Batch{}
	const q = `
		INSERT INTO breadcrumb_edges (
			from_id, to_id, edge_type, weight, time_delta_sec, shared_tag_count, similarity
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (from_id, to_id) DO UPDATE
		SET edge_type = EXCLUDED.edge_type,
			weight = EXCLUDED.weight,
			time_delta_sec = EXCLUDED.time_delta_sec,
			shared_tag_count = EXCLUDED.shared_tag_count,
			similarity = EXCLUDED.similarity`

	for _, e := range edges {
		batch.Queue(q, e.FromID, e.ToID, e.Type, e.Weight, e.TimeDeltaSec, e.SharedTagCount, e.Similarity)
	}

	br := b.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range edges {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
