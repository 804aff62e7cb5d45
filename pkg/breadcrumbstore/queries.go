package breadcrumbstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// excludedSchemasList renders the current blacklist snapshot as a slice for
// binding against `schema_name != ALL($n)`. A nil/empty snapshot still binds
// an empty slice — ALL(ARRAY[]::text[]) is always true, so it excludes nothing.
func (g *Gateway) excludedSchemasList() []string {
	snap := g.blacklist.Load()
	if snap == nil {
		return []string{}
	}
	out := make([]string, 0, len(snap.excludedSchemas))
	for s := range snap.excludedSchemas {
		out = append(out, s)
	}
	return out
}

// GetByID fetches a single breadcrumb by id. Returns ErrNotFound if absent.
func (g *Gateway) GetByID(ctx context.Context, id uuid.UUID) (models.Breadcrumb, error) {
	q := fmt.Sprintf(`SELECT %s FROM breadcrumbs WHERE id = $1 AND owner_id = $2`, breadcrumbColumns)

	rows, err := g.pool.Query(ctx, q, id, g.ownerID)
	if err != nil {
		return models.Breadcrumb{}, fmt.Errorf("get_by_id: %w", err)
	}
	bc, err := pgx.CollectExactlyOneRow(rows, scanBreadcrumb)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Breadcrumb{}, ErrNotFound
	}
	if err != nil {
		return models.Breadcrumb{}, fmt.Errorf("get_by_id: %w", err)
	}
	return bc, nil
}

// GetLatest fetches the most recently created breadcrumb of schema,
// optionally restricted to a session tag. Returns ErrNotFound if none exists.
func (g *Gateway) GetLatest(ctx context.Context, schema string, session string) (models.Breadcrumb, error) {
	args := []any{g.ownerID, schema}
	sessionClause := ""
	if session != "" {
		args = append(args, session)
		sessionClause = "AND $3 = ANY(tags)"
	}

	q := fmt.Sprintf(`
		SELECT %s FROM breadcrumbs
		WHERE owner_id = $1 AND schema_name = $2 %s
		ORDER BY created_at DESC
		LIMIT 1`, breadcrumbColumns, sessionClause)

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return models.Breadcrumb{}, fmt.Errorf("get_latest: %w", err)
	}
	bc, err := pgx.CollectExactlyOneRow(rows, scanBreadcrumb)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Breadcrumb{}, ErrNotFound
	}
	if err != nil {
		return models.Breadcrumb{}, fmt.Errorf("get_latest: %w", err)
	}
	return bc, nil
}

// GetRecent returns up to limit breadcrumbs ordered by created_at desc,
// optionally filtered by schema and/or session tag. Blacklist-filtered (§4.1).
func (g *Gateway) GetRecent(ctx context.Context, schema, session string, limit int) ([]models.Breadcrumb, error) {
	args := []any{g.ownerID}
	conditions := []string{"owner_id = $1"}

	if schema != "" {
		args = append(args, schema)
		conditions = append(conditions, fmt.Sprintf("schema_name = $%d", len(args)))
	}
	if session != "" {
		args = append(args, session)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}

	args = append(args, g.excludedSchemasList())
	conditions = append(conditions, fmt.Sprintf("schema_name != ALL($%d)", len(args)))

	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT %s FROM breadcrumbs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %s`, breadcrumbColumns, joinAnd(conditions), limitArg)

	return g.queryBreadcrumbs(ctx, q, args...)
}

// GetByTag returns up to limit breadcrumbs carrying tag, ordered by
// created_at desc. NOT blacklist-filtered — §4.1 preserves this divergence
// intentionally (targeted tag lookups bypass the blacklist; see §8 S6 and
// §9's explicit flag-for-review note).
func (g *Gateway) GetByTag(ctx context.Context, tag string, limit int) ([]models.Breadcrumb, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM breadcrumbs
		WHERE owner_id = $1 AND $2 = ANY(tags)
		ORDER BY created_at DESC
		LIMIT $3`, breadcrumbColumns)

	return g.queryBreadcrumbs(ctx, q, g.ownerID, tag, limit)
}

// FindSimilar returns up to limit breadcrumbs ordered by ascending cosine
// distance to queryVector, optionally restricted to a session tag.
// Blacklist-filtered.
func (g *Gateway) FindSimilar(ctx context.Context, queryVector []float32, limit int, session string) ([]models.Breadcrumb, error) {
	vec := pgvector.NewVector(queryVector)
	args := []any{g.ownerID, vec}
	conditions := []string{"owner_id = $1", "embedding IS NOT NULL"}

	if session != "" {
		args = append(args, session)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}

	args = append(args, g.excludedSchemasList())
	conditions = append(conditions, fmt.Sprintf("schema_name != ALL($%d)", len(args)))

	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT %s FROM breadcrumbs
		WHERE %s
		ORDER BY embedding <=> $2
		LIMIT %s`, breadcrumbColumns, joinAnd(conditions), limitArg)

	return g.queryBreadcrumbs(ctx, q, args...)
}

// FindSimilarHybrid ranks candidates by the fused score
// 0.6*vec_score + 0.4*kw_score (§4.2). vec_score is 1/(1+cosine_distance)
// when the candidate has an embedding, else 0. kw_score is the fraction of
// queryKeywords found (as distinct values) among the candidate's
// entity_keywords, else 0 when either side is empty. Candidates where both
// components are 0 are discarded rather than ranked last. Blacklist-filtered.
func (g *Gateway) FindSimilarHybrid(ctx context.Context, queryVector []float32, queryKeywords []string, limit int, session string) ([]models.Breadcrumb, error) {
	vec := pgvector.NewVector(queryVector)
	kCount := len(queryKeywords)

	args := []any{g.ownerID, vec, queryKeywords, kCount}
	conditions := []string{"owner_id = $1"}

	if session != "" {
		args = append(args, session)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}

	args = append(args, g.excludedSchemasList())
	conditions = append(conditions, fmt.Sprintf("schema_name != ALL($%d)", len(args)))

	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		WITH scored AS (
			SELECT %s,
				CASE WHEN embedding IS NOT NULL
					THEN 1.0 / (1.0 + (embedding <=> $2))
					ELSE 0
				END AS vec_score,
				CASE WHEN entity_keywords IS NOT NULL
					AND array_length(entity_keywords, 1) > 0
					AND $4 > 0
					THEN (
						SELECT count(DISTINCT k)::float8
						FROM unnest(entity_keywords) AS k
						WHERE k = ANY($3)
					) / $4
					ELSE 0
				END AS kw_score
			FROM breadcrumbs
			WHERE %s
		)
		SELECT %s, (0.6 * vec_score + 0.4 * kw_score) AS score
		FROM scored
		WHERE vec_score > 0 OR kw_score > 0
		ORDER BY score DESC
		LIMIT %s`,
		breadcrumbColumns, joinAnd(conditions), breadcrumbColumns, limitArg)

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find_similar_hybrid: %w", err)
	}
	results, err := pgx.CollectRows(rows, scanBreadcrumbScored)
	if err != nil {
		return nil, fmt.Errorf("find_similar_hybrid: scan: %w", err)
	}

	out := make([]models.Breadcrumb, len(results))
	for i, r := range results {
		out[i] = r.Breadcrumb
	}
	return out, nil
}

func (g *Gateway) queryBreadcrumbs(ctx context.Context, q string, args ...any) ([]models.Breadcrumb, error) {
	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query breadcrumbs: %w", err)
	}
	results, err := pgx.CollectRows(rows, scanBreadcrumb)
	if err != nil {
		return nil, fmt.Errorf("scan breadcrumbs: %w", err)
	}
	if results == nil {
		results = []models.Breadcrumb{}
	}
	return results, nil
}

func joinAnd(conditions []string) string {
	out := conditions[0]
	for _, c := range conditions[1:] {
		out += " AND " + c
	}
	return out
}
