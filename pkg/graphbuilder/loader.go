package graphbuilder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// subgraphEdgeCap bounds how many inter-node edges a single load_subgraph
// call fetches — implementation-defined per §4.4 step 4 ("the reference
// uses 1000").
const subgraphEdgeCap = 1000

// Loader implements C4: materializing the bounded subgraph reachable from a
// set of seed ids within radius hops, grounded on
// original_source/.../graph/loader.rs's recursive CTE, generalized from a
// single trigger id to an arbitrary seed set per §4.4 step 1.
type Loader struct {
	pool *pgxpool.Pool
}

// NewLoader constructs a Loader.
func NewLoader(pool *pgxpool.Pool) *Loader {
	return &Loader{pool: pool}
}

// LoadSubgraph performs the bounded BFS walk described in §4.4: starting
// from seeds at depth 0, it follows breadcrumb_edges in both directions up
// to radius hops, hydrates full records for every id reached, and fetches
// edges whose endpoints both lie in the accumulated set. A seed id with no
// matching record is silently absent from the returned graph — callers
// must tolerate dangling seed references (§4.4 step 5).
func (l *Loader) LoadSubgraph(ctx context.Context, seeds []uuid.UUID, radius int) (*Graph, error) {
	// radius=0 is a valid edge case (§8 invariant 9: load_subgraph([s], 0)
	// returns exactly {s} with no edges) even though callers typically pass
	// radius >= 1.
	if radius < 0 {
		return nil, fmt.Errorf("load_subgraph: radius must be >= 0, got %d", radius)
	}
	if len(seeds) == 0 {
		return NewGraph(), nil
	}

	const nodesQuery = `
		WITH RECURSIVE graph_walk AS (
			SELECT id, 0 AS depth
			FROM breadcrumbs
			WHERE id = ANY($1)

			UNION

			SELECT DISTINCT
				CASE WHEN e.from_id = gw.id THEN e.to_id ELSE e.from_id END AS id,
				gw.depth + 1 AS depth
			FROM graph_walk gw
			JOIN breadcrumb_edges e ON (e.from_id = gw.id OR e.to_id = gw.id)
			WHERE gw.depth < $2
		)
		SELECT DISTINCT b.id, b.owner_id, b.schema_name, b.title, b.tags, b.context,
			b.embedding, b.entity_keywords, b.trigger_event_id, b.version,
			b.created_at, b.updated_at
		FROM graph_walk gw
		JOIN breadcrumbs b ON b.id = gw.id`

	rows, err := l.pool.Query(ctx, nodesQuery, seeds, radius)
	if err != nil {
		return nil, fmt.Errorf("load_subgraph: nodes: %w", err)
	}
	nodes, err := pgx.CollectRows(rows, scanGraphNode)
	if err != nil {
		return nil, fmt.Errorf("load_subgraph: scan nodes: %w", err)
	}

	g := NewGraph()
	ids := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		g.AddNode(n)
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		return g, nil
	}

	const edgesQuery = `
		SELECT from_id, to_id, edge_type, weight, time_delta_sec, shared_tag_count, similarity, created_at
		FROM breadcrumb_edges
		WHERE from_id = ANY($1) AND to_id = ANY($1)
		LIMIT $2`

	edgeRows, err := l.pool.Query(ctx, edgesQuery, ids, subgraphEdgeCap)
	if err != nil {
		return nil, fmt.Errorf("load_subgraph: edges: %w", err)
	}
	edges, err := pgx.CollectRows(edgeRows, scanGraphEdge)
	if err != nil {
		return nil, fmt.Errorf("load_subgraph: scan edges: %w", err)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}

	return g, nil
}

// scanGraphNode mirrors breadcrumbstore's scan closure — duplicated rather
// than imported to keep this package's read path independent of the
// gateway's internals; both scan the same column order from breadcrumbs.
func scanGraphNode(row pgx.CollectableRow) (models.Breadcrumb, error) {
	var (
		b              models.Breadcrumb
		embedding      *pgvector.Vector
		triggerEventID *uuid.UUID
	)

	if err := row.Scan(
		&b.ID, &b.OwnerID, &b.SchemaName, &b.Title, &b.Tags, &b.Context,
		&embedding, &b.EntityKeywords, &triggerEventID, &b.Version,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return models.Breadcrumb{}, err
	}
	if embedding != nil {
		b.Embedding = embedding.Slice()
	}
	b.TriggerEventID = triggerEventID
	return b, nil
}

func scanGraphEdge(row pgx.CollectableRow) (models.Edge, error) {
	var e models.Edge
	err := row.Scan(&e.FromID, &e.ToID, &e.Type, &e.Weight, &e.TimeDeltaSec, &e.SharedTagCount, &e.Similarity, &e.CreatedAt)
	return e, err
}
