package graphbuilder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// TestLoader_RadiusZero pins §8 invariant 9: load_subgraph([s], 0) returns
// exactly {s} with no edges, even when s has neighbors one hop away.
func TestLoader_RadiusZero(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	seed := models.Breadcrumb{ID: uuid.New(), SchemaName: "knowledge.v1", CreatedAt: time.Now()}
	neighbor := models.Breadcrumb{ID: uuid.New(), SchemaName: "knowledge.v1", CreatedAt: time.Now()}
	insertRaw(t, pool, seed)
	insertRaw(t, pool, neighbor)
	_, err := pool.Exec(ctx, `INSERT INTO breadcrumb_edges (from_id, to_id, edge_type, weight) VALUES ($1, $2, 0, 0.95)`,
		seed.ID, neighbor.ID)
	require.NoError(t, err)

	loader := NewLoader(pool)
	g, err := loader.LoadSubgraph(ctx, []uuid.UUID{seed.ID}, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, g.NodeCount())
	_, ok := g.Nodes[seed.ID]
	assert.True(t, ok)
	assert.Empty(t, g.Neighbors(seed.ID))
}

func TestLoader_RadiusOne_WalksOneHop(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	seed := models.Breadcrumb{ID: uuid.New(), SchemaName: "knowledge.v1", CreatedAt: time.Now()}
	neighbor := models.Breadcrumb{ID: uuid.New(), SchemaName: "knowledge.v1", CreatedAt: time.Now()}
	stranger := models.Breadcrumb{ID: uuid.New(), SchemaName: "knowledge.v1", CreatedAt: time.Now()}
	insertRaw(t, pool, seed)
	insertRaw(t, pool, neighbor)
	insertRaw(t, pool, stranger)

	_, err := pool.Exec(ctx, `INSERT INTO breadcrumb_edges (from_id, to_id, edge_type, weight) VALUES ($1, $2, 0, 0.95)`,
		seed.ID, neighbor.ID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO breadcrumb_edges (from_id, to_id, edge_type, weight) VALUES ($1, $2, 0, 0.95)`,
		neighbor.ID, stranger.ID)
	require.NoError(t, err)

	loader := NewLoader(pool)
	g, err := loader.LoadSubgraph(ctx, []uuid.UUID{seed.ID}, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, g.NodeCount())
	_, strangerPresent := g.Nodes[stranger.ID]
	assert.False(t, strangerPresent)
}

func TestLoader_DanglingSeedTolerated(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	loader := NewLoader(pool)
	g, err := loader.LoadSubgraph(ctx, []uuid.UUID{uuid.New()}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, g.NodeCount())
}
