package breadcrumbstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// newTestGateway starts a disposable Postgres+pgvector container, applies
// the breadcrumbs schema directly (bypassing golang-migrate, since these
// tests only need the table shape, not migration bookkeeping), and returns
// a Gateway scoped to a random owner.
func newTestGateway(t *testing.T) (*Gateway, uuid.UUID) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE breadcrumbs (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000',
			schema_name TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			context JSONB NOT NULL DEFAULT '{}',
			embedding vector(3),
			entity_keywords TEXT[],
			trigger_event_id UUID,
			version INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	require.NoError(t, err)

	owner := uuid.New()
	return New(pool, owner), owner
}

func insertBlacklist(t *testing.T, g *Gateway, excluded ...string) {
	t.Helper()
	type entry struct {
		SchemaName string `json:"schema_name"`
	}
	entries := make([]entry, len(excluded))
	for i, s := range excluded {
		entries[i] = entry{SchemaName: s}
	}
	payload, err := json.Marshal(map[string]any{"excluded_schemas": entries})
	require.NoError(t, err)

	rec, err := g.CreateContextRecord(context.Background(), models.Breadcrumb{
		SchemaName: "context.blacklist.v1",
		Context:    payload,
	})
	require.NoError(t, err)
	_ = rec

	require.NoError(t, g.LoadBlacklist(context.Background()))
}

func TestGateway_CreateAndGetByID(t *testing.T) {
	g, owner := newTestGateway(t)
	ctx := context.Background()
	insertBlacklist(t, g)

	rec, err := g.CreateContextRecord(ctx, models.Breadcrumb{
		SchemaName: "knowledge.v1",
		Title:      "first record",
		Tags:       []string{"session:abc"},
		Context:    json.RawMessage(`{"note": "hello"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, owner, rec.OwnerID)

	got, err := g.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "first record", got.Title)
}

func TestGateway_GetByID_NotFound(t *testing.T) {
	g, _ := newTestGateway(t)
	_, err := g.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGateway_GetRecent_BlacklistFiltered(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	insertBlacklist(t, g, "noisy.schema.v1")

	_, err := g.CreateContextRecord(ctx, models.Breadcrumb{SchemaName: "noisy.schema.v1", Title: "noise"})
	require.NoError(t, err)
	_, err = g.CreateContextRecord(ctx, models.Breadcrumb{SchemaName: "knowledge.v1", Title: "signal"})
	require.NoError(t, err)

	recent, err := g.GetRecent(ctx, "", "", 10)
	require.NoError(t, err)

	var titles []string
	for _, r := range recent {
		titles = append(titles, r.Title)
	}
	assert.Contains(t, titles, "signal")
	assert.NotContains(t, titles, "noise")
}

// TestGateway_GetByTag_NotBlacklistFiltered pins §4.1/§8 scenario 6's
// deliberate divergence: get_by_tag bypasses the blacklist even when
// get_recent on the same schema would exclude the record.
func TestGateway_GetByTag_NotBlacklistFiltered(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	insertBlacklist(t, g, "noisy.schema.v1")

	_, err := g.CreateContextRecord(ctx, models.Breadcrumb{
		SchemaName: "noisy.schema.v1",
		Title:      "noise",
		Tags:       []string{"debug-pin"},
	})
	require.NoError(t, err)

	recent, err := g.GetRecent(ctx, "noisy.schema.v1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	byTag, err := g.GetByTag(ctx, "debug-pin", 10)
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "noise", byTag[0].Title)
}

func TestGateway_FindSimilarHybrid_DiscardsZeroScore(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	insertBlacklist(t, g)

	matching, err := g.CreateContextRecord(ctx, models.Breadcrumb{
		SchemaName:     "knowledge.v1",
		Title:          "matches on keywords only",
		EntityKeywords: []string{"breadcrumb", "embedding"},
	})
	require.NoError(t, err)

	_, err = g.CreateContextRecord(ctx, models.Breadcrumb{
		SchemaName: "knowledge.v1",
		Title:      "no embedding, no overlapping keywords",
	})
	require.NoError(t, err)

	results, err := g.FindSimilarHybrid(ctx, []float32{0, 0, 0}, []string{"breadcrumb", "embedding"}, 10, "")
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, matching.ID)
	assert.Len(t, results, 1)
}

func TestGateway_UpdateContextRecord_VersionMismatch(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	rec, err := g.CreateContextRecord(ctx, models.Breadcrumb{SchemaName: "knowledge.v1", Title: "v1"})
	require.NoError(t, err)

	_, err = g.UpdateContextRecord(ctx, rec.ID, rec.Version+1, "stale write", rec.Tags, rec.Context)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	updated, err := g.UpdateContextRecord(ctx, rec.ID, rec.Version, "v2", rec.Tags, json.RawMessage(`{"k":"v"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "v2", updated.Title)
}

func TestGateway_UpdateContextRecord_NotFound(t *testing.T) {
	g, _ := newTestGateway(t)
	_, err := g.UpdateContextRecord(context.Background(), uuid.New(), 1, "x", nil, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNotFound)
}
