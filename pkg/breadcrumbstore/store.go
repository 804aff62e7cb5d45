// Package breadcrumbstore implements C1, the typed accessor over the
// backing store: fetch by id/tag/schema, vector and hybrid similarity
// queries, blacklist-filtered recent queries, and the write-back of
// assembled context records. Grounded on
// MrWong99-glyphoxa/pkg/memory/postgres (hand-written SQL over a
// pgxpool.Pool, scan closures via pgx.CollectRows) and on
// original_source/.../vector_store.rs for the blacklist-loading contract.
package breadcrumbstore

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Gateway is the C1 record store accessor. Every operation is implicitly
// scoped to OwnerID (§3 "scoped to the authenticated owner").
type Gateway struct {
	pool    *pgxpool.Pool
	ownerID uuid.UUID

	// blacklist is a read-mostly, atomically-replaceable snapshot (§9
	// "Shared mutable caches... model it as an atomic-replaceable snapshot
	// pointer"). It must be populated by LoadBlacklist before any
	// blacklist-filtered operation runs.
	blacklist atomic.Pointer[blacklistSnapshot]
}

type blacklistSnapshot struct {
	excludedSchemas map[string]struct{}
}

// New constructs a Gateway. Callers MUST call LoadBlacklist before using any
// blacklist-filtered operation — the zero value has no loaded snapshot, and
// until one is loaded GetRecent/FindSimilar/FindSimilarHybrid exclude no
// schema at all (see excludedSchemasList in queries.go).
func New(pool *pgxpool.Pool, ownerID uuid.UUID) *Gateway {
	return &Gateway{pool: pool, ownerID: ownerID}
}
