package breadcrumbstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LoadBlacklist loads the single most recent context.blacklist.v1 record and
// installs it as the active snapshot. Its absence is fatal (§4.1) — callers
// MUST treat a non-nil error as a startup failure.
func (g *Gateway) LoadBlacklist(ctx context.Context) error {
	const q = `
		SELECT context
		FROM breadcrumbs
		WHERE schema_name = 'context.blacklist.v1'
		ORDER BY updated_at DESC
		LIMIT 1`

	var raw json.RawMessage
	err := g.pool.QueryRow(ctx, q).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrBlacklistMissing, blacklistMissingMessage())
	}
	if err != nil {
		return fmt.Errorf("load blacklist: %w", err)
	}

	var payload struct {
		ExcludedSchemas []struct {
			SchemaName string `json:"schema_name"`
		} `json:"excluded_schemas"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("context.blacklist.v1 has malformed context: %w", err)
	}

	snapshot := &blacklistSnapshot{excludedSchemas: make(map[string]struct{}, len(payload.ExcludedSchemas))}
	for _, s := range payload.ExcludedSchemas {
		snapshot.excludedSchemas[s.SchemaName] = struct{}{}
	}

	g.blacklist.Store(snapshot)
	return nil
}

// RefreshBlacklist reloads context.blacklist.v1 and atomically swaps the
// active snapshot. Unlike LoadBlacklist (called once at startup, where a
// missing blacklist is fatal), a refresh failure leaves the previous
// snapshot in place — callers running this on a ticker should log the
// error and keep serving with the last-known-good snapshot rather than
// propagate it.
func (g *Gateway) RefreshBlacklist(ctx context.Context) error {
	return g.LoadBlacklist(ctx)
}

// BlacklistSize reports how many schemas the active snapshot excludes, or
// -1 if no snapshot has ever loaded. Used by the debug/admin stats endpoint.
func (g *Gateway) BlacklistSize() int {
	snap := g.blacklist.Load()
	if snap == nil {
		return -1
	}
	return len(snap.excludedSchemas)
}
