package assembler

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

const allMethodLimit = 1000

// extractPointers implements §4.7 step 2: the union of the trigger's
// colon-free, non-state tags (lowercased) and its entity_keywords,
// deduplicated. State tags and session/pointer-style tags with a ":" are
// excluded per §3's pointer-tag definition (§8 S3).
func extractPointers(trigger models.Breadcrumb) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, t := range trigger.Tags {
		if models.IsPointerTag(t) {
			add(lower(t))
		}
	}
	for _, k := range trigger.EntityKeywords {
		add(lower(k))
	}

	sort.Strings(out)
	return out
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// collectSeeds implements §4.7 step 3: trigger id first, then always-sources
// in declared order, then hybrid-semantic seeds, then session-recent seeds,
// deduplicated across all of it while preserving first-seen order.
func (a *Assembler) collectSeeds(ctx context.Context, def models.AgentDefinition, trigger models.Breadcrumb, pointers []string, session string) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]struct{}{trigger.ID: {}}
	seeds := []uuid.UUID{trigger.ID}

	addAll := func(recs []models.Breadcrumb) {
		for _, r := range recs {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			seeds = append(seeds, r.ID)
		}
	}

	for _, src := range def.ContextSources.Always {
		recs, err := a.resolveAlwaysSource(ctx, src, session)
		if err != nil {
			if src.Optional {
				a.logf("always source %s/%s failed (optional, skipping): %v", src.SourceType, src.SchemaName, err)
				continue
			}
			return nil, fmt.Errorf("required source %s/%s: %w", src.SourceType, src.SchemaName, err)
		}
		addAll(recs)
	}

	if sem := def.ContextSources.Semantic; sem != nil && sem.Enabled && len(pointers) > 0 && trigger.Embedding != nil {
		limit := sem.Limit
		if limit <= 0 {
			limit = 3
		}
		candidates, err := a.store.FindSimilarHybrid(ctx, trigger.Embedding, pointers, limit, "")
		if err != nil {
			return nil, fmt.Errorf("semantic seeds: %w", err)
		}
		allowed := toSchemaSet(sem.Schemas)
		var kept []models.Breadcrumb
		for _, c := range candidates {
			if _, ok := allowed[c.SchemaName]; ok {
				kept = append(kept, c)
			}
		}
		addAll(kept)
	}

	if session != "" {
		recent, err := a.store.GetRecent(ctx, "", session, 20)
		if err != nil {
			return nil, fmt.Errorf("session-recent seeds: %w", err)
		}
		addAll(recent)
	}

	return seeds, nil
}

func (a *Assembler) resolveAlwaysSource(ctx context.Context, src models.SourceSpec, session string) ([]models.Breadcrumb, error) {
	switch src.SourceType {
	case "tag":
		limit := src.Limit
		if limit <= 0 {
			limit = 20
		}
		return a.store.GetByTag(ctx, src.Tag, limit)

	case "schema":
		switch src.Method {
		case "latest":
			rec, err := a.store.GetLatest(ctx, src.SchemaName, session)
			if err != nil {
				return nil, err
			}
			return []models.Breadcrumb{rec}, nil
		case "all":
			limit := src.Limit
			if limit <= 0 {
				limit = allMethodLimit
			}
			return a.store.GetRecent(ctx, src.SchemaName, "", limit)
		default: // "recent" or unset
			limit := src.Limit
			if limit <= 0 {
				limit = 20
			}
			return a.store.GetRecent(ctx, src.SchemaName, session, limit)
		}

	default:
		return nil, fmt.Errorf("unknown source_type %q", src.SourceType)
	}
}

func toSchemaSet(schemas []string) map[string]struct{} {
	set := make(map[string]struct{}, len(schemas))
	for _, s := range schemas {
		set[s] = struct{}{}
	}
	return set
}
