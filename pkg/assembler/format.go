package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/breadcrumbstore"
	"github.com/codeready-toolchain/contextengine/pkg/models"
)

const assembledSchema = "agent.context.v1"

// orderForOutput implements §4.7 step 7: schema priority ascending, then
// most-recent-first within the same priority bucket. Sort is stable so two
// records with identical priority and timestamp keep their traversal order.
func orderForOutput(records []models.Breadcrumb) []models.Breadcrumb {
	out := make([]models.Breadcrumb, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := models.SchemaPriority(out[i].SchemaName), models.SchemaPriority(out[j].SchemaName)
		if pi != pj {
			return pi < pj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// formatContext implements §4.7 step 8's join: each record's LLM view,
// separated by "\n\n---\n\n". Re-running this over the same ordered input
// always yields a byte-identical string (§8 invariant 7).
func formatContext(records []models.Breadcrumb) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = breadcrumbstore.LLMView(r)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n---\n\n"
		}
		out += p
	}
	return out
}

// publish upserts the agent.context.v1 record for (consumerID, session),
// mirroring original_source/.../output/publisher.rs's search-then-
// update-or-create flow: look up an existing record tagged with both the
// session and the consumer before deciding whether to create or update.
func (a *Assembler) publish(ctx context.Context, consumerID, session string, triggerEventID uuid.UUID, payload models.AssembledContext) error {
	consumerTag := fmt.Sprintf("consumer:%s", consumerID)

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal assembled context: %w", err)
	}

	existing, err := a.findExistingContextRecord(ctx, consumerTag, session)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Context for %s", consumerID)
	tags := []string{"agent:context", consumerTag, session}

	if existing != nil {
		_, err := a.store.UpdateContextRecord(ctx, existing.ID, existing.Version, title, tags, raw)
		if err != nil {
			return fmt.Errorf("update assembled context: %w", err)
		}
		return nil
	}

	_, err = a.store.CreateContextRecord(ctx, models.Breadcrumb{
		SchemaName:     assembledSchema,
		Title:          title,
		Tags:           tags,
		Context:        raw,
		TriggerEventID: &triggerEventID,
	})
	if err != nil {
		return fmt.Errorf("create assembled context: %w", err)
	}
	return nil
}

func (a *Assembler) findExistingContextRecord(ctx context.Context, consumerTag, session string) (*models.Breadcrumb, error) {
	candidates, err := a.store.GetByTag(ctx, consumerTag, 20)
	if err != nil {
		return nil, fmt.Errorf("search existing assembled context: %w", err)
	}
	for i := range candidates {
		c := candidates[i]
		if c.SchemaName != assembledSchema {
			continue
		}
		if containsTag(c.Tags, session) {
			return &c, nil
		}
	}
	return nil, nil
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
