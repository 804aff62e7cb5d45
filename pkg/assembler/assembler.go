package assembler

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// Assemble runs the full §4.7 contract for one (definition, triggering
// event) pair: fetch the trigger, collect seeds, load the subgraph, walk it
// within the resolved token budget, then format and publish the result.
//
// A missing trigger record aborts this consumer's assembly outright (step
// 1); so does a required (non-optional) always-source failing to resolve.
// An optional always-source's failure is logged and that source is simply
// skipped — it does not carry seeds, but it does not abort the consumer
// either. Both behaviors mirror §8 S5's isolation: one consumer's failure
// must never block another consumer's assembly, and the same isolation
// applies one level down, between a consumer's own sources.
func (a *Assembler) Assemble(ctx context.Context, def models.AgentDefinition, event models.ChangeEvent) error {
	if def.ContextTrigger == nil {
		return fmt.Errorf("assemble %s: no context_trigger configured", def.AgentID)
	}
	if event.BreadcrumbID == nil {
		return fmt.Errorf("assemble %s: event has no breadcrumb_id", def.AgentID)
	}

	// Step 1: fetch the trigger record.
	trigger, err := a.store.GetByID(ctx, *event.BreadcrumbID)
	if err != nil {
		return fmt.Errorf("assemble %s: fetch trigger %s: %w", def.AgentID, *event.BreadcrumbID, err)
	}

	session, _ := models.SessionTag(trigger.Tags)

	// Step 2: pointer extraction.
	pointers := extractPointers(trigger)

	// Step 3: seed collection.
	seeds, err := a.collectSeeds(ctx, def, trigger, pointers, session)
	if err != nil {
		return fmt.Errorf("assemble %s: collect seeds: %w", def.AgentID, err)
	}

	// Step 4: subgraph load.
	graph, err := a.loader.LoadSubgraph(ctx, seeds, a.subgraphRadius)
	if err != nil {
		return fmt.Errorf("assemble %s: load subgraph: %w", def.AgentID, err)
	}

	// Step 5: token budget.
	budget := a.resolveTokenBudget(ctx, def)

	// Step 6: traversal.
	walked := a.finder.Find(graph, seeds, budget)

	records := make([]models.Breadcrumb, 0, len(walked))
	for _, id := range walked {
		if n, ok := graph.Nodes[id]; ok {
			records = append(records, n)
		}
	}

	// Step 7: output ordering.
	ordered := orderForOutput(records)

	// Step 8: format and publish.
	formatted := formatContext(ordered)
	payload := models.AssembledContext{
		ConsumerID:       def.AgentID,
		TriggerEventID:   event.BreadcrumbID,
		AssembledAt:      time.Now(),
		TokenEstimate:    len(formatted) / 3,
		SourcesAssembled: len(def.ContextSources.Always),
		FormattedContext: formatted,
		BreadcrumbCount:  len(ordered),
	}

	sessionTag := session
	if sessionTag == "" {
		sessionTag = "session:none"
	}
	if err := a.publish(ctx, def.AgentID, sessionTag, *event.BreadcrumbID, payload); err != nil {
		return fmt.Errorf("assemble %s: publish: %w", def.AgentID, err)
	}

	if a.onPublish != nil {
		a.onPublish(def.AgentID, sessionTag, payload)
	}
	return nil
}
