package assembler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

const modelCatalogSchema = "openrouter.models.catalog.v1"

// resolveTokenBudget implements §4.7 step 5's priority order exactly:
// a model-catalog hit always wins over the config's own explicit
// context_budget field, which in turn wins over the 50 000-token fallback
// (§7 "Model catalog miss"). Any failure to resolve llm_config_id at all
// (unset, malformed, or not found) falls straight through to the default —
// an unresolvable pointer is not itself an assembly-aborting error.
func (a *Assembler) resolveTokenBudget(ctx context.Context, def models.AgentDefinition) int {
	if def.LLMConfigID == nil || *def.LLMConfigID == "" {
		return models.DefaultContextBudget
	}

	id, err := uuid.Parse(*def.LLMConfigID)
	if err != nil {
		a.logf("llm_config_id %q is not a valid id, using default budget: %v", *def.LLMConfigID, err)
		return models.DefaultContextBudget
	}

	cfgRec, err := a.store.GetByID(ctx, id)
	if err != nil {
		a.logf("llm config %s not found, using default budget: %v", id, err)
		return models.DefaultContextBudget
	}
	var cfg models.LLMConfig
	if err := json.Unmarshal(cfgRec.Context, &cfg); err != nil {
		a.logf("llm config %s malformed, using default budget: %v", id, err)
		return models.DefaultContextBudget
	}

	if entry, ok := a.lookupCatalogEntry(ctx, cfg.DefaultModel); ok {
		return int(float64(entry.ContextLength) * models.ContextLengthFraction)
	}
	if cfg.ContextBudget != nil && cfg.ContextBudget.Tokens > 0 {
		return cfg.ContextBudget.Tokens
	}
	return models.DefaultContextBudget
}

func (a *Assembler) lookupCatalogEntry(ctx context.Context, model string) (models.ModelCatalogEntry, bool) {
	if model == "" {
		return models.ModelCatalogEntry{}, false
	}
	rec, err := a.store.GetLatest(ctx, modelCatalogSchema, "")
	if err != nil {
		return models.ModelCatalogEntry{}, false
	}
	var entries []models.ModelCatalogEntry
	if err := json.Unmarshal(rec.Context, &entries); err != nil {
		return models.ModelCatalogEntry{}, false
	}
	for _, e := range entries {
		if e.Model == model {
			return e, true
		}
	}
	return models.ModelCatalogEntry{}, false
}
