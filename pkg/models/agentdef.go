package models

import "github.com/google/uuid"

// AgentDefinition is decoded from a breadcrumb with SchemaName "agent.def.v1".
// It declares which event shapes wake the consumer (ContextTrigger) and which
// sources feed its assembled context (ContextSources).
type AgentDefinition struct {
	AgentID      string    `json:"agent_id"`
	LLMConfigID  *string   `json:"llm_config_id,omitempty"`
	ContextTrigger *ContextTrigger `json:"context_trigger,omitempty"`
	ContextSources ContextSources  `json:"context_sources"`
}

// ContextTrigger declares which incoming events wake this consumer.
// AllTags takes precedence over AnyTags when both are set (§4.6).
type ContextTrigger struct {
	SchemaName string   `json:"schema_name"`
	AllTags    []string `json:"all_tags,omitempty"`
	AnyTags    []string `json:"any_tags,omitempty"`
	Comment    string   `json:"comment,omitempty"`
}

// ContextSources declares the seed sources an assembler pulls from beyond the
// trigger record itself.
type ContextSources struct {
	Always   []SourceSpec   `json:"always,omitempty"`
	Semantic *SemanticConfig `json:"semantic,omitempty"`
}

// SourceSpec names a deterministic, non-semantic seed source.
type SourceSpec struct {
	SourceType string  `json:"source_type"` // "schema" | "tag"
	SchemaName string  `json:"schema_name,omitempty"`
	Tag        string  `json:"tag,omitempty"`
	Method     string  `json:"method,omitempty"` // "latest" | "recent" | "all"
	Limit      int     `json:"limit,omitempty"`
	Optional   bool    `json:"optional,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// SemanticConfig gates whether hybrid-semantic retrieval contributes seeds.
type SemanticConfig struct {
	Enabled      bool     `json:"enabled"`
	Schemas      []string `json:"schemas"`
	Limit        int      `json:"limit,omitempty"`
	MinSimilarity float32  `json:"min_similarity,omitempty"`
}

// ContextBlacklist is decoded from the most recent breadcrumb with
// SchemaName "context.blacklist.v1". Its absence at startup is fatal.
type ContextBlacklist struct {
	ExcludedSchemas []ExcludedSchema `json:"excluded_schemas"`
}

// ExcludedSchema names one schema the blacklist excludes from
// blacklist-filtered gateway operations.
type ExcludedSchema struct {
	SchemaName string `json:"schema_name"`
}

// Schemas flattens the blacklist into a plain string set for membership tests.
func (b ContextBlacklist) Schemas() map[string]struct{} {
	set := make(map[string]struct{}, len(b.ExcludedSchemas))
	for _, s := range b.ExcludedSchemas {
		set[s.SchemaName] = struct{}{}
	}
	return set
}

// LLMConfig is decoded from a model-config breadcrumb referenced by
// AgentDefinition.LLMConfigID; it resolves a consumer's context token budget.
type LLMConfig struct {
	ID              uuid.UUID      `json:"id"`
	DefaultModel    string         `json:"default_model"`
	MaxTokens       int            `json:"max_tokens,omitempty"`
	Temperature     float32        `json:"temperature,omitempty"`
	ContextBudget   *ContextBudget `json:"context_budget,omitempty"`
}

// ContextBudget overrides the derived token budget explicitly.
type ContextBudget struct {
	Tokens int    `json:"tokens"`
	Source string `json:"source,omitempty"`
}

// ModelCatalogEntry is decoded from an "openrouter.models.catalog.v1"
// breadcrumb, keyed by model name, used to derive a token budget from
// context_length. A catalog hit takes priority over an explicit ContextBudget.
type ModelCatalogEntry struct {
	Model         string `json:"model"`
	ContextLength int    `json:"context_length"`
}

// DefaultContextBudget is used when neither an explicit ContextBudget nor a
// model catalog entry can be resolved (§4.7 step 5, §7 "Model catalog miss").
const DefaultContextBudget = 50000

// ContextLengthFraction is the fraction of a model's context window treated
// as available token budget (§4.7 step 5, GLOSSARY "Context budget").
const ContextLengthFraction = 0.75
