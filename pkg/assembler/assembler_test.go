package assembler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/contextengine/pkg/graphbuilder"
	"github.com/codeready-toolchain/contextengine/pkg/models"
	"github.com/codeready-toolchain/contextengine/pkg/pathfinder"
)

// fakeStore is an in-memory stand-in for C1, just enough surface for the
// assembler's seed/publish paths.
type fakeStore struct {
	records     map[uuid.UUID]models.Breadcrumb
	hybridResults []models.Breadcrumb
	failRecent  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[uuid.UUID]models.Breadcrumb{}}
}

func (s *fakeStore) put(bc models.Breadcrumb) models.Breadcrumb {
	if bc.ID == uuid.Nil {
		bc.ID = uuid.New()
	}
	s.records[bc.ID] = bc
	return bc
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (models.Breadcrumb, error) {
	if bc, ok := s.records[id]; ok {
		return bc, nil
	}
	return models.Breadcrumb{}, errNotFound
}

func (s *fakeStore) GetLatest(_ context.Context, schema, _ string) (models.Breadcrumb, error) {
	var best models.Breadcrumb
	found := false
	for _, bc := range s.records {
		if bc.SchemaName != schema {
			continue
		}
		if !found || bc.CreatedAt.After(best.CreatedAt) {
			best, found = bc, true
		}
	}
	if !found {
		return models.Breadcrumb{}, errNotFound
	}
	return best, nil
}

func (s *fakeStore) GetRecent(_ context.Context, schema, session string, limit int) ([]models.Breadcrumb, error) {
	if s.failRecent {
		return nil, errStoreUnavailable
	}
	var out []models.Breadcrumb
	for _, bc := range s.records {
		if schema != "" && bc.SchemaName != schema {
			continue
		}
		if session != "" && !containsTag(bc.Tags, session) {
			continue
		}
		out = append(out, bc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) GetByTag(_ context.Context, tag string, limit int) ([]models.Breadcrumb, error) {
	var out []models.Breadcrumb
	for _, bc := range s.records {
		if containsTag(bc.Tags, tag) {
			out = append(out, bc)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) FindSimilarHybrid(_ context.Context, _ []float32, _ []string, limit int, _ string) ([]models.Breadcrumb, error) {
	if limit < len(s.hybridResults) {
		return s.hybridResults[:limit], nil
	}
	return s.hybridResults, nil
}

func (s *fakeStore) CreateContextRecord(_ context.Context, rec models.Breadcrumb) (models.Breadcrumb, error) {
	rec.Version = 1
	return s.put(rec), nil
}

func (s *fakeStore) UpdateContextRecord(_ context.Context, id uuid.UUID, expectedVersion int, title string, tags []string, payload json.RawMessage) (models.Breadcrumb, error) {
	bc, ok := s.records[id]
	if !ok {
		return models.Breadcrumb{}, errNotFound
	}
	if bc.Version != expectedVersion {
		return models.Breadcrumb{}, errVersionMismatch
	}
	bc.Title, bc.Tags, bc.Context, bc.Version = title, tags, payload, bc.Version+1
	s.records[id] = bc
	return bc, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const (
	errNotFound         = sentinelErr("not found")
	errVersionMismatch  = sentinelErr("version mismatch")
	errStoreUnavailable = sentinelErr("store unavailable")
)

// fixedGraphLoader ignores its inputs and always returns the same prebuilt
// graph, letting tests control subgraph shape directly.
type fixedGraphLoader struct{ graph *graphbuilder.Graph }

func (l fixedGraphLoader) LoadSubgraph(context.Context, []uuid.UUID, int) (*graphbuilder.Graph, error) {
	return l.graph, nil
}

// TestAssemble_CausalOnly reproduces §8 S1: causal edge A->B, trigger on B,
// assembled context contains B then A (same priority bucket, recency order).
func TestAssemble_CausalOnly(t *testing.T) {
	store := newFakeStore()
	now := time.Now()

	a := store.put(models.Breadcrumb{
		SchemaName: "user.message.v1",
		Tags:       []string{"session:s1"},
		Context:    json.RawMessage(`{}`),
		CreatedAt:  now.Add(-time.Minute),
	})
	b := store.put(models.Breadcrumb{
		SchemaName:     "agent.response.v1",
		Tags:           []string{"session:s1"},
		Context:        json.RawMessage(`{}`),
		CreatedAt:      now,
		TriggerEventID: &a.ID,
	})

	graph := graphbuilder.NewGraph()
	graph.AddNode(a)
	graph.AddNode(b)
	graph.AddEdge(models.Edge{FromID: a.ID, ToID: b.ID, Type: models.EdgeCausal, Weight: 0.95})

	asm := New(store, fixedGraphLoader{graph: graph}, pathfinder.New(), nil)
	def := models.AgentDefinition{
		AgentID:        "responder",
		ContextTrigger: &models.ContextTrigger{SchemaName: "agent.response.v1"},
	}
	event := models.ChangeEvent{Type: "bc.created", SchemaName: "agent.response.v1", BreadcrumbID: &b.ID}

	err := asm.Assemble(context.Background(), def, event)
	require.NoError(t, err)

	published, err := store.GetByTag(context.Background(), "consumer:responder", 10)
	require.NoError(t, err)
	require.Len(t, published, 1)

	var payload models.AssembledContext
	require.NoError(t, json.Unmarshal(published[0].Context, &payload))
	assert.Equal(t, 2, payload.BreadcrumbCount)

	assert.Less(t, indexOf(payload.FormattedContext, "agent.response.v1"), indexOf(payload.FormattedContext, "user.message.v1"))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// TestAssemble_MissingTriggerAborts pins §4.7 step 1: a missing trigger
// record aborts this consumer's assembly.
func TestAssemble_MissingTriggerAborts(t *testing.T) {
	store := newFakeStore()
	graph := graphbuilder.NewGraph()
	asm := New(store, fixedGraphLoader{graph: graph}, pathfinder.New(), nil)

	missing := uuid.New()
	def := models.AgentDefinition{AgentID: "x", ContextTrigger: &models.ContextTrigger{SchemaName: "knowledge.v1"}}
	event := models.ChangeEvent{BreadcrumbID: &missing}

	err := asm.Assemble(context.Background(), def, event)
	assert.Error(t, err)
}

// TestAssemble_OptionalSourceFailureIsSkipped documents the Open Question
// decision: an optional always-source's failure is logged and skipped,
// never aborting the consumer (§8 S5's isolation applied one level down).
func TestAssemble_OptionalSourceFailureIsSkipped(t *testing.T) {
	store := newFakeStore()
	store.failRecent = true

	trigger := store.put(models.Breadcrumb{SchemaName: "knowledge.v1", Context: json.RawMessage(`{}`)})

	graph := graphbuilder.NewGraph()
	graph.AddNode(trigger)

	asm := New(store, fixedGraphLoader{graph: graph}, pathfinder.New(), nil)
	def := models.AgentDefinition{
		AgentID:        "optional-consumer",
		ContextTrigger: &models.ContextTrigger{SchemaName: "knowledge.v1"},
		ContextSources: models.ContextSources{
			Always: []models.SourceSpec{{SourceType: "schema", SchemaName: "tool.catalog.v1", Optional: true}},
		},
	}
	event := models.ChangeEvent{BreadcrumbID: &trigger.ID}

	err := asm.Assemble(context.Background(), def, event)
	assert.NoError(t, err)
}

// TestAssemble_RequiredSourceFailureAborts is the mirror image: a
// non-optional always-source failing propagates as this consumer's error.
func TestAssemble_RequiredSourceFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.failRecent = true

	trigger := store.put(models.Breadcrumb{SchemaName: "knowledge.v1", Context: json.RawMessage(`{}`)})
	graph := graphbuilder.NewGraph()
	graph.AddNode(trigger)

	asm := New(store, fixedGraphLoader{graph: graph}, pathfinder.New(), nil)
	def := models.AgentDefinition{
		AgentID:        "required-consumer",
		ContextTrigger: &models.ContextTrigger{SchemaName: "knowledge.v1"},
		ContextSources: models.ContextSources{
			Always: []models.SourceSpec{{SourceType: "schema", SchemaName: "tool.catalog.v1"}},
		},
	}
	event := models.ChangeEvent{BreadcrumbID: &trigger.ID}

	err := asm.Assemble(context.Background(), def, event)
	assert.Error(t, err)
}

// TestAssemble_Idempotent pins §8 invariant 7: re-running assembly with no
// intervening store changes yields a byte-identical formatted_context, and
// the second run updates the same record rather than creating a second one.
func TestAssemble_Idempotent(t *testing.T) {
	store := newFakeStore()
	trigger := store.put(models.Breadcrumb{SchemaName: "knowledge.v1", Context: json.RawMessage(`{"a":1}`)})

	graph := graphbuilder.NewGraph()
	graph.AddNode(trigger)

	asm := New(store, fixedGraphLoader{graph: graph}, pathfinder.New(), nil)
	def := models.AgentDefinition{AgentID: "idem", ContextTrigger: &models.ContextTrigger{SchemaName: "knowledge.v1"}}
	event := models.ChangeEvent{BreadcrumbID: &trigger.ID}

	require.NoError(t, asm.Assemble(context.Background(), def, event))
	first, err := store.GetByTag(context.Background(), "consumer:idem", 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	var firstPayload models.AssembledContext
	require.NoError(t, json.Unmarshal(first[0].Context, &firstPayload))

	require.NoError(t, asm.Assemble(context.Background(), def, event))
	second, err := store.GetByTag(context.Background(), "consumer:idem", 10)
	require.NoError(t, err)
	require.Len(t, second, 1, "second run must update, not duplicate")
	var secondPayload models.AssembledContext
	require.NoError(t, json.Unmarshal(second[0].Context, &secondPayload))

	assert.Equal(t, firstPayload.FormattedContext, secondPayload.FormattedContext)
	assert.Equal(t, 2, second[0].Version)
}

// TestExtractPointers_StateTagsExcluded pins §8 S3.
func TestExtractPointers_StateTagsExcluded(t *testing.T) {
	trigger := models.Breadcrumb{Tags: []string{"approved", "invoices", "session:s7"}}
	assert.Equal(t, []string{"invoices"}, extractPointers(trigger))
}

// TestCollectSeeds_SemanticFilteredBySchema pins §8 S2's "semantic seeds are
// filtered to the configured schema allow-list" half of the contract.
func TestCollectSeeds_SemanticFilteredBySchema(t *testing.T) {
	store := newFakeStore()
	k1 := models.Breadcrumb{ID: uuid.New(), SchemaName: "knowledge.v1"}
	wrongSchema := models.Breadcrumb{ID: uuid.New(), SchemaName: "user.message.v1"}
	store.hybridResults = []models.Breadcrumb{k1, wrongSchema}

	trigger := models.Breadcrumb{
		ID:             uuid.New(),
		Embedding:      []float32{0.1, 0.2},
		EntityKeywords: []string{"kafka", "offset"},
	}
	asm := New(store, fixedGraphLoader{}, pathfinder.New(), nil)
	def := models.AgentDefinition{
		ContextSources: models.ContextSources{
			Semantic: &models.SemanticConfig{Enabled: true, Schemas: []string{"knowledge.v1"}, Limit: 2},
		},
	}

	seeds, err := asm.collectSeeds(context.Background(), def, trigger, []string{"kafka", "offset"}, "")
	require.NoError(t, err)
	assert.Contains(t, seeds, k1.ID)
	assert.NotContains(t, seeds, wrongSchema.ID)
}

// TestResolveTokenBudget_DefaultsOnMissingConfig covers the "model catalog
// miss" fallback (§7) when llm_config_id isn't even set.
func TestResolveTokenBudget_DefaultsOnMissingConfig(t *testing.T) {
	store := newFakeStore()
	asm := New(store, fixedGraphLoader{}, pathfinder.New(), nil)

	budget := asm.resolveTokenBudget(context.Background(), models.AgentDefinition{})
	assert.Equal(t, models.DefaultContextBudget, budget)
}

// TestResolveTokenBudget_CatalogHitWinsOverExplicitBudget pins the §4.7
// step 5 ordering: a model catalog hit takes priority over the config's own
// explicit context_budget field.
func TestResolveTokenBudget_CatalogHitWinsOverExplicitBudget(t *testing.T) {
	store := newFakeStore()

	catalog, err := json.Marshal([]models.ModelCatalogEntry{{Model: "gpt-5", ContextLength: 100000}})
	require.NoError(t, err)
	store.put(models.Breadcrumb{SchemaName: modelCatalogSchema, Context: catalog, CreatedAt: time.Now()})

	cfgPayload, err := json.Marshal(models.LLMConfig{
		DefaultModel:  "gpt-5",
		ContextBudget: &models.ContextBudget{Tokens: 1234},
	})
	require.NoError(t, err)
	cfg := store.put(models.Breadcrumb{SchemaName: "llm.config.v1", Context: cfgPayload})
	cfgIDStr := cfg.ID.String()

	asm := New(store, fixedGraphLoader{}, pathfinder.New(), nil)
	budget := asm.resolveTokenBudget(context.Background(), models.AgentDefinition{LLMConfigID: &cfgIDStr})

	assert.Equal(t, int(100000*models.ContextLengthFraction), budget)
}
