// Package assembler implements C7: turning a trigger event into a published
// agent.context.v1 record. Grounded on
// original_source/.../retrieval/assembler.rs's ContextAssembler/execute_source
// shape (seed sources → dedupe → sort) and
// original_source/.../output/publisher.rs's upsert-by-tag-search, generalized
// to the source-spec/subgraph/token-budget contract of §4.7.
package assembler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/graphbuilder"
	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// recordStore is the slice of C1 the assembler needs. Declared locally
// (rather than depending on the concrete *breadcrumbstore.Gateway) so tests
// can substitute an in-memory fake.
type recordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Breadcrumb, error)
	GetLatest(ctx context.Context, schema, session string) (models.Breadcrumb, error)
	GetRecent(ctx context.Context, schema, session string, limit int) ([]models.Breadcrumb, error)
	GetByTag(ctx context.Context, tag string, limit int) ([]models.Breadcrumb, error)
	FindSimilarHybrid(ctx context.Context, queryVector []float32, queryKeywords []string, limit int, session string) ([]models.Breadcrumb, error)
	CreateContextRecord(ctx context.Context, rec models.Breadcrumb) (models.Breadcrumb, error)
	UpdateContextRecord(ctx context.Context, id uuid.UUID, expectedVersion int, title string, tags []string, payload json.RawMessage) (models.Breadcrumb, error)
}

// subgraphLoader is the slice of C4 the assembler needs.
type subgraphLoader interface {
	LoadSubgraph(ctx context.Context, seeds []uuid.UUID, radius int) (*graphbuilder.Graph, error)
}

// walker is the slice of C5 the assembler needs.
type walker interface {
	Find(graph *graphbuilder.Graph, seeds []uuid.UUID, tokenBudget int) []uuid.UUID
}

// Logf is satisfied by log/slog's Logger.Debug/Info et al partially applied,
// or any printf-shaped logger; kept minimal so the package doesn't force a
// specific logging library on its caller.
type Logf func(format string, args ...any)

// PublishNotifier receives every successfully published assembled-context
// record. Used to wire the optional dashboard push (SPEC_FULL.md); nil by
// default, set via SetPublishNotifier.
type PublishNotifier func(consumerID, session string, payload models.AssembledContext)

// Assembler runs the 8-step assembly contract (§4.7).
type Assembler struct {
	store  recordStore
	loader subgraphLoader
	finder walker
	logf   Logf

	// subgraphRadius is fixed at 2 per §4.7 step 4; kept as a field only so
	// tests can shrink it without touching production behavior.
	subgraphRadius int

	onPublish PublishNotifier
}

// New constructs an Assembler. logf may be nil, in which case log lines are
// discarded.
func New(store recordStore, loader subgraphLoader, finder walker, logf Logf) *Assembler {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Assembler{store: store, loader: loader, finder: finder, logf: logf, subgraphRadius: 2}
}

// SetPublishNotifier registers a callback invoked after every successful
// publish (create or update). Optional — the dashboard push feature is the
// only current caller.
func (a *Assembler) SetPublishNotifier(notifier PublishNotifier) {
	a.onPublish = notifier
}
