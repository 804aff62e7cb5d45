package models

import (
	"time"

	"github.com/google/uuid"
)

// EdgeType identifies the relationship class materialized by the edge
// builder. Values are stored as SMALLINT; keep the numbering stable since it
// is persisted.
type EdgeType int16

const (
	EdgeCausal     EdgeType = 0
	EdgeTemporal   EdgeType = 1
	EdgeTagRelated EdgeType = 2
	EdgeSemantic   EdgeType = 3
)

// String renders the edge type for logging.
func (t EdgeType) String() string {
	switch t {
	case EdgeCausal:
		return "causal"
	case EdgeTemporal:
		return "temporal"
	case EdgeTagRelated:
		return "tag_related"
	case EdgeSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// TraversalCost returns the per-type cost the path finder adds to a walk
// when crossing an edge of this type (§4.5). Causal/Temporal/TagRelated
// costs are fixed constants; Semantic cost is 1 minus the edge's own weight,
// so a near-duplicate (weight close to 1) costs almost nothing to cross.
func (t EdgeType) TraversalCost(weight float32) float32 {
	switch t {
	case EdgeCausal:
		return 0.1
	case EdgeTemporal:
		return 0.3
	case EdgeTagRelated:
		return 0.5
	case EdgeSemantic:
		return 1 - weight
	default:
		return 1
	}
}

// Edge is a directed relationship between two breadcrumbs. At most one edge
// exists per (FromID, ToID) pair — the edge builder upserts on conflict, and
// the graph loader/path finder treat the persisted direction as undirected.
type Edge struct {
	FromID uuid.UUID
	ToID   uuid.UUID
	Type   EdgeType
	Weight float32

	// Per-type diagnostic fields; only the one matching Type is populated.
	TimeDeltaSec   *int64
	SharedTagCount *int16
	Similarity     *float32

	CreatedAt time.Time
}
