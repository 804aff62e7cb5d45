// Package graphbuilder implements C3 (edge builder) and C4 (graph loader):
// computing the four typed edge relationships between breadcrumbs and
// materializing bounded subgraphs for the path finder to walk. Grounded on
// original_source/.../graph/edge_builder.rs and graph/loader.rs, with the
// recursive-CTE idiom and pgxpool access pattern taken from
// MrWong99-glyphoxa/pkg/memory/postgres/knowledge_graph.go.
package graphbuilder

import (
	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

// Graph is an in-memory, undirected-for-traversal adjacency list over
// breadcrumbs and their typed edges (§4.4 step 5: "the loader treats edges
// as undirected for traversal"). No graph library appears anywhere in the
// retrieved pack — the original uses Rust's petgraph, which has no
// in-corpus Go equivalent — so this is a plain map-of-slices, matching the
// simple-container style glyphoxa itself uses for in-memory state.
type Graph struct {
	Nodes map[uuid.UUID]models.Breadcrumb
	edges map[uuid.UUID][]adjacency
}

type adjacency struct {
	other uuid.UUID
	edge  models.Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[uuid.UUID]models.Breadcrumb),
		edges: make(map[uuid.UUID][]adjacency),
	}
}

// AddNode registers a breadcrumb as a graph node, replacing any prior entry
// with the same id.
func (g *Graph) AddNode(bc models.Breadcrumb) {
	g.Nodes[bc.ID] = bc
}

// AddEdge registers e in both directions, since the loader exposes edges as
// undirected even though storage preserves the emitted direction (§4.3).
func (g *Graph) AddEdge(e models.Edge) {
	if _, ok := g.Nodes[e.FromID]; !ok {
		return
	}
	if _, ok := g.Nodes[e.ToID]; !ok {
		return
	}
	g.edges[e.FromID] = append(g.edges[e.FromID], adjacency{other: e.ToID, edge: e})
	g.edges[e.ToID] = append(g.edges[e.ToID], adjacency{other: e.FromID, edge: e})
}

// Neighbors returns the ids reachable from id in one hop, alongside the edge
// that connects them. Order matches insertion order (deterministic, as
// recorded by AddEdge call order) so callers relying on tie-break stability
// (§8 invariant on deterministic insertion-order tie-break) see a stable walk.
func (g *Graph) Neighbors(id uuid.UUID) []struct {
	ID   uuid.UUID
	Edge models.Edge
} {
	adj := g.edges[id]
	out := make([]struct {
		ID   uuid.UUID
		Edge models.Edge
	}, len(adj))
	for i, a := range adj {
		out[i] = struct {
			ID   uuid.UUID
			Edge models.Edge
		}{ID: a.other, Edge: a.edge}
	}
	return out
}

// NodeCount reports how many nodes are currently loaded.
func (g *Graph) NodeCount() int { return len(g.Nodes) }
