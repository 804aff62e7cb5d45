// Package pathfinder implements C5, the Dijkstra-shaped budgeted walk over
// the subgraph C4 materializes. Grounded on
// original_source/.../retrieval/path_finder.rs's find_paths_token_aware,
// using container/heap for the priority queue (no heap/priority-queue
// library appears anywhere in the retrieved pack; see DESIGN.md).
package pathfinder

import (
	"container/heap"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/graphbuilder"
	"github.com/codeready-toolchain/contextengine/pkg/models"
)

const (
	// MaxDepth bounds how many hops the walk follows from any seed (§4.5).
	MaxDepth = 5
	// MaxResults bounds how many node ids a single Find call returns (§4.5).
	MaxResults = 50
)

// Finder runs the budgeted walk. It carries no mutable state — every Find
// call is independent — but is a type (rather than a bare function) to
// match the teacher corpus's convention of small stateless workers with a
// constructor, and to leave room for configurable depth/result caps later.
type Finder struct {
	maxDepth   int
	maxResults int
}

// New constructs a Finder using the spec's fixed depth/result caps.
func New() *Finder {
	return &Finder{maxDepth: MaxDepth, maxResults: MaxResults}
}

// pathItem is a priority-queue entry: lower cost pops first; among equal
// costs, lower seq (earlier insertion) pops first, giving the deterministic
// tie-break §4.5/§8 requires — something Rust's BinaryHeap does not
// guarantee on its own, so Go's container/heap needs the explicit seq field.
type pathItem struct {
	id    uuid.UUID
	cost  float32
	depth int
	seq   int
}

type pathQueue []pathItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].seq < q[j].seq
}
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(pathItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Find walks graph from seeds, accumulating node ids within tokenBudget,
// stopping at whichever of max-depth/max-results/token-budget triggers
// first (§4.5). A seed not present in graph is skipped when popped —
// load_subgraph's dangling-seed tolerance carries through here unchanged.
func (f *Finder) Find(graph *graphbuilder.Graph, seeds []uuid.UUID, tokenBudget int) []uuid.UUID {
	visited := make(map[uuid.UUID]struct{})
	var results []uuid.UUID
	tokenCount := 0
	seq := 0

	pq := &pathQueue{}
	heap.Init(pq)
	for _, s := range seeds {
		heap.Push(pq, pathItem{id: s, cost: 0, depth: 0, seq: seq})
		seq++
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pathItem)
		if _, ok := visited[item.id]; ok {
			continue
		}
		visited[item.id] = struct{}{}

		node, present := graph.Nodes[item.id]
		if !present {
			continue
		}

		nodeTokens := tokensForNode(node)
		if tokenCount+nodeTokens > tokenBudget && len(results) > 0 {
			break
		}
		tokenCount += nodeTokens
		results = append(results, item.id)

		if len(results) >= f.maxResults {
			break
		}
		if item.depth >= f.maxDepth {
			continue
		}

		for _, n := range graph.Neighbors(item.id) {
			if _, ok := visited[n.ID]; ok {
				continue
			}
			edgeCost := n.Edge.Type.TraversalCost(n.Edge.Weight)
			heap.Push(pq, pathItem{id: n.ID, cost: item.cost + edgeCost, depth: item.depth + 1, seq: seq})
			seq++
		}
	}

	return results
}

// tokensForNode implements §3's tokens(n) = len(canonical_json(n.context))/3.
// Canonicalization re-marshals through a generic map/slice walk so two byte-
// for-byte-different but semantically identical JSON payloads (re-ordered
// keys, incidental whitespace) cost the same number of tokens.
func tokensForNode(n models.Breadcrumb) int {
	canon, err := canonicalJSON(n.Context)
	if err != nil {
		return len(n.Context) / 3
	}
	return len(canon) / 3
}

// CausalChain follows only Causal edges from seed up to maxDepth hops,
// returning the distinct ids reached (seed included). Edges are followed in
// both directions, so the result holds the seed's causes and its effects
// alike. This supplements §4.5's budgeted walk with the original
// implementation's get_causal_chains helper (original_source/.../path_finder.rs)
// — useful for debug tooling that wants "what is causally linked to this"
// without the token-budget/multi-type machinery of Find.
func CausalChain(graph *graphbuilder.Graph, seed uuid.UUID, maxDepth int) []uuid.UUID {
	visited := map[uuid.UUID]struct{}{seed: {}}
	order := []uuid.UUID{seed}
	frontier := []uuid.UUID{seed}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, id := range frontier {
			for _, n := range graph.Neighbors(id) {
				if n.Edge.Type != models.EdgeCausal {
					continue
				}
				if _, ok := visited[n.ID]; ok {
					continue
				}
				visited[n.ID] = struct{}{}
				order = append(order, n.ID)
				next = append(next, n.ID)
			}
		}
		frontier = next
	}

	return order
}

func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
