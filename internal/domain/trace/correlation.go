package trace

import (
	"context"
	"sort"

	"github.com/dachid/flowscope/internal/shared/types"
	"github.com/dachid/flowscope/internal/storage"
)

// maxAncestorDepth bounds parent-chain walks against malformed data.
// Valid traces can never cycle, but the correlator reads whatever the
// store returns.
const maxAncestorDepth = 256

// Correlator reconstructs cross-trace relationship graphs on demand.
// Read-only: no broadcast, no persistence side effects.
type Correlator struct {
	store storage.Store
}

// NewCorrelator creates a correlator over the given store
func NewCorrelator(store storage.Store) *Correlator {
	return &Correlator{store: store}
}

// Correlate builds the parent/child/sibling graph for the named traces.
// Unknown IDs are silently skipped. Ancestors outside the requested set
// are pulled in as boundary nodes: their parent edges are followed so
// the chain back to the root is visible, but they contribute no sibling
// edges.
func (c *Correlator) Correlate(ctx context.Context, traceIDs []string) (*types.CorrelationGraph, error) {
	requested, err := c.store.LoadTracesByIDs(ctx, traceIDs)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]types.Trace, len(requested))
	edges := make(map[string]map[string]bool)
	addEdge := func(from, to string) {
		if edges[from] == nil {
			edges[from] = make(map[string]bool)
		}
		edges[from][to] = true
	}

	for _, t := range requested {
		nodes[t.ID] = t
	}

	// Walk parent chains, loading ancestors the caller did not name.
	for _, t := range requested {
		current := t
		for depth := 0; current.ParentID != nil && depth < maxAncestorDepth; depth++ {
			parentID := *current.ParentID
			addEdge(parentID, current.ID)

			if _, known := nodes[parentID]; known {
				break
			}
			parents, err := c.store.LoadTracesByIDs(ctx, []string{parentID})
			if err != nil {
				return nil, err
			}
			if len(parents) == 0 {
				// Dangling parent reference: keep the edge, the node
				// set stays best-effort.
				break
			}
			nodes[parentID] = parents[0]
			current = parents[0]
		}
	}

	// Sibling links among the requested traces sharing a session.
	bySession := make(map[string][]string)
	requestedSet := make(map[string]bool, len(requested))
	for _, t := range requested {
		requestedSet[t.ID] = true
		bySession[t.SessionID] = append(bySession[t.SessionID], t.ID)
	}
	for _, siblings := range bySession {
		for _, a := range siblings {
			for _, b := range siblings {
				if a != b {
					addEdge(a, b)
				}
			}
		}
	}

	graph := &types.CorrelationGraph{
		Nodes: make([]string, 0, len(nodes)),
		Edges: make(map[string][]string, len(edges)),
	}
	languages := make(map[string]bool)
	frameworks := make(map[string]bool)

	for nodeID, t := range nodes {
		graph.Nodes = append(graph.Nodes, nodeID)
		if lang, ok := t.MetaString(types.MetaLanguage); ok {
			languages[lang] = true
		}
		if fw, ok := t.MetaString(types.MetaFramework); ok {
			frameworks[fw] = true
		}
	}

	for from, targets := range edges {
		for to := range targets {
			graph.Edges[from] = append(graph.Edges[from], to)
		}
		sort.Strings(graph.Edges[from])
	}

	sort.Strings(graph.Nodes)
	graph.Languages = sortedKeys(languages)
	graph.Frameworks = sortedKeys(frameworks)
	return graph, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
