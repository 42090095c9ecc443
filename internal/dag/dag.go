// Package dag implements a small directed acyclic graph with labelled nodes that carry a payload.
// Nodes and the edges leaving a node are kept in insertion order, so that every traversal is
// deterministic.
package dag

// Graph is a DAG of nodes identified by unique labels.
type Graph[T any] struct {
	nodes   []string
	byLabel map[string]int
	payload map[string]T
	edges   map[string][]string
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		byLabel: map[string]int{},
		payload: map[string]T{},
		edges:   map[string][]string{},
	}
}

// AddNode adds a node. It returns false and leaves the graph unchanged if the label exists.
func (g *Graph[T]) AddNode(label string, v T) bool {
	if _, ok := g.byLabel[label]; ok {
		return false
	}
	g.byLabel[label] = len(g.nodes)
	g.nodes = append(g.nodes, label)
	g.payload[label] = v
	return true
}

func (g *Graph[T]) HasNode(label string) bool {
	_, ok := g.byLabel[label]
	return ok
}

// Node returns the payload of a node.
func (g *Graph[T]) Node(label string) (T, bool) {
	v, ok := g.payload[label]
	return v, ok
}

// Nodes returns the node labels in insertion order.
func (g *Graph[T]) Nodes() []string { return append([]string{}, g.nodes...) }

// AddEdge adds an edge between existing nodes. Duplicate edges are ignored.
func (g *Graph[T]) AddEdge(from, to string) {
	if !g.HasNode(from) || !g.HasNode(to) || g.HasEdge(from, to) {
		return
	}
	g.edges[from] = append(g.edges[from], to)
}

func (g *Graph[T]) HasEdge(from, to string) bool {
	for _, e := range g.edges[from] {
		if e == to {
			return true
		}
	}
	return false
}

// Edges returns the heads of the edges leaving a node, in insertion order.
func (g *Graph[T]) Edges(from string) []string { return append([]string{}, g.edges[from]...) }
