// Package visualize renders the operator graph of a relation as a diagram.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/liverel/internal/dag"
	"github.com/l7mp/liverel/pkg/relation"
	"github.com/l7mp/liverel/pkg/retain"
	"github.com/l7mp/liverel/pkg/util"
)

// NodeKind is the kind of a graph node: a relation kind or "signal".
type NodeKind string

const KindSignal NodeKind = "signal"

// Node is a relation or a signal in the graph.
type Node struct {
	ID    string
	Kind  NodeKind
	Label string
	// Retained is set for activated relations; Size is their materialized size.
	Retained bool
	Size     int
}

// Edge types.
const (
	EdgeOperand = "operand"
	EdgeTarget  = "target"
	EdgeSignal  = "signal"
)

// Graph is the visualization graph of a relation: edges point from operands to the operators
// consuming them.
type Graph struct {
	Name  string
	dag   *dag.Graph[Node]
	types map[[2]string]string
}

// BuildGraph walks the operands of a relation. Shared operands appear once.
func BuildGraph(r relation.Relation) *Graph {
	g := &Graph{Name: r.String(), dag: dag.New[Node](), types: map[[2]string]string{}}
	g.addRelation(r)
	return g
}

func nodeID(r retain.Retainer) string { return fmt.Sprintf("n%d", r.RetainerID()) }

func (g *Graph) addRelation(r relation.Relation) string {
	id := nodeID(r)
	if g.dag.HasNode(id) {
		return id
	}

	node := Node{ID: id, Kind: NodeKind(r.Kind()), Label: label(r), Retained: r.IsRetained()}
	if node.Retained {
		node.Size, _ = r.Len()
	}
	g.dag.AddNode(id, node)

	for _, op := range r.Operands() {
		g.addEdge(g.addRelation(op), id, EdgeOperand)
	}

	switch rel := r.(type) {
	case *relation.Selection:
		g.addSignals(rel.Predicate(), id)
	case *relation.InnerJoin:
		g.addSignals(rel.Predicate(), id)
	case *relation.Projection:
		g.addEdge(g.addRelation(rel.Target()), id, EdgeTarget)
	}

	return id
}

func (g *Graph) addSignals(p relation.Predicate, to string) {
	switch pred := p.(type) {
	case *relation.Comparison:
		for _, s := range pred.Signals() {
			id := nodeID(s)
			g.dag.AddNode(id, Node{ID: id, Kind: KindSignal, Label: s.String(), Retained: s.IsRetained()})
			g.addEdge(id, to, EdgeSignal)
		}
	case *relation.Junction:
		for _, c := range pred.Children() {
			g.addSignals(c, to)
		}
	case *relation.Negation:
		g.addSignals(pred.Operand(), to)
	}
}

func (g *Graph) addEdge(from, to, typ string) {
	g.dag.AddEdge(from, to)
	if _, ok := g.types[[2]string{from, to}]; !ok {
		g.types[[2]string{from, to}] = typ
	}
}

// Nodes returns the nodes in topological order: sources first.
func (g *Graph) Nodes() []Node {
	return util.Map(g.node, g.dag.Sort())
}

// Sources returns the nodes without inputs: sets and signals.
func (g *Graph) Sources() []Node {
	return util.Map(g.node, g.dag.Roots())
}

func (g *Graph) node(id string) Node {
	n, _ := g.dag.Node(id)
	return n
}

// Consumers returns the IDs of the operators consuming a node.
func (g *Graph) Consumers(id string) []string { return g.dag.Edges(id) }

// EdgeType returns the type of an edge.
func (g *Graph) EdgeType(from, to string) string { return g.types[[2]string{from, to}] }

func label(r relation.Relation) string {
	switch rel := r.(type) {
	case *relation.Set:
		return rel.Name()
	case *relation.Selection:
		return "σ " + rel.Predicate().String()
	case *relation.InnerJoin:
		return "⋈ " + rel.Predicate().String()
	case *relation.Projection:
		return "π " + rel.Target().Name()
	case *relation.Ordering:
		return "τ " + strings.Join(util.Map(func(t relation.OrderTerm) string { return t.String() }, rel.Terms()), ", ")
	default:
		return r.String()
	}
}

var fillColors = map[NodeKind]string{
	NodeKind(relation.KindSet):        "lightgreen",
	NodeKind(relation.KindSelection):  "lightblue",
	NodeKind(relation.KindInnerJoin):  "lightblue",
	NodeKind(relation.KindProjection): "lightblue",
	NodeKind(relation.KindOrdering):   "lightblue",
	KindSignal:                        "lightyellow",
}

// BuildDotGraph creates a dot.Graph from the visualization graph.
// This unified graph can then be rendered in different formats (DOT, Mermaid, etc.).
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	nodes := map[string]dot.Node{}
	for _, n := range g.Nodes() {
		label := n.Label
		if n.Retained && n.Kind != KindSignal {
			label += fmt.Sprintf(" [%d]", n.Size)
		}

		node := graph.Node(n.ID).
			Attr("label", label).
			Attr("style", "filled").
			Attr("fillcolor", fillColors[n.Kind]).
			Attr("fontname", "helvetica")
		switch n.Kind {
		case NodeKind(relation.KindSet):
			node.Attr("shape", "cylinder")
		case KindSignal:
			node.Attr("shape", "ellipse")
		default:
			node.Attr("shape", "box").Attr("style", "filled,rounded")
		}
		if n.Retained {
			node.Attr("penwidth", "2")
		}
		nodes[n.ID] = node
	}

	for _, n := range g.Nodes() {
		for _, to := range g.Consumers(n.ID) {
			edge := graph.Edge(nodes[n.ID], nodes[to])
			switch g.EdgeType(n.ID, to) {
			case EdgeSignal:
				edge.Attr("style", "dashed").Attr("color", "orange")
			case EdgeTarget:
				edge.Attr("style", "dotted").Attr("label", "onto").
					Attr("fontname", "helvetica").Attr("fontsize", "10")
			}
		}
	}

	return graph
}
