package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// MermaidGenerator generates Mermaid flowchart diagrams.
type MermaidGenerator struct {
	// Fenced wraps the flowchart in a markdown code block.
	Fenced bool
}

// Generate renders the graph as a left-to-right Mermaid flowchart.
func (m *MermaidGenerator) Generate(g *Graph) string {
	mermaid := dot.MermaidFlowchart(BuildDotGraph(g), dot.MermaidLeftToRight)
	if !m.Fenced {
		return mermaid
	}
	return fmt.Sprintf("```mermaid\n%s\n```\n", mermaid)
}

// Generator renders a graph.
type Generator interface {
	Generate(g *Graph) string
}

var (
	_ Generator = &DotGenerator{}
	_ Generator = &MermaidGenerator{}
)
