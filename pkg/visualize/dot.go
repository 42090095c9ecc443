package visualize

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

// Generate renders the graph in Graphviz DOT format.
func (d *DotGenerator) Generate(g *Graph) string { return BuildDotGraph(g).String() }
