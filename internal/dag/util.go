package dag

// Roots returns the nodes without an incoming edge.
func (g *Graph[T]) Roots() []string {
	indeg := g.indegrees()
	roots := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if indeg[n] == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Sort returns the nodes in topological order, ties broken by insertion order.
func (g *Graph[T]) Sort() []string {
	indeg := g.indegrees()
	ret := make([]string, 0, len(g.nodes))
	queue := g.Roots()
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		ret = append(ret, n)
		for _, m := range g.edges[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	return ret
}

func (g *Graph[T]) indegrees() map[string]int {
	indeg := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, m := range g.edges[n] {
			indeg[m]++
		}
	}
	return indeg
}
