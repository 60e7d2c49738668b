package visualize

// DotGenerator renders a pipeline graph in the Graphviz DOT language.
type DotGenerator struct{}

// Generate returns the DOT source of the graph.
func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}
