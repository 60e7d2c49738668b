package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// MermaidGenerator renders a pipeline graph as a Mermaid flowchart wrapped
// in a fenced markdown block, ready to paste into documentation.
type MermaidGenerator struct{}

// Generate converts the DOT form of the graph into a left-to-right Mermaid
// flowchart.
func (m *MermaidGenerator) Generate(g *Graph) string {
	flowchart := dot.MermaidFlowchart(BuildDotGraph(g), dot.MermaidLeftToRight)
	return fmt.Sprintf("```mermaid\n%s\n```\n", flowchart)
}
