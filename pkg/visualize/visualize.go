// Package visualize renders pipelines as diagrams.
package visualize

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/dpipe/dpipe/pkg/steps"
)

// Graph represents the visualization graph of a pipeline.
type Graph struct {
	Title string
	Nodes []StepNode
}

// StepNode represents a single step in the graph.
type StepNode struct {
	Name     string
	Detail   string
	Children []*Graph // sub-pipelines of join/append steps
}

// BuildGraph constructs a visualization graph from a pipeline.
func BuildGraph(title string, pipeline steps.Pipeline) *Graph {
	g := &Graph{
		Title: title,
		Nodes: make([]StepNode, 0, len(pipeline)),
	}

	for _, step := range pipeline {
		node := StepNode{
			Name:   step.Name(),
			Detail: stepDetail(step),
		}

		switch s := step.(type) {
		case *steps.JoinStep:
			node.Children = []*Graph{BuildGraph("right", s.RightPipeline)}
		case *steps.AppendStep:
			for i, sub := range s.Pipelines {
				node.Children = append(node.Children,
					BuildGraph(fmt.Sprintf("append %d", i+1), sub))
			}
		}

		g.Nodes = append(g.Nodes, node)
	}

	return g
}

// stepDetail picks the most salient field of a step for the node label.
func stepDetail(step steps.Step) string {
	switch s := step.(type) {
	case *steps.DomainStep:
		return s.Domain
	case *steps.FilterStep:
		return s.Condition.String()
	case *steps.AggregateStep:
		return fmt.Sprintf("on %v", s.On)
	case *steps.FormulaStep:
		return s.Formula
	case *steps.PivotStep:
		return s.ColumnToPivot
	case *steps.RankStep:
		return s.ValueCol
	case *steps.CumSumStep:
		return s.ValueColumn
	case *steps.EvolutionStep:
		return s.ValueCol
	case *steps.WaterfallStep:
		return s.ValueColumn
	case *steps.RollupStep:
		return fmt.Sprintf("%v", s.Hierarchy)
	case *steps.StatisticsStep:
		return s.Column
	default:
		return ""
	}
}

// BuildDotGraph creates a dot.Graph from the visualization graph. The
// unified graph can then be rendered in different formats (DOT, Mermaid,
// etc.).
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR") // Left to right layout.
	graph.Attr("label", g.Title)
	graph.Attr("labelloc", "t") // Label at top.
	graph.Attr("fontsize", "16")

	buildChain(graph, g, g.Title)

	return graph
}

// buildChain lays one pipeline out as a node chain, recursing into
// sub-pipelines as clusters.
func buildChain(parent *dot.Graph, g *Graph, prefix string) (first, last dot.Node, ok bool) {
	var prev dot.Node
	for i, n := range g.Nodes {
		label := n.Name
		if n.Detail != "" {
			label = fmt.Sprintf("%s: %s", n.Name, n.Detail)
		}

		node := parent.Node(fmt.Sprintf("%s/%d", prefix, i)).
			Attr("label", label).
			Attr("shape", "box").
			Attr("style", "filled,rounded").
			Attr("fillcolor", "lightblue").
			Attr("fontname", "helvetica")

		if i == 0 {
			first = node
		} else {
			parent.Edge(prev, node)
		}
		prev = node

		// sub-pipelines become clusters feeding the step node
		for j, child := range n.Children {
			cluster := parent.Subgraph(fmt.Sprintf("%s/%d.%d", prefix, i, j), dot.ClusterOption{})
			cluster.Attr("label", child.Title)
			cluster.Attr("style", "dashed")
			_, subLast, subOK := buildChain(cluster, child, fmt.Sprintf("%s/%d.%d", prefix, i, j))
			if subOK {
				parent.Edge(subLast, node).
					Attr("style", "dashed").
					Attr("fontname", "helvetica")
			}
		}
	}

	return first, prev, len(g.Nodes) > 0
}
