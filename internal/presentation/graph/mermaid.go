package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/dsl"
)

// Overlay holds the stage outcomes of a run to paint on the graph.
type Overlay struct {
	Status map[string]domain.StageStatus
}

// OverlayFromRun builds an overlay from the records of run.
func OverlayFromRun(run *domain.Run) *Overlay {
	o := &Overlay{Status: make(map[string]domain.StageStatus, len(run.Stages))}
	for _, rec := range run.Stages {
		o.Status[rec.Node] = rec.Status
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of g.
// Shapes:
// - inputnode/outputnode: ((Circle))
// - Mapped node: [[Subroutine]], annotated with the iterated input
// - Default: [Rectangle], annotated with the wrapped tool
// Parallel edges between two nodes share one arrow labelled with every port pair.
func GenerateMermaid(g *dsl.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	fmt.Fprintf(&sb, "    %s((\"%s\"))\n", dsl.InputNode, dsl.InputNode)
	for _, id := range g.Order {
		node := g.Nodes[id]
		safeID := sanitizeMermaidID(id)
		if node.Mapped() {
			fmt.Fprintf(&sb, "    %s[[\"%s <br/> map: %s\"]]\n", safeID, id, node.MapOver)
			continue
		}
		tool := node.Stage.Name()
		if tool == id {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", safeID, id)
		} else {
			fmt.Fprintf(&sb, "    %s[\"%s <br/> %s\"]\n", safeID, id, tool)
		}
	}
	fmt.Fprintf(&sb, "    %s((\"%s\"))\n", dsl.OutputNode, dsl.OutputNode)

	type pair struct{ from, to string }
	var order []pair
	labels := make(map[pair][]string)
	for _, e := range g.Edges {
		p := pair{e.From, e.To}
		if _, ok := labels[p]; !ok {
			order = append(order, p)
		}
		label := e.Output
		if e.Input != e.Output {
			label = e.Output + " → " + e.Input
		}
		labels[p] = append(labels[p], label)
	}
	for _, p := range order {
		label := strings.ReplaceAll(strings.Join(labels[p], ", "), "\"", "'")
		fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", sanitizeMermaidID(p.from), label, sanitizeMermaidID(p.to))
	}

	if overlay != nil && len(overlay.Status) > 0 {
		sb.WriteString("\n    %% Run overlay\n")
		// Force black text (color:#000) for contrast regardless of theme.
		sb.WriteString("    classDef succeeded fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef skipped fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4,color:#000;\n")
		for _, id := range g.Order {
			if status, ok := overlay.Status[id]; ok {
				fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(id), status)
			}
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
