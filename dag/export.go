package dag

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// NodeStyle controls how WriteDOT draws a node.
type NodeStyle struct {
	Label string
	Shape string
}

// Labeler customises the DOT output. Either function may be nil.
type Labeler[E Edge] struct {
	Node func(n *Node) NodeStyle
	Edge func(e E) string
}

// WriteDOT writes the graph in Graphviz DOT form. Live nodes are filled,
// culled nodes are grey; edges between live nodes are solid, the rest dashed.
// The output is a debugging aid and not a stable format.
func (g *Graph[E]) WriteDOT(w io.Writer, name string, l Labeler[E]) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "digraph %s {\n", quote(name))
	bw.WriteString("\trankdir=LR;\n")
	bw.WriteString("\tnode [fontname=\"Helvetica\", style=filled];\n")

	for _, n := range g.nodes {
		style := NodeStyle{Label: n.Name, Shape: "box"}
		if l.Node != nil {
			style = l.Node(n)
		}
		if style.Shape == "" {
			style.Shape = "box"
		}
		fill := "lightskyblue"
		switch {
		case n.Culled():
			fill = "lightgrey"
		case n.Target:
			fill = "gold"
		}
		fmt.Fprintf(bw, "\tn%d [label=%s, shape=%s, fillcolor=%s];\n",
			n.ID, quote(fmt.Sprintf("%s\\nrefs: %d", style.Label, n.RefCount)), style.Shape, fill)
	}

	for _, e := range g.edges {
		attrs := "style=solid"
		if !g.IsEdgeValid(e) {
			attrs = "style=dashed, color=grey"
		}
		if l.Edge != nil {
			if label := l.Edge(e); label != "" {
				attrs += ", label=" + quote(label)
			}
		}
		fmt.Fprintf(bw, "\tn%d -> n%d [%s];\n", e.From(), e.To(), attrs)
	}

	bw.WriteString("}\n")
	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
