package fx

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// String implements fmt.Stringer, and pretty prints the graph, one node per
// line.
func (g *Graph) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Graph: %d nodes\n", len(g.nodes))
	for _, n := range g.nodes {
		w("\t%s\n", n)
	}
	return buf.String()
}

// String implements fmt.Stringer. Nodes print as
// "name = kind[target](args..., key=value...)", followed by the attached
// metadata, if any.
func (n *Node) String() string {
	parts := make([]string, 0, len(n.Args)+len(n.Kwargs))
	for _, arg := range n.Args {
		parts = append(parts, formatArg(arg))
	}
	for _, key := range slices.Sorted(maps.Keys(n.Kwargs)) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, formatArg(n.Kwargs[key])))
	}
	s := fmt.Sprintf("%s = %s[%s](%s)", n.Name, n.Kind, n.TargetName(), strings.Join(parts, ", "))
	if n.Meta != nil {
		s += fmt.Sprintf(" | meta=%v", n.Meta)
	}
	return s
}

func formatArg(v any) string {
	switch arg := v.(type) {
	case *Node:
		return "%" + arg.Name
	case []any:
		elems := make([]string, len(arg))
		for i, e := range arg {
			elems[i] = formatArg(e)
		}
		return "(" + strings.Join(elems, ", ") + ")"
	case string:
		return fmt.Sprintf("%q", arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}
