// Package render produces Graphviz DOT output from lxload JSONL.
package render

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// dotEscape escapes a string for use in DOT HTML labels.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// dotID creates a safe DOT identifier from a function name.
func dotID(name string) string {
	var b strings.Builder
	b.WriteString("n_")
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		} else {
			fmt.Fprintf(&b, "_%04x", c)
		}
	}
	return b.String()
}

// isStub reports whether name is a placeholder for an unnamed function.
func isStub(name string) bool {
	return strings.HasPrefix(name, "sub_")
}

// truncLabel shortens a label to maxLen, appending "..." if truncated.
func truncLabel(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// graphHeader opens a left-to-right digraph styled by t.
func graphHeader(b *strings.Builder, name, title string, t Theme) {
	fmt.Fprintf(b, "digraph %s {\n", name)
	b.WriteString("  rankdir=LR;\n  compound=true;\n  splines=true;\n  nodesep=0.4;\n  ranksep=0.6;\n")
	fmt.Fprintf(b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	b.WriteString("  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee];\n")
	if title != "" {
		b.WriteString("  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')
}

// writeClusters writes one node per name, grouped into a dotted cluster per
// memory block. A block holding a single function is left unclustered.
func writeClusters(b *strings.Builder, names []string, blockOf map[string]string, t Theme, node func(indent, name string)) {
	byBlock := make(map[string][]string)
	var loose []string
	for _, name := range names {
		if blk := blockOf[name]; blk != "" {
			byBlock[blk] = append(byBlock[blk], name)
		} else {
			loose = append(loose, name)
		}
	}
	for _, blk := range slices.Sorted(maps.Keys(byBlock)) {
		members := byBlock[blk]
		if len(members) < 2 {
			loose = append(loose, members...)
			continue
		}
		slices.Sort(members)
		fmt.Fprintf(b, "  subgraph cluster_%s {\n", dotID(blk))
		fmt.Fprintf(b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n", t.ClusterLabel, dotEscape(blk))
		fmt.Fprintf(b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, name := range members {
			node("    ", name)
		}
		b.WriteString("  }\n")
	}
	slices.Sort(loose)
	for _, name := range loose {
		node("  ", name)
	}
	b.WriteByte('\n')
}
