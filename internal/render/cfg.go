package render

import (
	"fmt"
	"strings"

	"lxload/internal/disasm"
)

// maxBlockLines caps the instructions shown per block; longer blocks keep
// their head and tail.
const maxBlockLines = 12

// blockLabel renders a basic block as an HTML-like DOT label: an address
// header, then one line per instruction with calls in bold.
func blockLabel(cfg *disasm.FuncCFG, blk *disasm.BasicBlock) string {
	end := min(blk.End, len(cfg.Insts))
	if blk.Start >= end {
		return ""
	}
	first, last := &cfg.Insts[blk.Start], &cfg.Insts[end-1]

	lines := []string{fmt.Sprintf("<b>bb%d</b>  %08x-%08x", blk.ID, first.Addr, last.End())}
	var body []string
	for i := blk.Start; i < end; i++ {
		inst := &cfg.Insts[i]
		line := dotEscape(fmt.Sprintf("%08x  %s", inst.Addr, inst.Text))
		if strings.HasPrefix(inst.Mnemonic, "call") {
			line = "<b>" + line + "</b>"
		}
		body = append(body, line)
	}
	if len(body) > maxBlockLines {
		keep := maxBlockLines / 2
		elided := fmt.Sprintf("... (%d more)", len(body)-2*keep)
		body = append(append(body[:keep:keep], elided), body[len(body)-keep:]...)
	}
	lines = append(lines, body...)
	return strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"
}

// CFGDOT renders a per-function basic-block CFG as DOT.
// The entry block is outlined, terminal blocks are shaded and conditional
// edges are labeled T (taken) and F (fallthrough).
func CFGDOT(cfg disasm.FuncCFG, t Theme) string {
	if len(cfg.Blocks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("digraph cfg {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.4;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q, margin=\"0.08,0.04\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee];\n")
	fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
	fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
		t.TextColor, dotEscape(cfg.Name))
	b.WriteByte('\n')

	for i := range cfg.Blocks {
		blk := &cfg.Blocks[i]
		var attrs []string
		if blk.IsEntry {
			attrs = append(attrs, "penwidth=1.5", fmt.Sprintf("color=%q", t.EntryBorder))
		}
		if blk.IsTerm {
			attrs = append(attrs, fmt.Sprintf("fillcolor=%q", t.StubFill))
		}
		extra := ""
		if len(attrs) > 0 {
			extra = ", " + strings.Join(attrs, ", ")
		}
		fmt.Fprintf(&b, "  bb%d [label=<%s>%s];\n", blk.ID, blockLabel(&cfg, blk), extra)
	}
	b.WriteByte('\n')

	for _, blk := range cfg.Blocks {
		for _, s := range blk.Succs {
			color, label := t.EdgeDirect, ""
			switch s.Cond {
			case "T":
				color, label = t.CondTrue, "T"
			case "F":
				color, label = t.CondFalse, "F"
			}
			fmt.Fprintf(&b, "  bb%d -> bb%d [color=%q", blk.ID, s.BlockID, color)
			if label != "" {
				fmt.Fprintf(&b, ", label=<<font point-size=\"7\" color=\"%s\">%s</font>>", color, label)
			}
			b.WriteString("];\n")
		}
	}

	b.WriteString("}\n")
	return b.String()
}
