package render

import (
	"fmt"
	"sort"
	"strings"

	"lxload/internal/disasm"
)

// Provenance categories derived from CallEdgeRecord.Kind and Via.
const (
	ProvDirect     = "direct"
	ProvTail       = "tail"
	ProvRegister   = "register"
	ProvMemory     = "memory"
	ProvFar        = "far"
	ProvUnresolved = "unresolved"
)

// ClassifyEdgeProv returns the provenance category for a call edge.
func ClassifyEdgeProv(e disasm.CallEdgeRecord) string {
	switch e.Kind {
	case disasm.KindCall:
		return ProvDirect
	case disasm.KindTailJump:
		return ProvTail
	case disasm.KindCallMem:
		return ProvMemory
	case disasm.KindCallFar:
		return ProvFar
	case disasm.KindCallReg:
		if e.Via != "" && e.Target != "" {
			return ProvRegister
		}
	}
	return ProvUnresolved
}

// followable reports whether e names a function the disassembler can reach:
// direct calls, tail jumps and register calls with a tracked constant.
func followable(e disasm.CallEdgeRecord) bool {
	if e.Target == "" {
		return false
	}
	switch ClassifyEdgeProv(e) {
	case ProvDirect, ProvTail, ProvRegister:
		return true
	}
	return false
}

// edgeTarget returns the node an edge points at. Unresolved indirect calls
// are grouped by operand.
func edgeTarget(e disasm.CallEdgeRecord) string {
	if followable(e) {
		return e.Target
	}
	switch {
	case e.Operand != "":
		return "[" + e.Operand + "]"
	case e.Target != "":
		return e.Target
	}
	return "unresolved_" + e.Kind
}

// edgeColor returns the DOT color for an edge provenance category.
func edgeColor(prov string, t Theme) string {
	switch prov {
	case ProvDirect:
		return t.EdgeDirect
	case ProvTail:
		return t.EdgeTail
	case ProvRegister:
		return t.EdgeRegister
	case ProvMemory:
		return t.EdgeMemory
	case ProvFar:
		return t.EdgeFar
	case ProvUnresolved:
		return t.EdgeUnresolved
	default:
		return t.EdgeDirect
	}
}

// edgeStyle returns dot style attributes for provenance.
func edgeStyle(prov string) string {
	switch prov {
	case ProvTail, ProvMemory:
		return "dotted"
	case ProvUnresolved, ProvFar:
		return "dashed"
	default:
		return "solid"
	}
}

// CallgraphDOT renders a callgraph from functions and call edges as DOT.
// Functions are clustered by the memory block holding their entry.
// External targets (unexplored functions, indirect operands) are shown as
// plaintext nodes. maxNodes limits the number of function nodes rendered
// (0 = all).
func CallgraphDOT(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, title string, t Theme, maxNodes int) string {
	funcSet := make(map[string]bool, len(funcs))
	for _, f := range funcs {
		funcSet[f.Name] = true
	}

	// Deduplicate edges: caller→callee→prov.
	type edgeKey struct {
		from, to, prov string
	}
	dedupEdges := make(map[edgeKey]int)
	for _, e := range edges {
		k := edgeKey{e.FromFunc, edgeTarget(e), ClassifyEdgeProv(e)}
		dedupEdges[k]++
	}

	// Identify referenced nodes (callers + callees).
	refNodes := make(map[string]bool)
	for k := range dedupEdges {
		refNodes[k.from] = true
		refNodes[k.to] = true
	}

	// Filter to functions that participate in edges. A lone entry function
	// still gets a node.
	var renderFuncs []disasm.FuncRecord
	for _, f := range funcs {
		if refNodes[f.Name] || len(funcs) == 1 {
			renderFuncs = append(renderFuncs, f)
		}
	}
	if maxNodes > 0 && len(renderFuncs) > maxNodes {
		renderFuncs = renderFuncs[:maxNodes]
		funcSet = make(map[string]bool, len(renderFuncs))
		for _, f := range renderFuncs {
			funcSet[f.Name] = true
		}
	}

	// Collect external nodes (targets not in funcSet, reachable from rendered funcs).
	externalNodes := make(map[string]bool)
	for k := range dedupEdges {
		if funcSet[k.from] && !funcSet[k.to] {
			externalNodes[k.to] = true
		}
	}

	names := make([]string, len(renderFuncs))
	blockOf := make(map[string]string, len(renderFuncs))
	for i, f := range renderFuncs {
		names[i] = f.Name
		blockOf[f.Name] = f.Block
	}

	var b strings.Builder
	graphHeader(&b, "callgraph", title, t)
	writeClusters(&b, names, blockOf, t, func(indent, name string) {
		if isStub(name) {
			fmt.Fprintf(&b, "%s%s [label=%q, fillcolor=%q];\n", indent, dotID(name), truncLabel(name, 50), t.StubFill)
		} else {
			fmt.Fprintf(&b, "%s%s [label=%q];\n", indent, dotID(name), truncLabel(name, 50))
		}
	})

	externals := make([]string, 0, len(externalNodes))
	for name := range externalNodes {
		externals = append(externals, name)
	}
	sort.Strings(externals)
	for _, name := range externals {
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
			dotID(name), truncLabel(name, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	keys := make([]edgeKey, 0, len(dedupEdges))
	for k := range dedupEdges {
		if funcSet[k.from] {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		if keys[i].to != keys[j].to {
			return keys[i].to < keys[j].to
		}
		return keys[i].prov < keys[j].prov
	})
	for _, k := range keys {
		count := dedupEdges[k]
		color := edgeColor(k.prov, t)
		attrs := fmt.Sprintf("color=%q, style=%q", color, edgeStyle(k.prov))
		if count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
			if count > 2 {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%dx</font>>", color, count)
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

// CallgraphStats computes summary statistics from edges.
type CallgraphStats struct {
	TotalFunctions   int
	TotalEdges       int
	DirectEdges      int // calls and tail jumps
	IndirectEdges    int
	IndirectResolved int // register calls with a tracked constant
	UniqueBlocks     int
	ProvCounts       map[string]int
	TopCallers       []NameCount // sorted desc
	TopCallees       []NameCount // sorted desc
	TopBlocks        []NameCount // sorted desc by function count
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string
	Count int
}

// ComputeStats computes callgraph statistics from JSONL data.
func ComputeStats(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord) CallgraphStats {
	stats := CallgraphStats{
		TotalFunctions: len(funcs),
		TotalEdges:     len(edges),
		ProvCounts:     make(map[string]int),
	}

	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)

	for _, e := range edges {
		prov := ClassifyEdgeProv(e)
		stats.ProvCounts[prov]++
		callerCount[e.FromFunc]++

		switch prov {
		case ProvDirect, ProvTail:
			stats.DirectEdges++
		default:
			stats.IndirectEdges++
			if prov == ProvRegister {
				stats.IndirectResolved++
			}
		}
		if followable(e) {
			calleeCount[e.Target]++
		}
	}

	blockCount := make(map[string]int)
	for _, f := range funcs {
		if f.Block != "" {
			blockCount[f.Block]++
		}
	}
	stats.UniqueBlocks = len(blockCount)

	stats.TopCallers = topNMap(callerCount, 20)
	stats.TopCallees = topNMap(calleeCount, 20)
	stats.TopBlocks = topNMap(blockCount, 30)
	return stats
}

// topNMap returns the top N entries from a map, sorted descending by count
// and then by name.
func topNMap(m map[string]int, n int) []NameCount {
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
