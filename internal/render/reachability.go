package render

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"lxload/internal/disasm"
)

// FindEntryPoints returns functions that no followable edge targets.
// Unnamed functions (sub_*) are excluded unless nothing else qualifies.
func FindEntryPoints(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord) []string {
	targets := make(map[string]bool)
	for _, e := range edges {
		if followable(e) {
			targets[e.Target] = true
		}
	}

	var entries, stubs []string
	for _, f := range funcs {
		if targets[f.Name] {
			continue
		}
		if isStub(f.Name) {
			stubs = append(stubs, f.Name)
		} else {
			entries = append(entries, f.Name)
		}
	}
	if len(entries) == 0 {
		entries = stubs
	}
	sort.Strings(entries)
	return entries
}

// ReachableSet performs BFS from entry points following followable edges
// and returns the set of all reachable function names.
func ReachableSet(entryPoints []string, edges []disasm.CallEdgeRecord) map[string]bool {
	adj := make(map[string][]string)
	for _, e := range edges {
		if followable(e) {
			adj[e.FromFunc] = append(adj[e.FromFunc], e.Target)
		}
	}

	reachable := make(map[string]bool)
	queue := make([]string, 0, len(entryPoints))
	for _, ep := range entryPoints {
		if !reachable[ep] {
			reachable[ep] = true
			queue = append(queue, ep)
		}
	}

	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, target := range adj[fn] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// ReachabilityDOT renders a callgraph filtered to the reachable set.
// Entry points are highlighted. Only followable edges between reachable
// functions are shown.
func ReachabilityDOT(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, reachable map[string]bool, entryPoints []string, title string, t Theme) string {
	entrySet := make(map[string]bool, len(entryPoints))
	for _, ep := range entryPoints {
		entrySet[ep] = true
	}

	blockOf := make(map[string]string, len(funcs))
	for _, f := range funcs {
		blockOf[f.Name] = f.Block
	}

	type edgeKey struct{ from, to string }
	edgeCount := make(map[edgeKey]int)
	for _, e := range edges {
		if followable(e) && reachable[e.FromFunc] && reachable[e.Target] {
			edgeCount[edgeKey{e.FromFunc, e.Target}]++
		}
	}

	shown := make(map[string]bool)
	for k := range edgeCount {
		shown[k.from] = true
		shown[k.to] = true
	}
	for _, ep := range entryPoints {
		shown[ep] = true
	}

	var b strings.Builder
	graphHeader(&b, "reachable", title, t)
	writeClusters(&b, slices.Collect(maps.Keys(shown)), blockOf, t, func(indent, name string) {
		if entrySet[name] {
			fmt.Fprintf(&b, "%s%s [label=%q, penwidth=1.5, color=%q];\n", indent, dotID(name), truncLabel(name, 50), t.EntryBorder)
		} else {
			fmt.Fprintf(&b, "%s%s [label=%q];\n", indent, dotID(name), truncLabel(name, 50))
		}
	})

	keys := make([]edgeKey, 0, len(edgeCount))
	for k := range edgeCount {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	for _, k := range keys {
		attrs := fmt.Sprintf("color=%q", t.EdgeDirect)
		if count := edgeCount[k]; count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
