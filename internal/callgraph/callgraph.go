// Package callgraph converts disassembled functions into lattice graphs.
package callgraph

import (
	"github.com/zboralski/lattice"
	"lxload/internal/disasm"
)

// FuncInfo holds the data needed to build call graph and CFG for one function.
type FuncInfo struct {
	Name      string
	Insts     []disasm.Inst
	CallEdges []disasm.CallEdge
}

// Callee returns the graph name for the target of e. Direct targets without
// a symbol get a sub_<addr> placeholder; unresolved indirect calls are named
// by their operand. Returns "" when nothing identifies the target.
func Callee(e disasm.CallEdge) string {
	switch {
	case e.TargetName != "":
		return e.TargetName
	case e.TargetPC != 0:
		return disasm.SubName(e.TargetPC)
	case e.Operand != "":
		return "[" + e.Operand + "]"
	}
	return ""
}

// BuildCallGraph constructs a lattice.Graph from disassembled functions.
// Each function becomes a node. Each identifiable call edge becomes an edge.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, e := range f.CallEdges {
			callee := Callee(e)
			if callee == "" {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: callee,
			})
		}
	}
	g.Dedup()
	return g
}
