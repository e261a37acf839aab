package callgraph

import (
	"github.com/zboralski/lattice"
	"lxload/internal/disasm"
)

// BuildCFG converts every function into a lattice.FuncCFG.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{Funcs: make([]*lattice.FuncCFG, 0, len(funcs))}
	for _, f := range funcs {
		fn, _ := BuildFuncCFG(f.Name, f.Insts, f.CallEdges)
		cg.Funcs = append(cg.Funcs, fn)
	}
	return cg
}

// BuildFuncCFG builds the lattice CFG of one function. The block count is
// returned so callers can skip single-block functions.
func BuildFuncCFG(name string, insts []disasm.Inst, edges []disasm.CallEdge) (*lattice.FuncCFG, int) {
	dcfg := disasm.BuildCFG(name, insts)
	return latticeCFG(&dcfg, callSites(insts, edges)), len(dcfg.Blocks)
}

// callSites keys each call edge by the index of its instruction.
func callSites(insts []disasm.Inst, edges []disasm.CallEdge) map[int]lattice.CallSite {
	at := make(map[uint64]int, len(insts))
	for i := range insts {
		at[insts[i].Addr] = i
	}
	sites := make(map[int]lattice.CallSite, len(edges))
	for _, e := range edges {
		idx, ok := at[e.FromPC]
		if !ok {
			continue
		}
		callee := Callee(e)
		if callee == "" {
			callee = e.Kind
		}
		sites[idx] = lattice.CallSite{Offset: idx, Callee: callee}
	}
	return sites
}

func latticeCFG(dcfg *disasm.FuncCFG, sites map[int]lattice.CallSite) *lattice.FuncCFG {
	out := &lattice.FuncCFG{Name: dcfg.Name}
	for _, blk := range dcfg.Blocks {
		lb := &lattice.BasicBlock{ID: blk.ID, Start: blk.Start, End: blk.End, Term: blk.IsTerm}
		for _, s := range blk.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: s.BlockID, Cond: s.Cond})
		}
		// Tail jumps end their block and are listed as calls.
		for idx := blk.Start; idx < blk.End; idx++ {
			if site, ok := sites[idx]; ok {
				lb.Calls = append(lb.Calls, site)
			}
		}
		out.Blocks = append(out.Blocks, lb)
	}
	return out
}
