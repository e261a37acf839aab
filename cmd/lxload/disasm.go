package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"lxload/internal/callgraph"
	"lxload/internal/disasm"
	"lxload/internal/output"
	"lxload/internal/program"
)

// regWindow is how many instructions a MOV r32, imm32 stays live for
// register call resolution.
const regWindow = 8

// funcEntry is a function discovered from the entry point.
type funcEntry struct {
	Name  string
	Addr  uint64
	Depth int
}

// walkFunctions discovers functions breadth-first from the program entry
// points, following direct calls, resolved register calls and jumps that
// leave a function. Targets outside every block are not followed.
// maxDepth < 0 means no depth limit; limit 0 means no function limit.
func walkFunctions(prog *program.Program, maxDepth, limit, maxSteps int) []funcEntry {
	seen := make(map[uint64]bool)
	var queue []funcEntry
	for _, addr := range prog.Entries {
		name, ok := prog.FunctionAt(addr)
		if !ok {
			name = disasm.SubName(addr)
		}
		seen[addr] = true
		queue = append(queue, funcEntry{Name: name, Addr: addr})
	}

	var out []funcEntry
	for len(queue) > 0 && (limit == 0 || len(out) < limit) {
		f := queue[0]
		queue = queue[1:]
		out = append(out, f)
		if maxDepth >= 0 && f.Depth >= maxDepth {
			continue
		}

		insts := disasm.Function(prog, f.Addr, disasm.Options{MaxSteps: maxSteps})
		edges := append(disasm.ExtractCallEdges(insts, nil, regWindow), disasm.TailJumps(insts, nil)...)
		for _, e := range edges {
			t := e.TargetPC
			if t == 0 || seen[t] || prog.Block(t) == nil {
				continue
			}
			seen[t] = true
			queue = append(queue, funcEntry{Name: disasm.SubName(t), Addr: t, Depth: f.Depth + 1})
		}
	}
	return out
}

// edgeRecord converts a call edge for call_edges.jsonl.
func edgeRecord(from string, e disasm.CallEdge) disasm.CallEdgeRecord {
	rec := disasm.CallEdgeRecord{
		FromFunc: from,
		FromPC:   fmt.Sprintf("0x%x", e.FromPC),
		Kind:     e.Kind,
		Operand:  e.Operand,
		Via:      e.Via,
	}
	if e.TargetPC != 0 {
		rec.Target = e.TargetName
		if rec.Target == "" {
			rec.Target = fmt.Sprintf("0x%x", e.TargetPC)
		}
	}
	return rec
}

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	lf := addLoadFlags(fs)
	outDir := fs.String("out", "", "output directory")
	depth := fs.Int("depth", 16, "call depth to follow from the entry point (-1 = unlimited)")
	limit := fs.Int("limit", 0, "max functions to disassemble (0 = all)")
	graph := fs.Bool("graph", false, "build lattice call graph and CFG (writes DOT files)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" {
		return errors.New("--out is required")
	}

	m, err := lf.load()
	if err != nil {
		return err
	}
	opts := lf.options()

	prog, errs := program.FromModule(m)
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if prog.Block(uint64(m.Entry)) == nil {
		return errors.Errorf("entry point 0x%x is not mapped", m.Entry)
	}
	for _, b := range prog.Blocks {
		fmt.Fprintf(os.Stderr, "block %s\n", b)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return errors.Wrap(err, "mkdir output")
	}

	// Discover functions first so every call site can be named.
	funcs := walkFunctions(prog, *depth, *limit, opts.EffectiveMaxSteps())
	for _, f := range funcs[1:] {
		if err := prog.CreateFunction(f.Addr, f.Name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	fmt.Fprintf(os.Stderr, "discovered %d functions from entry 0x%08x\n", len(funcs), m.Entry)

	lookup := disasm.SymbolLookup(prog.FunctionAt)
	ann := disasm.RefAnnotator(prog.Resolve)
	dopts := disasm.Options{MaxSteps: opts.EffectiveMaxSteps(), Symbols: lookup}

	funcsOut, err := output.CreateJSONL(filepath.Join(*outDir, "functions.jsonl"))
	if err != nil {
		return err
	}
	defer funcsOut.Close()
	edgesOut, err := output.CreateJSONL(filepath.Join(*outDir, "call_edges.jsonl"))
	if err != nil {
		return err
	}
	defer edgesOut.Close()

	var symbols []output.SymbolEntry
	var funcInfos []callgraph.FuncInfo
	var cfgCount, resolved, indirect int
	for _, f := range funcs {
		insts := disasm.Function(prog, f.Addr, dopts)
		if len(insts) == 0 {
			continue
		}
		if err := output.WriteASM(*outDir, f.Name, insts, lookup, ann); err != nil {
			return errors.Wrapf(err, "write asm %s", f.Name)
		}

		edges := append(disasm.ExtractCallEdges(insts, lookup, regWindow), disasm.TailJumps(insts, lookup)...)
		for _, e := range edges {
			if err := edgesOut.Write(edgeRecord(f.Name, e)); err != nil {
				return err
			}
			if e.Kind == disasm.KindCallReg || e.Kind == disasm.KindCallMem {
				indirect++
				if e.Via != "" {
					resolved++
				}
			}
		}

		lcfg, nblocks := callgraph.BuildFuncCFG(f.Name, insts, edges)
		var block string
		if b := prog.Block(f.Addr); b != nil {
			block = b.Name
		}
		rec := disasm.FuncRecord{
			PC:     fmt.Sprintf("0x%x", f.Addr),
			Size:   disasm.Size(insts),
			Name:   f.Name,
			Block:  block,
			Insts:  len(insts),
			Blocks: nblocks,
			Calls:  len(edges),
			Depth:  f.Depth,
		}
		if err := funcsOut.Write(rec); err != nil {
			return err
		}
		symbols = append(symbols, output.SymbolEntry{Address: f.Addr, Name: f.Name, Size: uint64(rec.Size)})

		if *graph {
			if nblocks > 1 {
				g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}
				if err := output.WriteDOT(filepath.Join(*outDir, "cfg"), f.Name, render.DOTCFG(g, f.Name)); err != nil {
					return errors.Wrapf(err, "write cfg %s", f.Name)
				}
				cfgCount++
			}
			funcInfos = append(funcInfos, callgraph.FuncInfo{Name: f.Name, CallEdges: edges})
		}
	}

	if err := output.WriteSymbolsJSON(*outDir, symbols); err != nil {
		return errors.Wrap(err, "write symbols.json")
	}
	fmt.Fprintf(os.Stderr, "wrote %d function disassemblies to %s\n", len(symbols), filepath.Join(*outDir, "asm"))
	fmt.Fprintf(os.Stderr, "wrote %s (%d functions)\n", funcsOut.Path(), funcsOut.Count())
	fmt.Fprintf(os.Stderr, "wrote %s (%d edges, %d indirect: %d resolved)\n",
		edgesOut.Path(), edgesOut.Count(), indirect, resolved)

	if *graph && len(funcInfos) > 0 {
		cg := callgraph.BuildCallGraph(funcInfos)
		if err := output.WriteDOT(*outDir, "callgraph", render.DOT(cg, "callgraph")); err != nil {
			return errors.Wrap(err, "write callgraph.dot")
		}
		fmt.Fprintf(os.Stderr, "wrote %s/callgraph.dot (%d nodes, %d edges)\n",
			*outDir, len(cg.Nodes), len(cg.Edges))
		fmt.Fprintf(os.Stderr, "wrote %d per-function CFG DOTs to %s/cfg\n", cfgCount, *outDir)
	}

	return nil
}
