package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"lxload/internal/disasm"
	"lxload/internal/output"
	"lxload/internal/program"
	"lxload/internal/render"
)

func cmdRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	inDir := fs.String("in", "", "input directory (disasm output)")
	modPath := fs.String("module", "", "module the disasm output came from (enables --cfg)")
	maxNodes := fs.Int("max-nodes", 0, "max function nodes in callgraph (0 = all)")
	title := fs.String("title", "", "title for the callgraph (defaults to the directory name)")
	cfgFlag := fs.Bool("cfg", false, "generate per-function CFGs for reachable functions")
	svg := fs.Bool("svg", false, "run graphviz dot to produce SVGs")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inDir == "" {
		return errors.New("--in is required")
	}
	if *title == "" {
		*title = filepath.Base(filepath.Clean(*inDir))
	}

	funcs, err := output.ReadJSONL[disasm.FuncRecord](filepath.Join(*inDir, "functions.jsonl"))
	if err != nil {
		return errors.Wrap(err, "read functions.jsonl")
	}
	fmt.Fprintf(os.Stderr, "read %d functions\n", len(funcs))

	edges, err := output.ReadJSONL[disasm.CallEdgeRecord](filepath.Join(*inDir, "call_edges.jsonl"))
	if err != nil {
		return errors.Wrap(err, "read call_edges.jsonl")
	}
	fmt.Fprintf(os.Stderr, "read %d call edges\n", len(edges))

	renderDir := filepath.Join(*inDir, "render")
	if err := os.MkdirAll(renderDir, 0755); err != nil {
		return errors.Wrap(err, "mkdir render")
	}

	stats := render.ComputeStats(funcs, edges)
	entryPoints := render.FindEntryPoints(funcs, edges)
	reachable := render.ReachableSet(entryPoints, edges)
	fmt.Fprintf(os.Stderr, "entry points: %d, reachable functions: %d / %d\n",
		len(entryPoints), len(reachable), len(funcs))
	fmt.Fprintf(os.Stderr, "edges: %d direct, %d indirect (%d resolved), %d blocks\n",
		stats.DirectEdges, stats.IndirectEdges, stats.IndirectResolved, stats.UniqueBlocks)
	for _, c := range stats.TopCallees {
		if c.Count < 2 {
			break
		}
		fmt.Fprintf(os.Stderr, "  %4d  %s\n", c.Count, c.Name)
	}

	docs := []struct{ name, dot string }{
		{"callgraph", render.CallgraphDOT(funcs, edges, *title, render.NASA, *maxNodes)},
		{"reachable", render.ReachabilityDOT(funcs, edges, reachable, entryPoints, *title+" (reachable)", render.NASA)},
	}
	for _, d := range docs {
		if err := output.WriteDOT(renderDir, d.name, d.dot); err != nil {
			return errors.Wrapf(err, "write %s.dot", d.name)
		}
		dotPath := filepath.Join(renderDir, d.name+".dot")
		fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", dotPath, len(d.dot))
		if *svg {
			if err := runDot(dotPath, filepath.Join(renderDir, d.name+".svg"), "svg"); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %s SVG failed: %v\n", d.name, err)
			}
		}
	}

	if *cfgFlag {
		if *modPath == "" {
			fmt.Fprintf(os.Stderr, "warning: --cfg requires --module\n")
			return nil
		}
		lf := &loadFlags{in: modPath, strict: new(bool), maxSteps: new(int), maxBytes: new(int)}
		m, err := lf.load()
		if err != nil {
			return err
		}
		prog, _ := program.FromModule(m)
		n, err := generateCFGs(prog, funcs, reachable, filepath.Join(renderDir, "cfg"), *svg)
		if err != nil {
			return errors.Wrap(err, "generate CFGs")
		}
		fmt.Fprintf(os.Stderr, "generated %d CFGs in %s\n", n, filepath.Join(renderDir, "cfg"))
	}
	return nil
}

// generateCFGs re-decodes reachable functions from prog and writes themed
// CFG DOTs. Returns the number of CFGs generated.
func generateCFGs(prog *program.Program, funcs []disasm.FuncRecord, reachable map[string]bool, cfgDir string, genSVG bool) (int, error) {
	names := make(map[uint64]string, len(funcs))
	for _, f := range funcs {
		if pc, err := strconv.ParseUint(strings.TrimPrefix(f.PC, "0x"), 16, 64); err == nil {
			names[pc] = f.Name
		}
	}
	lookup := disasm.PlaceholderLookup(names)

	count := 0
	for pc, name := range names {
		if !reachable[name] {
			continue
		}
		insts := disasm.Function(prog, pc, disasm.Options{Symbols: lookup})
		cfg := disasm.BuildCFG(name, insts)
		if len(cfg.Blocks) < 2 {
			continue
		}
		if err := output.WriteDOT(cfgDir, name, render.CFGDOT(cfg, render.NASA)); err != nil {
			return count, err
		}
		if genSVG {
			dotPath := filepath.Join(cfgDir, name+".dot")
			if err := runDot(dotPath, filepath.Join(cfgDir, name+".svg"), "svg"); err != nil {
				fmt.Fprintf(os.Stderr, "  warning: CFG SVG failed for %s: %v\n", name, err)
			}
		}
		count++
	}
	return count, nil
}

// runDot invokes graphviz dot to produce the given format.
func runDot(dotPath, outPath, format string) error {
	cmd := exec.Command("dot", "-T"+format, "-o", outPath, dotPath)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
