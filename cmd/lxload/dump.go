package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"lxload/internal/lx"
	"lxload/internal/output"
	"lxload/internal/program"
)

func cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	lf := addLoadFlags(fs)
	outDir := fs.String("out", "", "output directory")

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

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return errors.Wrap(err, "mkdir")
	}

	info := output.Summarize(m, lx.DefaultFlagTable)
	info.File = filepath.Base(*lf.in)
	if err := output.WriteModuleJSON(*outDir, info); err != nil {
		return errors.Wrap(err, "write module.json")
	}
	fmt.Fprintf(os.Stderr, "wrote %s/module.json\n", *outDir)

	// Map the images the way an analysis host would, so overlapping
	// objects are reported rather than silently written.
	prog, errs := program.FromModule(m)
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	var symbols []output.SymbolEntry
	for _, b := range prog.Blocks {
		if err := output.WriteObjectBin(*outDir, b.Name, b.Data); err != nil {
			return errors.Wrapf(err, "write %s.bin", b.Name)
		}
		fmt.Fprintf(os.Stderr, "wrote %s/objects/%s.bin (%s, %d bytes)\n",
			*outDir, b.Name, b.Perm, len(b.Data))
		symbols = append(symbols, output.SymbolEntry{
			Address: b.Addr,
			Name:    b.Name,
			Size:    uint64(len(b.Data)),
		})
	}
	for _, f := range prog.Functions {
		symbols = append(symbols, output.SymbolEntry{Address: f.Addr, Name: f.Name})
	}
	if err := output.WriteSymbolsJSON(*outDir, symbols); err != nil {
		return errors.Wrap(err, "write symbols.json")
	}
	fmt.Fprintf(os.Stderr, "wrote %s/symbols.json (%d entries)\n", *outDir, len(symbols))

	if err := output.WriteDiagnosticsJSON(*outDir, m.Diags); err != nil {
		return errors.Wrap(err, "write diagnostics.json")
	}
	if len(m.Diags) > 0 {
		fmt.Fprintf(os.Stderr, "\ndiagnostics: %d issues\n", len(m.Diags))
		for _, d := range m.Diags {
			fmt.Fprintf(os.Stderr, "  %s\n", d)
		}
	}
	return nil
}
