package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"lxload/internal/lx"
	"lxload/internal/output"
)

func cmdScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	lf := addLoadFlags(fs)
	jsonOut := fs.Bool("json", false, "output as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := lf.load()
	if err != nil {
		return err
	}
	info := output.Summarize(m, lx.DefaultFlagTable)
	info.File = *lf.in

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	if m.Embedded {
		fmt.Printf("%s module behind MZ stub, header at 0x%x\n", info.Kind, m.HeaderOffset)
	} else {
		fmt.Printf("standalone %s module\n", info.Kind)
	}
	fmt.Printf("  %s\n", m.Header)
	fmt.Printf("  CPU=%s  OS=%s  Type=%s\n", info.CPU, info.OS, info.ModuleType)
	fmt.Printf("  Entry=%s", info.Entry)
	if info.Stack != "" {
		fmt.Printf("  Stack=%s", info.Stack)
	}
	fmt.Println()

	fmt.Printf("\nObjects (%d):\n", len(info.Objects))
	for _, o := range info.Objects {
		name := o.Name
		if !o.Loaded {
			name = "-"
		}
		fmt.Printf("  %2d %-8s base=%s size=0x%08x %s flags=%s pages=%d\n",
			o.Number, name, o.Base, o.VirtualSize, o.Perm, o.Flags, o.Pages)
	}
	for _, f := range info.Failed {
		fmt.Printf("  object %d failed: %s\n", f.Object, f.Error)
	}

	printDiags(os.Stdout, m.Diags)
	return nil
}
