package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = cmdScan(os.Args[2:])
	case "objects":
		err = cmdObjects(os.Args[2:])
	case "dump":
		err = cmdDump(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "render":
		err = cmdRender(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `lxload: LE/LX linear executable loader

Usage:
  lxload scan    --in <path> [--json]             Classify and print header and objects
  lxload objects --in <path> [--json]             Object table with owned pages
  lxload dump    --in <path> --out <dir>          Write object images and module.json
  lxload disasm  --in <path> --out <dir>          Disassemble from the entry point
  lxload render  --in <dir> [--module <path>]     Render callgraph DOT from JSONL

Flags:
  --in <path>           Input module (LE, LX or MZ-stubbed)
  --out <dir>           Output directory
  --strict              Fail on the first object error
  --max-steps <n>       Instruction decode cap
  --max-bytes <n>       Cap on one object's memory image
  --graph               (disasm) Write lattice call graph and CFG DOTs
  --depth <n>           (disasm) Call depth to follow from the entry point
`)
}
