package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"lxload/internal/lx"
	"lxload/internal/lxfmt"
)

// loadFlags are the flags shared by every subcommand that decodes a module.
type loadFlags struct {
	in       *string
	strict   *bool
	maxSteps *int
	maxBytes *int
}

func addLoadFlags(fs *flag.FlagSet) *loadFlags {
	return &loadFlags{
		in:       fs.String("in", "", "path to the LE/LX module"),
		strict:   fs.Bool("strict", false, "fail on first object error"),
		maxSteps: fs.Int("max-steps", 0, "instruction decode cap"),
		maxBytes: fs.Int("max-bytes", 0, "cap on one object's memory image"),
	}
}

func (f *loadFlags) options() lxfmt.Options {
	opts := lxfmt.Options{
		Mode:     lxfmt.ModeBestEffort,
		MaxSteps: *f.maxSteps,
		MaxBytes: *f.maxBytes,
	}
	if *f.strict {
		opts.Mode = lxfmt.ModeStrict
	}
	return opts
}

// load decodes the module named by --in. Interrupts cancel the load
// between objects.
func (f *loadFlags) load() (*lx.Module, error) {
	if *f.in == "" {
		return nil, errors.New("--in is required")
	}
	file, err := os.Open(*f.in)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	if !lx.Supported(file, info.Size()) {
		return nil, errors.Errorf("%s: not an LE/LX module", *f.in)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m, err := lx.NewLoader(f.options()).Load(ctx, file, info.Size())
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}
	return m, nil
}

func printDiags(w io.Writer, diags []lxfmt.Diag) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintf(w, "\nDiagnostics (%d):\n", len(diags))
	for _, d := range diags {
		fmt.Fprintf(w, "  %s\n", d)
	}
}
