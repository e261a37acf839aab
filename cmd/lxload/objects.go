package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"lxload/internal/lx"
)

type pageRecord struct {
	Index    int    `json:"index"` // 1-based
	Encoding string `json:"encoding"`
	Offset   string `json:"offset"`
	Size     uint32 `json:"size"`
	Flags    uint16 `json:"flags"`
}

type objectRecord struct {
	Number      int          `json:"number"`
	Base        string       `json:"base"`
	VirtualSize uint32       `json:"virtual_size"`
	Flags       string       `json:"flags"`
	Perm        string       `json:"perm"`
	Label       string       `json:"label"`
	Pages       []pageRecord `json:"pages"`
}

func cmdObjects(args []string) error {
	fs := flag.NewFlagSet("objects", flag.ExitOnError)
	lf := addLoadFlags(fs)
	jsonOut := fs.Bool("json", false, "output JSONL instead of text")

	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := lf.load()
	if err != nil {
		return err
	}

	if !*jsonOut {
		w := bufio.NewWriter(os.Stdout)
		m.DumpText(w, "")
		printDiags(w, m.Diags)
		return w.Flush()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	flags := lx.DefaultFlagTable
	for i := range m.Objects {
		o := &m.Objects[i]
		rec := objectRecord{
			Number:      o.Number(),
			Base:        fmt.Sprintf("0x%08x", o.Base),
			VirtualSize: o.VirtualSize,
			Flags:       fmt.Sprintf("0x%04x", uint32(o.Flags)),
			Perm:        flags.Perm(o.Flags).String(),
			Label:       flags.Label(o.Flags),
			Pages:       []pageRecord{},
		}
		for _, p := range m.ObjectPages(o) {
			rec.Pages = append(rec.Pages, pageRecord{
				Index:    p.Index + 1,
				Encoding: p.Encoding.String(),
				Offset:   fmt.Sprintf("0x%x", p.Offset),
				Size:     p.Size,
				Flags:    p.Flags,
			})
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
