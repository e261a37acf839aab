// Package disasm provides 32-bit x86 disassembly for LE/LX code objects.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Mode is the decoder operand size. LE/LX code objects run in 32-bit
// protected mode.
const Mode = 32

// Inst is a decoded x86 instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Raw      []byte
	Size     int
	Mnemonic string
	Operands string
	Text     string      // full disassembly line
	Dec      x86asm.Inst // decoded form; Op is 0 when the bytes did not decode
}

// Valid reports whether the instruction decoded.
func (i *Inst) Valid() bool { return i.Dec.Op != 0 }

// End returns the address of the next instruction.
func (i *Inst) End() uint64 { return i.Addr + uint64(i.Size) }

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64       // VA of the first byte in Data
	MaxSteps int          // maximum instructions to decode; 0 = 10M
	Symbols  SymbolLookup // optional symbol resolver
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// symname adapts a SymbolLookup to the x86asm syntax printers.
func symname(lookup SymbolLookup) x86asm.SymLookup {
	return func(addr uint64) (string, uint64) {
		if lookup != nil {
			if name, ok := lookup(addr); ok {
				return name, addr
			}
		}
		return "", 0
	}
}

// Decode decodes the single instruction at the start of src. Bytes that do
// not decode become a one-byte .byte pseudo-instruction.
func Decode(src []byte, addr uint64, lookup SymbolLookup) Inst {
	if len(src) == 0 {
		return Inst{Addr: addr}
	}
	dec, err := x86asm.Decode(src, Mode)
	if err != nil || dec.Len == 0 || dec.Op == 0 {
		text := fmt.Sprintf(".byte 0x%02x", src[0])
		return Inst{
			Addr:     addr,
			Raw:      src[:1],
			Size:     1,
			Mnemonic: ".byte",
			Operands: fmt.Sprintf("0x%02x", src[0]),
			Text:     text,
		}
	}

	text := x86asm.IntelSyntax(dec, addr, symname(lookup))
	// Split into mnemonic and operands.
	parts := strings.SplitN(text, " ", 2)
	inst := Inst{
		Addr:     addr,
		Raw:      src[:dec.Len],
		Size:     dec.Len,
		Mnemonic: parts[0],
		Text:     text,
		Dec:      dec,
	}
	if len(parts) > 1 {
		inst.Operands = parts[1]
	}
	return inst
}

// Disassemble decodes x86 instructions linearly from a byte region.
// Returns decoded instructions up to MaxSteps or end of data.
func Disassemble(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	var result []Inst
	for off := 0; off < len(data) && len(result) < maxSteps; {
		inst := Decode(data[off:], opts.BaseAddr+uint64(off), opts.Symbols)
		result = append(result, inst)
		off += inst.Size
	}
	return result
}

// Format renders a slice of instructions as stable text output.
// Each line: <addr>  <hex bytes>  <disasm>  ; <comments>
// Annotators are checked in order; first non-empty result is used.
func Format(insts []Inst, lookup SymbolLookup, annotators ...Annotator) string {
	var b strings.Builder
	for _, inst := range insts {
		// Address.
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		// Raw bytes, padded so the text column lines up for short instructions.
		var hex strings.Builder
		for i, c := range inst.Raw {
			if i > 0 {
				hex.WriteByte(' ')
			}
			fmt.Fprintf(&hex, "%02x", c)
		}
		fmt.Fprintf(&b, "%-24s  ", hex.String())
		// Disassembly.
		b.WriteString(inst.Text)
		// Symbol comment.
		commented := false
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
				commented = true
			}
		}
		// Operand annotators (block-relative addresses and the like).
		if !commented {
			for _, ann := range annotators {
				if s := ann(inst); s != "" {
					fmt.Fprintf(&b, "  ; %s", s)
					break
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// PlaceholderLookup returns a SymbolLookup over a fixed set of names, such as
// sub_<hexaddr> names for discovered function entry points.
func PlaceholderLookup(entryPoints map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		if name, ok := entryPoints[addr]; ok {
			return name, true
		}
		return "", false
	}
}

// SubName returns the placeholder name for an unnamed function at addr.
func SubName(addr uint64) string {
	return fmt.Sprintf("sub_%08x", addr)
}
