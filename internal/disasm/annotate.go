package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation. Receives the full Inst for access
// to both the decoded operands and the address.
type Annotator func(inst Inst) string

// Resolver names the region holding addr, returning the region name and
// its base address.
type Resolver func(addr uint64) (name string, base uint64, ok bool)

// absoluteRef returns the address an instruction refers to directly: an
// absolute memory operand (no base or index register) or a 32-bit
// immediate.
func absoluteRef(inst Inst) (uint64, bool) {
	for _, a := range inst.Dec.Args {
		switch a := a.(type) {
		case nil:
			return 0, false
		case x86asm.Mem:
			if a.Base == 0 && a.Index == 0 && a.Segment == 0 {
				return uint64(uint32(a.Disp)), true
			}
		case x86asm.Imm:
			if inst.Dec.DataSize == 32 {
				return uint64(uint32(a)), true
			}
		}
	}
	return 0, false
}

// RefAnnotator annotates instructions whose absolute memory operand or
// immediate falls inside a mapped region, as "NAME+0xoff". Relative branch
// targets are left to the symbol lookup.
func RefAnnotator(resolve Resolver) Annotator {
	return func(inst Inst) string {
		if !inst.Valid() {
			return ""
		}
		addr, ok := absoluteRef(inst)
		if !ok || addr == 0 {
			return ""
		}
		name, base, ok := resolve(addr)
		if !ok {
			return ""
		}
		if addr == base {
			return name
		}
		return fmt.Sprintf("%s+0x%x", name, addr-base)
	}
}
