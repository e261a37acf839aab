package disasm

import "sort"

// Memory supplies code bytes by address. Bytes returns the mapped bytes
// from addr to the end of its region, or nil when addr is unmapped.
type Memory interface {
	Bytes(addr uint64) []byte
}

// Function disassembles the function starting at entry by recursive
// descent: jumps are followed, calls are not, and each path stops at a
// return, an indirect jump, unmapped memory or an undecodable byte.
// Instructions are returned sorted by address. At most opts.MaxSteps
// instructions are decoded.
func Function(mem Memory, entry uint64, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	seen := make(map[uint64]bool)
	var insts []Inst
	work := []uint64{entry}

	for len(work) > 0 && len(insts) < maxSteps {
		pc := work[len(work)-1]
		work = work[:len(work)-1]

		for len(insts) < maxSteps && !seen[pc] {
			src := mem.Bytes(pc)
			if len(src) == 0 {
				break
			}
			seen[pc] = true
			inst := Decode(src, pc, opts.Symbols)
			insts = append(insts, inst)
			if !inst.Valid() {
				break
			}

			bi := DecodeBranch(&insts[len(insts)-1])
			if bi == nil {
				pc = inst.End()
				continue
			}
			if bi.IsRet || bi.Indirect {
				break
			}
			if bi.Cond {
				work = append(work, bi.Target)
				pc = inst.End()
				continue
			}
			pc = bi.Target
		}
	}

	sort.Slice(insts, func(i, j int) bool { return insts[i].Addr < insts[j].Addr })
	return insts
}

// Size returns the byte span covered by insts, from the first instruction
// to the end of the last.
func Size(insts []Inst) int {
	if len(insts) == 0 {
		return 0
	}
	return int(insts[len(insts)-1].End() - insts[0].Addr)
}
