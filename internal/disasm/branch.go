package disasm

import "golang.org/x/arch/x86/x86asm"

// x86 control transfer classification. These functions identify basic-block
// terminators and extract branch targets.

// BranchInfo describes a decoded branch instruction.
type BranchInfo struct {
	Target   uint64 // absolute target address (0 if RET or indirect)
	Cond     bool   // true if conditional (has fallthrough)
	IsRet    bool   // true if RET, IRET, HLT or UD2: no successor
	Indirect bool   // true if the target is in a register or memory
}

// condJumps are the conditional relative branches, including the loop and
// counter-test forms.
var condJumps = map[x86asm.Op]bool{
	x86asm.JA: true, x86asm.JAE: true, x86asm.JB: true, x86asm.JBE: true,
	x86asm.JE: true, x86asm.JNE: true, x86asm.JG: true, x86asm.JGE: true,
	x86asm.JL: true, x86asm.JLE: true, x86asm.JO: true, x86asm.JNO: true,
	x86asm.JP: true, x86asm.JNP: true, x86asm.JS: true, x86asm.JNS: true,
	x86asm.JCXZ: true, x86asm.JECXZ: true,
	x86asm.LOOP: true, x86asm.LOOPE: true, x86asm.LOOPNE: true,
}

// relTarget returns the absolute target of a relative branch at pc.
// Targets wrap at 32 bits, as they do on the CPU.
func relTarget(inst *Inst) (uint64, bool) {
	rel, ok := inst.Dec.Args[0].(x86asm.Rel)
	if !ok {
		return 0, false
	}
	return uint64(uint32(int64(inst.End()) + int64(rel))), true
}

// DecodeBranch classifies inst. Returns nil if the instruction is not a
// jump or return. Calls are not branches: they return to the next
// instruction.
func DecodeBranch(inst *Inst) *BranchInfo {
	switch op := inst.Dec.Op; {
	case op == x86asm.RET, op == x86asm.LRET, op == x86asm.IRET, op == x86asm.IRETD,
		op == x86asm.HLT, op == x86asm.UD2:
		return &BranchInfo{IsRet: true}

	case op == x86asm.JMP:
		if t, ok := relTarget(inst); ok {
			return &BranchInfo{Target: t}
		}
		return &BranchInfo{Indirect: true}

	case op == x86asm.LJMP:
		return &BranchInfo{Indirect: true}

	case condJumps[op]:
		t, ok := relTarget(inst)
		if !ok {
			return nil
		}
		return &BranchInfo{Target: t, Cond: true}
	}
	return nil
}

// IsBranchTerminator returns true if the instruction terminates a basic block.
// This includes all jumps and returns but NOT CALL.
func IsBranchTerminator(inst *Inst) bool {
	return DecodeBranch(inst) != nil
}
