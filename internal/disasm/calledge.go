package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Call edge kinds.
const (
	KindCall     = "call"     // direct CALL rel32
	KindCallReg  = "call_reg" // CALL through a register
	KindCallMem  = "call_mem" // CALL through memory
	KindCallFar  = "call_far" // far CALL
	KindTailJump = "jmp"      // direct JMP leaving the function
)

// CallEdge represents a call site extracted from disassembly.
type CallEdge struct {
	FromPC     uint64 `json:"from_pc"`
	Kind       string `json:"kind"`
	TargetPC   uint64 `json:"target_pc,omitempty"` // resolved VA for direct calls
	TargetName string `json:"target_name,omitempty"`
	Operand    string `json:"operand,omitempty"` // register or memory operand for indirect calls
	Via        string `json:"via,omitempty"`     // provenance of a resolved register target
}

// RegDef records the last constant loaded into a register within the window.
type RegDef struct {
	Value uint64
	Known bool
	Age   int // instructions since definition
}

// RegTracker tracks constants loaded into the eight 32-bit general
// registers. Definitions older than the window are expired.
type RegTracker struct {
	defs [8]RegDef // EAX..EDI
	w    int
}

// NewRegTracker creates a tracker with the given window size.
func NewRegTracker(w int) *RegTracker {
	return &RegTracker{w: w}
}

// Reset clears all tracked definitions. Call between functions.
func (rt *RegTracker) Reset() {
	for i := range rt.defs {
		rt.defs[i] = RegDef{}
	}
}

// Tick ages all definitions by 1 and expires those beyond the window.
func (rt *RegTracker) Tick() {
	for i := range rt.defs {
		if rt.defs[i].Known {
			rt.defs[i].Age++
			if rt.defs[i].Age > rt.w {
				rt.defs[i] = RegDef{}
			}
		}
	}
}

// Define records that register r holds v.
func (rt *RegTracker) Define(r x86asm.Reg, v uint64) {
	if i := gpIndex(r); i >= 0 {
		rt.defs[i] = RegDef{Value: v, Known: true}
	}
}

// Lookup returns the constant held by r, if still tracked.
func (rt *RegTracker) Lookup(r x86asm.Reg) (uint64, bool) {
	i := gpIndex(r)
	if i < 0 || !rt.defs[i].Known {
		return 0, false
	}
	return rt.defs[i].Value, true
}

// Kill clears the definition for a register. Writes to a partial register
// clear the full register.
func (rt *RegTracker) Kill(r x86asm.Reg) {
	if i := gpIndex(r); i >= 0 {
		rt.defs[i] = RegDef{}
	}
}

// gpIndex maps a general register of any width to 0..7 (EAX..EDI), or -1.
func gpIndex(r x86asm.Reg) int {
	switch {
	case r >= x86asm.EAX && r <= x86asm.EDI:
		return int(r - x86asm.EAX)
	case r >= x86asm.AX && r <= x86asm.DI:
		return int(r - x86asm.AX)
	case r >= x86asm.AL && r <= x86asm.BL:
		return int(r - x86asm.AL)
	case r >= x86asm.AH && r <= x86asm.BH:
		return int(r - x86asm.AH)
	}
	return -1
}

// Registers a cdecl or watcall callee may clobber.
var callClobbers = []x86asm.Reg{x86asm.EAX, x86asm.ECX, x86asm.EDX}

// nonWriting ops read their first operand without changing it.
var nonWriting = map[x86asm.Op]bool{
	x86asm.CMP: true, x86asm.TEST: true, x86asm.PUSH: true,
	x86asm.CALL: true, x86asm.JMP: true, x86asm.BT: true,
}

// dstReg returns the register written by inst, if its first operand is one.
func dstReg(inst *Inst) (x86asm.Reg, bool) {
	if nonWriting[inst.Dec.Op] {
		return 0, false
	}
	r, ok := inst.Dec.Args[0].(x86asm.Reg)
	return r, ok
}

// movImm recognizes MOV r32, imm32 and returns the register and value.
func movImm(inst *Inst) (x86asm.Reg, uint64, bool) {
	if inst.Dec.Op != x86asm.MOV {
		return 0, 0, false
	}
	r, ok := inst.Dec.Args[0].(x86asm.Reg)
	if !ok || r < x86asm.EAX || r > x86asm.EDI {
		return 0, 0, false
	}
	imm, ok := inst.Dec.Args[1].(x86asm.Imm)
	if !ok {
		return 0, 0, false
	}
	return r, uint64(uint32(imm)), true
}

// ExtractCallEdges scans instructions for call sites. Direct calls resolve
// through the relative displacement. Register calls resolve when a
// MOV r32, imm32 within window w defined the register. symbols resolves
// target addresses to names.
func ExtractCallEdges(insts []Inst, symbols SymbolLookup, w int) []CallEdge {
	rt := NewRegTracker(w)
	var edges []CallEdge

	for i := range insts {
		inst := &insts[i]
		switch inst.Dec.Op {
		case x86asm.CALL:
			e := CallEdge{FromPC: inst.Addr}
			switch arg := inst.Dec.Args[0].(type) {
			case x86asm.Rel:
				e.Kind = KindCall
				e.TargetPC, _ = relTarget(inst)
			case x86asm.Reg:
				e.Kind = KindCallReg
				e.Operand = strings.ToLower(arg.String())
				if v, ok := rt.Lookup(arg); ok {
					e.TargetPC = v
					e.Via = fmt.Sprintf("mov %s, 0x%x", e.Operand, v)
				}
			default:
				e.Kind = KindCallMem
				e.Operand = inst.Operands
			}
			if e.TargetPC != 0 && symbols != nil {
				if name, found := symbols(e.TargetPC); found {
					e.TargetName = name
				}
			}
			edges = append(edges, e)
			for _, r := range callClobbers {
				rt.Kill(r)
			}
			rt.Tick()
			continue

		case x86asm.LCALL:
			edges = append(edges, CallEdge{FromPC: inst.Addr, Kind: KindCallFar, Operand: inst.Operands})
			rt.Reset()
			continue
		}

		if r, v, ok := movImm(inst); ok {
			rt.Tick()
			rt.Define(r, v)
			continue
		}

		// Any other write to a register invalidates what we knew about it.
		if r, ok := dstReg(inst); ok {
			rt.Kill(r)
		}
		if inst.Dec.Op == x86asm.XCHG {
			if r, ok := inst.Dec.Args[1].(x86asm.Reg); ok {
				rt.Kill(r)
			}
		}
		rt.Tick()
	}

	return edges
}

// TailJumps returns direct jumps in insts whose target is not one of the
// instructions themselves. Recursive descent follows every direct jump, so
// these only appear for jumps into unmapped memory or past MaxSteps.
func TailJumps(insts []Inst, symbols SymbolLookup) []CallEdge {
	own := make(map[uint64]bool, len(insts))
	for i := range insts {
		own[insts[i].Addr] = true
	}
	var edges []CallEdge
	for i := range insts {
		bi := DecodeBranch(&insts[i])
		if bi == nil || bi.Cond || bi.IsRet || bi.Indirect || own[bi.Target] {
			continue
		}
		e := CallEdge{FromPC: insts[i].Addr, Kind: KindTailJump, TargetPC: bi.Target}
		if symbols != nil {
			if name, ok := symbols(bi.Target); ok {
				e.TargetName = name
			}
		}
		edges = append(edges, e)
	}
	return edges
}
