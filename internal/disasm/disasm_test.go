package disasm

import (
	"strings"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// code decodes a byte sequence at base.
func code(base uint64, b ...byte) []Inst {
	return Disassemble(b, Options{BaseAddr: base})
}

func TestDisassembleNOP(t *testing.T) {
	insts := code(0x1000, 0x90, 0x90)
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want 2", len(insts))
	}
	if insts[0].Addr != 0x1000 {
		t.Errorf("addr[0] = 0x%x, want 0x1000", insts[0].Addr)
	}
	if insts[1].Addr != 0x1001 {
		t.Errorf("addr[1] = 0x%x, want 0x1001", insts[1].Addr)
	}
	if !strings.Contains(strings.ToLower(insts[0].Text), "nop") {
		t.Errorf("expected NOP, got: %s", insts[0].Text)
	}
}

func TestDisassembleVariableLength(t *testing.T) {
	insts := code(0x1000,
		0xb8, 0x78, 0x56, 0x34, 0x12, // mov eax, 0x12345678
		0x31, 0xc0, // xor eax, eax
		0xc3, // ret
	)
	if len(insts) != 3 {
		t.Fatalf("got %d instructions, want 3", len(insts))
	}
	wantAddr := []uint64{0x1000, 0x1005, 0x1007}
	wantSize := []int{5, 2, 1}
	wantOp := []x86asm.Op{x86asm.MOV, x86asm.XOR, x86asm.RET}
	for i, inst := range insts {
		if inst.Addr != wantAddr[i] || inst.Size != wantSize[i] || inst.Dec.Op != wantOp[i] {
			t.Errorf("inst %d = %#x/%d %v, want %#x/%d %v",
				i, inst.Addr, inst.Size, inst.Dec.Op, wantAddr[i], wantSize[i], wantOp[i])
		}
		if len(inst.Raw) != inst.Size {
			t.Errorf("inst %d raw = % x", i, inst.Raw)
		}
	}
	if insts[0].Mnemonic != "mov" {
		t.Errorf("mnemonic = %q, want mov", insts[0].Mnemonic)
	}
}

func TestDisassembleMaxSteps(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = 0x90
	}
	insts := Disassemble(data, Options{MaxSteps: 10})
	if len(insts) != 10 {
		t.Fatalf("got %d instructions, want 10", len(insts))
	}
}

func TestDisassembleEmpty(t *testing.T) {
	insts := Disassemble(nil, Options{})
	if len(insts) != 0 {
		t.Fatalf("got %d instructions for nil data", len(insts))
	}
}

func TestDisassembleTruncated(t *testing.T) {
	// mov eax, imm32 cut short: every byte becomes .byte.
	insts := code(0x1000, 0xb8, 0x01)
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want 2", len(insts))
	}
	if insts[0].Valid() || insts[0].Mnemonic != ".byte" || insts[0].Size != 1 {
		t.Errorf("inst 0 = %+v, want .byte", insts[0])
	}
	if insts[0].Text != ".byte 0xb8" {
		t.Errorf("text = %q", insts[0].Text)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	// The decoder reports these as a one-byte instruction with no opcode.
	for _, src := range [][]byte{{0xb8, 0x01}, {0x0f}, {0x66}} {
		inst := Decode(src, 0x2000, nil)
		if inst.Valid() || inst.Mnemonic != ".byte" || inst.Size != 1 || len(inst.Raw) != 1 {
			t.Errorf("% x: got %+v, want .byte", src, inst)
		}
		if strings.Contains(inst.Text, "prefix") {
			t.Errorf("% x: text = %q", src, inst.Text)
		}
	}
}

func TestFormat(t *testing.T) {
	insts := code(0x1000, 0x90)
	syms := map[uint64]string{0x1000: "nop_func"}
	text := Format(insts, PlaceholderLookup(syms))
	if !strings.Contains(text, "0x00001000") {
		t.Errorf("missing address in output: %s", text)
	}
	if !strings.Contains(text, "90  ") {
		t.Errorf("missing raw bytes in output: %s", text)
	}
	if !strings.Contains(text, "<nop_func>") {
		t.Errorf("missing symbol in output: %s", text)
	}
}

func TestFormatCallTargetName(t *testing.T) {
	// call 0x1010 from 0x1000
	lookup := PlaceholderLookup(map[uint64]string{0x1010: "sub_00001010"})
	insts := Disassemble([]byte{0xe8, 0x0b, 0x00, 0x00, 0x00}, Options{BaseAddr: 0x1000, Symbols: lookup})
	if len(insts) != 1 {
		t.Fatalf("got %d instructions", len(insts))
	}
	if !strings.Contains(insts[0].Text, "sub_00001010") {
		t.Errorf("call text = %q, want target name", insts[0].Text)
	}
}

func TestFormatDeterministic(t *testing.T) {
	insts := code(0x2000, 0x55, 0x89, 0xe5, 0x90, 0x5d, 0xc3)
	out1 := Format(insts, nil)
	out2 := Format(insts, nil)
	if out1 != out2 {
		t.Error("non-deterministic output")
	}
	if n := strings.Count(out1, "\n"); n != len(insts) {
		t.Errorf("lines = %d, want %d", n, len(insts))
	}
}

func TestSubName(t *testing.T) {
	if got := SubName(0x10010); got != "sub_00010010" {
		t.Errorf("SubName = %q", got)
	}
}

func FuzzDisassemble(f *testing.F) {
	f.Add([]byte{0x90, 0xc3})
	f.Add([]byte{0xe8, 0x00, 0x00, 0x00, 0x00, 0xff, 0xd0})
	f.Add([]byte{0x0f})
	f.Fuzz(func(t *testing.T, data []byte) {
		insts := Disassemble(data, Options{BaseAddr: 0x10000, MaxSteps: 1000})
		total := 0
		for _, inst := range insts {
			if inst.Size <= 0 {
				t.Fatalf("instruction at 0x%x has size %d", inst.Addr, inst.Size)
			}
			total += inst.Size
		}
		if len(insts) < 1000 && total != len(data) {
			t.Fatalf("decoded %d of %d bytes", total, len(data))
		}
	})
}
