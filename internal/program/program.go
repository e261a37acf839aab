// Package program holds the address space built from a decoded module:
// named memory blocks, entry points and functions.
package program

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"lxload/internal/lx"
)

var (
	ErrOverlap   = errors.New("program: block overlaps an existing block")
	ErrEmpty     = errors.New("program: block has no data")
	ErrUnmapped  = errors.New("program: address not mapped")
	ErrDuplicate = errors.New("program: duplicate name")
)

// A Block is a named, contiguous region of the address space.
type Block struct {
	Name string
	Addr uint64
	Data []byte
	Perm lx.Perm
}

// End returns the address one past the block.
func (b *Block) End() uint64 { return b.Addr + uint64(len(b.Data)) }

// Contains reports whether addr falls inside the block.
func (b *Block) Contains(addr uint64) bool {
	return addr >= b.Addr && addr < b.End()
}

func (b *Block) String() string {
	return fmt.Sprintf("%-8s 0x%08x-0x%08x %s", b.Name, b.Addr, b.End(), b.Perm)
}

// A Function is a named code address.
type Function struct {
	Name string
	Addr uint64
}

// Program is an address space. Blocks are kept sorted by address and never
// overlap.
type Program struct {
	Blocks    []*Block
	Entries   []uint64
	Functions []Function
}

// New returns an empty program.
func New() *Program {
	return &Program{}
}

// CreateBlock maps data at addr under name. It fails if the block is empty,
// if the name is taken, or if any byte of it is already mapped.
func (p *Program) CreateBlock(name string, addr uint64, data []byte, perm lx.Perm) (*Block, error) {
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrEmpty, "%s at 0x%x", name, addr)
	}
	nb := &Block{Name: name, Addr: addr, Data: data, Perm: perm}
	if nb.End() < addr {
		return nil, errors.Errorf("program: %s at 0x%x wraps the address space", name, addr)
	}
	for _, b := range p.Blocks {
		if b.Name == name {
			return nil, errors.Wrapf(ErrDuplicate, "block %s", name)
		}
		if nb.Addr < b.End() && b.Addr < nb.End() {
			return nil, errors.Wrapf(ErrOverlap, "%s [0x%x, 0x%x) and %s [0x%x, 0x%x)",
				name, nb.Addr, nb.End(), b.Name, b.Addr, b.End())
		}
	}
	i := sort.Search(len(p.Blocks), func(i int) bool { return p.Blocks[i].Addr > addr })
	p.Blocks = append(p.Blocks, nil)
	copy(p.Blocks[i+1:], p.Blocks[i:])
	p.Blocks[i] = nb
	return nb, nil
}

// Block returns the block containing addr, or nil.
func (p *Program) Block(addr uint64) *Block {
	i := sort.Search(len(p.Blocks), func(i int) bool { return p.Blocks[i].End() > addr })
	if i < len(p.Blocks) && p.Blocks[i].Contains(addr) {
		return p.Blocks[i]
	}
	return nil
}

// BlockNamed returns the block called name, or nil.
func (p *Program) BlockNamed(name string) *Block {
	for _, b := range p.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Read returns up to n bytes starting at addr. The result is clamped to the
// end of the containing block and aliases its data.
func (p *Program) Read(addr uint64, n int) ([]byte, error) {
	b := p.Block(addr)
	if b == nil {
		return nil, errors.Wrapf(ErrUnmapped, "read at 0x%x", addr)
	}
	off := addr - b.Addr
	end := off + uint64(n)
	if n < 0 || end > uint64(len(b.Data)) {
		end = uint64(len(b.Data))
	}
	return b.Data[off:end], nil
}

// Bytes returns the data from addr to the end of its block, or nil when
// addr is unmapped.
func (p *Program) Bytes(addr uint64) []byte {
	buf, err := p.Read(addr, -1)
	if err != nil {
		return nil
	}
	return buf
}

// AddEntryPoint records addr as an entry point. Duplicates are ignored.
func (p *Program) AddEntryPoint(addr uint64) {
	for _, e := range p.Entries {
		if e == addr {
			return
		}
	}
	p.Entries = append(p.Entries, addr)
}

// CreateFunction names the code at addr. The address must be mapped.
func (p *Program) CreateFunction(addr uint64, name string) error {
	if p.Block(addr) == nil {
		return errors.Wrapf(ErrUnmapped, "function %s at 0x%x", name, addr)
	}
	for _, f := range p.Functions {
		if f.Name == name {
			return errors.Wrapf(ErrDuplicate, "function %s", name)
		}
	}
	p.Functions = append(p.Functions, Function{Name: name, Addr: addr})
	return nil
}

// FunctionAt returns the name of the function starting at addr.
func (p *Program) FunctionAt(addr uint64) (string, bool) {
	for _, f := range p.Functions {
		if f.Addr == addr {
			return f.Name, true
		}
	}
	return "", false
}

// Resolve returns the name and base of the block holding addr. It has the
// shape of a disasm.Resolver.
func (p *Program) Resolve(addr uint64) (string, uint64, bool) {
	b := p.Block(addr)
	if b == nil {
		return "", 0, false
	}
	return b.Name, b.Addr, true
}

// EntryName is the function name given to the module entry point.
const EntryName = "_entry"

// FromModule maps every image of m as a block and records the module entry
// point. Failures are collected per object; the program holds whatever
// could be mapped.
func FromModule(m *lx.Module) (*Program, []error) {
	p := New()
	var errs []error
	for _, f := range m.Failed {
		errs = append(errs, errors.Wrapf(f.Err, "object %d not loaded", f.Object+1))
	}
	for i := range m.Images {
		img := &m.Images[i]
		if _, err := p.CreateBlock(img.Name(), uint64(img.Base), img.Data, img.Perm); err != nil {
			errs = append(errs, errors.Wrapf(err, "object %d", img.Object+1))
		}
	}

	entry := uint64(m.Entry)
	p.AddEntryPoint(entry)
	if err := p.CreateFunction(entry, EntryName); err != nil {
		errs = append(errs, errors.Wrap(err, "entry point"))
	}
	return p, errs
}
