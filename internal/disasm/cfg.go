package disasm

import "slices"

// BasicBlock is a straight-line run of instructions entered only at Start.
type BasicBlock struct {
	ID      int
	Start   int    // first index into FuncCFG.Insts
	End     int    // one past the last index
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with RET, an indirect jump or a jump out of the function
}

// Succ is an intra-function control transfer.
type Succ struct {
	BlockID int
	Cond    string // "" unconditional, "T" taken, "F" fallthrough
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// cfgBuilder holds the per-function state while blocks are formed.
type cfgBuilder struct {
	insts   []Inst
	branch  []*BranchInfo // decoded terminator per instruction, nil for plain ones
	byAddr  map[uint64]int
	blockAt map[int]int // leader index → block ID
}

func newCFGBuilder(insts []Inst) *cfgBuilder {
	b := &cfgBuilder{
		insts:  insts,
		branch: make([]*BranchInfo, len(insts)),
		byAddr: make(map[uint64]int, len(insts)),
	}
	for i := range insts {
		b.byAddr[insts[i].Addr] = i
		b.branch[i] = DecodeBranch(&insts[i])
	}
	return b
}

// adjacent reports whether insts[i+1] starts where insts[i] ends.
func (b *cfgBuilder) adjacent(i int) bool {
	return i+1 < len(b.insts) && b.insts[i+1].Addr == b.insts[i].End()
}

// local returns the instruction index of a direct branch target inside
// the function.
func (b *cfgBuilder) local(bi *BranchInfo) (int, bool) {
	if bi.IsRet || bi.Indirect {
		return 0, false
	}
	idx, ok := b.byAddr[bi.Target]
	return idx, ok
}

// leaders returns the sorted indices that start a block: the entry, every
// local branch target, and anything after a branch or an address gap.
func (b *cfgBuilder) leaders() []int {
	marked := map[int]bool{0: true}
	for i := range b.insts {
		if i+1 < len(b.insts) && (b.branch[i] != nil || !b.adjacent(i)) {
			marked[i+1] = true
		}
		if bi := b.branch[i]; bi != nil {
			if idx, ok := b.local(bi); ok {
				marked[idx] = true
			}
		}
	}
	out := make([]int, 0, len(marked))
	for idx := range marked {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// next returns the block reached by falling off the end of blk.
func (b *cfgBuilder) next(blk *BasicBlock) (int, bool) {
	if !b.adjacent(blk.End - 1) {
		return 0, false
	}
	id, ok := b.blockAt[blk.End]
	return id, ok
}

// link fills in successors and terminal flags for blk.
func (b *cfgBuilder) link(blk *BasicBlock) {
	bi := b.branch[blk.End-1]
	switch {
	case bi == nil:
		if id, ok := b.next(blk); ok {
			blk.Succs = append(blk.Succs, Succ{BlockID: id})
		} else {
			blk.IsTerm = true
		}
		return
	case bi.IsRet || bi.Indirect:
		blk.IsTerm = true
		return
	}

	target := -1
	if idx, ok := b.local(bi); ok {
		if id, ok := b.blockAt[idx]; ok {
			target = id
		}
	}

	if !bi.Cond {
		if target < 0 {
			blk.IsTerm = true // jumps out of the function
			return
		}
		blk.Succs = append(blk.Succs, Succ{BlockID: target})
		return
	}
	if target >= 0 {
		blk.Succs = append(blk.Succs, Succ{BlockID: target, Cond: "T"})
	}
	if id, ok := b.next(blk); ok {
		blk.Succs = append(blk.Succs, Succ{BlockID: id, Cond: "F"})
	}
}

// BuildCFG splits an address-sorted instruction stream into basic blocks
// and links them. The stream may have gaps, as recursive descent leaves
// them; no block falls through a gap.
func BuildCFG(name string, insts []Inst) FuncCFG {
	cfg := FuncCFG{Name: name, Insts: insts}
	if len(insts) == 0 {
		return cfg
	}

	b := newCFGBuilder(insts)
	starts := b.leaders()
	b.blockAt = make(map[int]int, len(starts))
	cfg.Blocks = make([]BasicBlock, len(starts))
	for id, start := range starts {
		end := len(insts)
		if id+1 < len(starts) {
			end = starts[id+1]
		}
		cfg.Blocks[id] = BasicBlock{ID: id, Start: start, End: end, IsEntry: start == 0}
		b.blockAt[start] = id
	}
	for i := range cfg.Blocks {
		b.link(&cfg.Blocks[i])
	}
	return cfg
}
