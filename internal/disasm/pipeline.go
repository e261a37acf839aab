package disasm

// FuncRecord is one line in functions.jsonl.
type FuncRecord struct {
	PC     string `json:"pc"`
	Size   int    `json:"size"`
	Name   string `json:"name"`
	Block  string `json:"block,omitempty"` // memory block holding the entry
	Insts  int    `json:"insts"`
	Blocks int    `json:"blocks"` // basic blocks
	Calls  int    `json:"calls"`
	Depth  int    `json:"depth"` // call depth from the entry point
}

// CallEdgeRecord is one line in call_edges.jsonl.
type CallEdgeRecord struct {
	FromFunc string `json:"from_func"`
	FromPC   string `json:"from_pc"`
	Kind     string `json:"kind"`              // "call", "call_reg", "call_mem", "call_far" or "jmp"
	Target   string `json:"target,omitempty"`  // resolved name or "0x..."
	Operand  string `json:"operand,omitempty"` // register or memory operand for indirect calls
	Via      string `json:"via,omitempty"`     // provenance for resolved register calls
}
