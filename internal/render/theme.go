package render

// Theme holds colors for callgraph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by provenance category.
	EdgeDirect     string // CALL rel32
	EdgeTail       string // JMP leaving the function
	EdgeRegister   string // CALL reg with a tracked constant
	EdgeMemory     string // CALL [mem]
	EdgeFar        string // far CALL
	EdgeUnresolved string // CALL reg with nothing known

	// CFG accents.
	EntryBorder string // entry block / entry point outline
	CondTrue    string // taken branch
	CondFalse   string // fallthrough branch

	// Node accents.
	StubFill     string // unnamed functions (sub_xxx) and terminal blocks
	ExternalText string // external / unresolved targets

	// Cluster styling.
	ClusterBorder string // subgraph cluster border
	ClusterLabel  string // subgraph cluster label text
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeDirect:     "#424242", // dark gray
	EdgeTail:       "#9E9E9E", // gray
	EdgeRegister:   "#00695C", // teal
	EdgeMemory:     "#E65100", // deep orange
	EdgeFar:        "#6A1B9A", // purple
	EdgeUnresolved: "#FC3D21", // NASA red

	EntryBorder: "#0B3D91", // NASA blue
	CondTrue:    "#0B3D91",
	CondFalse:   "#FC3D21",

	StubFill:     "#ECEFF1", // blue-gray 50
	ExternalText: "#9E9E9E",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}
