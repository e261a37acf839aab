package lx

// An ObjFlag is a set of flags for an object in an LE/LX executable.
type ObjFlag uint32

const (
	ObjR           ObjFlag = 0x0001 // readable
	ObjW           ObjFlag = 0x0002 // writable
	ObjX           ObjFlag = 0x0004 // executable
	ObjResource    ObjFlag = 0x0008 // resource object
	ObjDiscardable ObjFlag = 0x0010 // discardable
	ObjShared      ObjFlag = 0x0020 // shared between processes
	ObjPreload     ObjFlag = 0x0040 // has preload pages
	ObjInvalid     ObjFlag = 0x0080 // has invalid pages
	ObjZeroFill    ObjFlag = 0x0100 // pages are zero-filled
	ObjResident    ObjFlag = 0x0200 // resident, valid for VDDs and PDDs only
	ObjAlias1616   ObjFlag = 0x1000 // 16:16 alias required
	Obj32Bit       ObjFlag = 0x2000 // big/default bit setting
	ObjConforming  ObjFlag = 0x4000 // conforming for code
	ObjIOPL        ObjFlag = 0x8000 // I/O privilege level
)

// A FlagTable maps object attributes to bits in the object flags word.
// Decoding code only consults the table, so a layout difference between
// producers can be corrected here.
type FlagTable struct {
	Readable    ObjFlag
	Writable    ObjFlag
	Executable  ObjFlag
	Resource    ObjFlag
	Discardable ObjFlag
	Shared      ObjFlag
	Preload     ObjFlag
	Invalid     ObjFlag
}

// DefaultFlagTable is the bit layout used by both LE and LX modules.
var DefaultFlagTable = FlagTable{
	Readable:    ObjR,
	Writable:    ObjW,
	Executable:  ObjX,
	Resource:    ObjResource,
	Discardable: ObjDiscardable,
	Shared:      ObjShared,
	Preload:     ObjPreload,
	Invalid:     ObjInvalid,
}

// Perm is the access permission triple of a memory image.
type Perm uint8

const (
	PermR Perm = 1 << iota
	PermW
	PermX
)

func (p Perm) String() string {
	b := []byte("---")
	if p&PermR != 0 {
		b[0] = 'r'
	}
	if p&PermW != 0 {
		b[1] = 'w'
	}
	if p&PermX != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Perm derives the permission triple from object flags.
func (t FlagTable) Perm(f ObjFlag) Perm {
	var p Perm
	if t.Readable != 0 && f&t.Readable != 0 {
		p |= PermR
	}
	if t.Writable != 0 && f&t.Writable != 0 {
		p |= PermW
	}
	if t.Executable != 0 && f&t.Executable != 0 {
		p |= PermX
	}
	return p
}

// IsInvalid reports whether f marks the object as invalid.
func (t FlagTable) IsInvalid(f ObjFlag) bool {
	return t.Invalid != 0 && f&t.Invalid != 0
}

// Label returns the block label used when naming an object's memory image.
func (t FlagTable) Label(f ObjFlag) string {
	switch {
	case t.Resource != 0 && f&t.Resource != 0:
		return "RSRC"
	case t.Executable != 0 && f&t.Executable != 0:
		return "CODE"
	default:
		return "DATA"
	}
}
