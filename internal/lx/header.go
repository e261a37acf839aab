// Package lx decodes LE and LX linear executable modules into per-object
// memory images.
package lx

import (
	"errors"
	"fmt"

	"lxload/internal/lxfmt"
)

// HeaderSize is the size of the fixed LE/LX header.
const HeaderSize = 0xac

// MaxPageSize bounds the header page size. LX page sizes are recorded in a
// 16-bit field, so no valid module uses more.
const MaxPageSize = 0x10000

// Kind distinguishes the two linear executable variants. The variant decides
// the page table entry layout and how page offsets are computed.
type Kind uint8

const (
	KindLE Kind = iota + 1
	KindLX
)

func (k Kind) String() string {
	switch k {
	case KindLE:
		return "LE"
	case KindLX:
		return "LX"
	default:
		return "unknown"
	}
}

// Fields is the on-disk layout of the linear executable header. Table
// offsets are relative to the start of the header except DataPagesOffset and
// NonResNameTableOffset, which are relative to the start of the file.
type Fields struct {
	Signature               [2]byte
	ByteOrder               uint8
	WordOrder               uint8
	FormatLevel             uint32
	CPUType                 uint16
	OSType                  uint16
	ModuleVersion           uint32
	ModuleFlags             uint32
	NumPages                uint32
	EIPObject               uint32
	EIP                     uint32
	ESPObject               uint32
	ESP                     uint32
	PageSize                uint32
	PageShift               uint32 // LX page offset shift; LE bytes on last page
	FixupSectionSize        uint32
	FixupSectionChecksum    uint32
	LoaderSectionSize       uint32
	LoaderSectionChecksum   uint32
	ObjectTableOffset       uint32
	NumObjects              uint32
	PageTableOffset         uint32
	IterPagesOffset         uint32
	ResourceTableOffset     uint32
	NumResources            uint32
	ResidentNameTableOffset uint32
	EntryTableOffset        uint32
	ModuleDirectivesOffset  uint32
	NumModuleDirectives     uint32
	FixupPageTableOffset    uint32
	FixupRecordOffset       uint32
	ImportModuleTableOffset uint32
	NumImportModules        uint32
	ImportProcTableOffset   uint32
	PerPageChecksumOffset   uint32
	DataPagesOffset         uint32
	NumPreloadPages         uint32
	NonResNameTableOffset   uint32
	NonResNameTableLength   uint32
	NonResNameTableChecksum uint32
	AutoDSObject            uint32
	DebugInfoOffset         uint32
	DebugInfoLength         uint32
	NumInstancePreload      uint32
	NumInstanceDemand       uint32
	HeapSize                uint32
}

// Header is a decoded module header.
type Header struct {
	Kind Kind
	Base int64 // absolute file offset of the header
	Fields
}

// DecodeHeader decodes the module header at base.
func DecodeHeader(c *lxfmt.Cursor, base int64) (*Header, error) {
	sig, err := c.BytesAt(base, 2)
	if err != nil {
		return nil, formatErr("header", base, ErrTruncatedHeader)
	}
	h := &Header{Base: base}
	switch string(sig) {
	case "LE":
		h.Kind = KindLE
	case "LX":
		h.Kind = KindLX
	default:
		return nil, formatErrf("header", base, ErrUnrecognizedFormat, "signature %q", sig)
	}

	if _, err := c.UnpackAt(base, &h.Fields); err != nil {
		if errors.Is(err, lxfmt.ErrOutOfRange) {
			return nil, formatErrf("header", base, ErrTruncatedHeader,
				"need 0x%x bytes, have 0x%x", HeaderSize, c.Size()-base)
		}
		return nil, formatErr("header", base, err)
	}

	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) validate() error {
	if h.NumObjects == 0 {
		return formatErrf("header", h.Base, ErrInvalidHeader, "no objects")
	}
	if h.PageSize == 0 {
		return formatErrf("header", h.Base, ErrInvalidHeader, "page size is 0")
	}
	if h.PageSize > MaxPageSize {
		return formatErrf("header", h.Base, ErrInvalidHeader, "page size 0x%x", h.PageSize)
	}
	if h.Kind == KindLX && h.PageShift >= 32 {
		return formatErrf("header", h.Base, ErrInvalidHeader, "page offset shift %d", h.PageShift)
	}
	if h.Kind == KindLE && h.PageShift > h.PageSize {
		return formatErrf("header", h.Base, ErrInvalidHeader,
			"last page size 0x%x exceeds page size 0x%x", h.PageShift, h.PageSize)
	}
	if h.EIPObject < 1 || h.EIPObject > h.NumObjects {
		return formatErrf("header", h.Base+0x18, ErrInvalidEntryPoint,
			"EIP object %d not in [1, %d]", h.EIPObject, h.NumObjects)
	}
	return nil
}

// Rel converts a header-relative table offset to an absolute file offset.
func (h *Header) Rel(off uint32) int64 {
	return h.Base + int64(off)
}

// LastPageSize returns the number of bytes in the module's final page. Only
// LE modules record it; LX pages carry their own size.
func (h *Header) LastPageSize() uint32 {
	if h.Kind != KindLE || h.PageShift == 0 {
		return h.PageSize
	}
	return h.PageShift
}

// EntryObject returns the 0-based index of the object holding the entry point.
func (h *Header) EntryObject() int {
	return int(h.EIPObject) - 1
}

// BigEndian reports whether the header declares big-endian byte order.
// Field values are still read little-endian; the flag is informational.
func (h *Header) BigEndian() bool {
	return h.ByteOrder != 0
}

func (h *Header) String() string {
	return fmt.Sprintf("%s module at 0x%x: %d objects, %d pages of 0x%x bytes",
		h.Kind, h.Base, h.NumObjects, h.NumPages, h.PageSize)
}
