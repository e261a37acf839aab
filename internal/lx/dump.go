package lx

import (
	"bufio"
	"fmt"
	"strconv"
)

const indentLevel = "  "

const hexDigits = "0123456789abcdef"

func endian(b byte) string {
	switch b {
	case 0:
		return "little endian"
	case 1:
		return "big endian"
	default:
		return "unknown"
	}
}

// CPUName names the header CPU type.
func CPUName(v uint16) string {
	switch v {
	case 1:
		return "80286"
	case 2:
		return "80386"
	case 3:
		return "80486"
	case 4:
		return "80586"
	case 0x20:
		return "i860 (N10)"
	case 0x21:
		return "i860 (N11)"
	case 0x40:
		return "MIPS R2000"
	case 0x41:
		return "MIPS R6000"
	case 0x42:
		return "MIPS R4000"
	default:
		return "unknown"
	}
}

// OSName names the header target operating system.
func OSName(v uint16) string {
	switch v {
	case 1:
		return "OS/2"
	case 2:
		return "Windows"
	case 3:
		return "DOS 4.x"
	case 4:
		return "Windows 386"
	default:
		return "unknown"
	}
}

// Module flag bits.
const (
	ModPerProcessInit    = 0x00000004
	ModInternalFixupsOff = 0x00000010
	ModExternalFixupsOff = 0x00000020
	ModNotLoadable       = 0x00002000
	ModTypeMask          = 0x00038000
	ModTypeProgram       = 0x00000000
	ModTypeLibrary       = 0x00008000
	ModTypePDD           = 0x00020000
	ModTypeVDD           = 0x00028000
)

// ModuleType names the module type encoded in the module flags.
func ModuleType(flags uint32) string {
	switch flags & ModTypeMask {
	case ModTypeProgram:
		return "program"
	case ModTypeLibrary:
		return "library"
	case ModTypePDD:
		return "physical device driver"
	case ModTypeVDD:
		return "virtual device driver"
	default:
		return "unknown"
	}
}

func writeInt0(w *bufio.Writer, v uint32, sz uint) {
	for i := uint(sz * 2); i > 0; i-- {
		w.WriteByte(hexDigits[(v>>((i-1)*4))&15])
	}
}

func writeInt(w *bufio.Writer, v uint32, sz uint) {
	w.WriteString("0x")
	writeInt0(w, v, sz)
}

type field struct {
	name string
	data any
	hint string
}

func dumpFields(w *bufio.Writer, prefix string, fields []field) {
	maxName := 0
	for _, f := range fields {
		if len(f.name) > maxName {
			maxName = len(f.name)
		}
	}
	for _, f := range fields {
		w.WriteString(prefix)
		w.WriteString(f.name)
		w.WriteByte(':')
		for i := len(f.name); i < maxName+2; i++ {
			w.WriteByte(' ')
		}
		switch v := f.data.(type) {
		case []byte:
			fmt.Fprintf(w, "%q", v)
		case uint8:
			writeInt(w, uint32(v), 1)
		case uint16:
			writeInt(w, uint32(v), 2)
		case uint32:
			writeInt(w, v, 4)
		case int:
			w.WriteString(strconv.Itoa(v))
		case string:
			w.WriteString(v)
		default:
			panic("unknown field type for " + f.name)
		}
		if f.hint != "" {
			w.WriteString("  ")
			w.WriteString(f.hint)
		}
		w.WriteByte('\n')
	}
}

// DumpText writes the header, in text format, to the writer.
func (h *Header) DumpText(w *bufio.Writer, prefix string) {
	shift := field{"Page Offset Shift", h.PageShift, ""}
	if h.Kind == KindLE {
		shift = field{"Last Page Size", h.PageShift, ""}
	}
	dumpFields(w, prefix, []field{
		{"Signature", h.Signature[:], h.Kind.String()},
		{"Header Offset", uint32(h.Base), ""},
		{"Byte Order", h.ByteOrder, endian(h.ByteOrder)},
		{"Word Order", h.WordOrder, endian(h.WordOrder)},
		{"Format Level", h.FormatLevel, ""},
		{"CPU Type", h.CPUType, CPUName(h.CPUType)},
		{"OS Type", h.OSType, OSName(h.OSType)},
		{"Module Version", h.ModuleVersion, ""},
		{"Module Flags", h.ModuleFlags, ModuleType(h.ModuleFlags)},
		{"Module Num Pages", h.NumPages, ""},
		{"EIP Object", h.EIPObject, ""},
		{"EIP", h.EIP, ""},
		{"ESP Object", h.ESPObject, ""},
		{"ESP", h.ESP, ""},
		{"Page Size", h.PageSize, ""},
		shift,
		{"Fixup Section Size", h.FixupSectionSize, ""},
		{"Loader Section Size", h.LoaderSectionSize, ""},
		{"Object Table Offset", h.ObjectTableOffset, ""},
		{"Num Objects", h.NumObjects, ""},
		{"Object Page Table Offset", h.PageTableOffset, ""},
		{"Object Iter Pages Offset", h.IterPagesOffset, ""},
		{"Resource Table Offset", h.ResourceTableOffset, ""},
		{"Num Resources", h.NumResources, ""},
		{"Resident Name Table Offset", h.ResidentNameTableOffset, ""},
		{"Entry Table Offset", h.EntryTableOffset, ""},
		{"Fixup Page Table Offset", h.FixupPageTableOffset, ""},
		{"Fixup Record Offset", h.FixupRecordOffset, ""},
		{"Import Module Table Offset", h.ImportModuleTableOffset, ""},
		{"Num Import Modules", h.NumImportModules, ""},
		{"Import Proc Table Offset", h.ImportProcTableOffset, ""},
		{"Data Pages Offset", h.DataPagesOffset, ""},
		{"Num Preload Pages", h.NumPreloadPages, ""},
		{"Non ResName Table Offset", h.NonResNameTableOffset, ""},
		{"Auto DS Object", h.AutoDSObject, ""},
		{"Heap Size", h.HeapSize, ""},
	})
}

func objectFlagNames(f ObjFlag) string {
	names := []struct {
		bit  ObjFlag
		name string
	}{
		{ObjR, "R"}, {ObjW, "W"}, {ObjX, "X"}, {ObjResource, "RSRC"},
		{ObjDiscardable, "DISCARD"}, {ObjShared, "SHARED"}, {ObjPreload, "PRELOAD"},
		{ObjInvalid, "INVALID"}, {ObjZeroFill, "ZERO"}, {Obj32Bit, "32BIT"},
	}
	var s string
	for _, n := range names {
		if f&n.bit != 0 {
			if s != "" {
				s += " "
			}
			s += n.name
		}
	}
	return s
}

// DumpText writes the object and the pages it owns, in text format.
func (o *Object) DumpText(w *bufio.Writer, prefix string, pages []Page) {
	nprefix := prefix + indentLevel
	dumpFields(w, prefix, []field{
		{"Virtual Size", o.VirtualSize, ""},
		{"Base Address", o.Base, ""},
		{"Flags", uint32(o.Flags), objectFlagNames(o.Flags)},
		{"Page Table Index", o.PageIndex + 1, ""},
		{"Page Table Entries", o.PageCount, ""},
	})
	if len(pages) == 0 {
		return
	}
	w.WriteString(prefix)
	w.WriteString("Pages:\n")
	for _, p := range pages {
		fmt.Fprintf(w, "%sPage %d  %-10s off=0x%08x size=0x%04x flags=0x%04x\n",
			nprefix, p.Index+1, p.Encoding, p.Offset, p.Size, p.Flags)
	}
}

// DumpText writes the module header and object table, in text format.
func (m *Module) DumpText(w *bufio.Writer, prefix string) {
	nprefix := prefix + indentLevel
	w.WriteString(prefix)
	w.WriteString("Header:\n")
	m.Header.DumpText(w, nprefix)
	w.WriteByte('\n')
	for i := range m.Objects {
		o := &m.Objects[i]
		w.WriteString(prefix)
		w.WriteString("Object ")
		w.WriteString(strconv.Itoa(o.Number()))
		w.WriteString(":\n")
		o.DumpText(w, nprefix, m.ObjectPages(o))
		w.WriteByte('\n')
	}
}
