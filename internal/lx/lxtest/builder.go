// Package lxtest builds synthetic LE/LX modules for tests.
package lxtest

import (
	"encoding/binary"

	"lxload/internal/lx"
)

// StubSize is the size of the MZ stub written ahead of embedded modules.
const StubSize = 0x80

// A Page is one page table entry and the bytes stored for it in the file.
// For iterated pages Data holds the encoded records.
type Page struct {
	Encoding lx.Encoding
	Data     []byte
}

// An Object is one object table entry with the pages it owns.
type Object struct {
	Base        uint32
	VirtualSize uint32
	Flags       lx.ObjFlag
	Pages       []Page

	// FirstPage overrides the 1-based page table index when non-zero.
	FirstPage uint32
	// PageCount overrides the number of owned pages when non-zero.
	PageCount uint32
}

// A Module describes a synthetic module.
type Module struct {
	Kind      lx.Kind // defaults to LX
	PageSize  uint32  // defaults to 0x1000
	PageShift uint32  // LX only
	EIPObject uint32  // defaults to 1
	EIP       uint32
	ESPObject uint32
	ESP       uint32
	Embedded  bool // prepend an MZ stub
	ByteOrder uint8
	Objects   []Object

	// NumPages overrides the header page count when non-zero.
	NumPages uint32
	// IterPages stores LX iterated pages in a separate region after the
	// data pages and records its offset in the header.
	IterPages bool
}

// Iterated encodes one iterated record: data repeated count times.
func Iterated(count uint16, data []byte) []byte {
	rec := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint16(rec[0:], count)
	binary.LittleEndian.PutUint16(rec[2:], uint16(len(data)))
	return append(rec, data...)
}

// Stub returns an MZ stub pointing at an extended header at off.
func Stub(off uint32) []byte {
	stub := make([]byte, StubSize)
	stub[0] = 'M'
	stub[1] = 'Z'
	binary.LittleEndian.PutUint16(stub[0x18:], 0x40)
	binary.LittleEndian.PutUint32(stub[0x3c:], off)
	return stub
}

type datawriter struct {
	data []byte
}

func (w *datawriter) write(d []byte) {
	w.data = append(w.data, d...)
}

// Bytes lays the module out as header, object table, page table and page
// data, in that order.
func (m *Module) Bytes() []byte {
	kind := m.Kind
	if kind == 0 {
		kind = lx.KindLX
	}
	pageSize := m.PageSize
	if pageSize == 0 {
		pageSize = 0x1000
	}
	eipObj := m.EIPObject
	if eipObj == 0 {
		eipObj = 1
	}

	var base uint32
	var d datawriter
	if m.Embedded {
		base = StubSize
		d.write(Stub(base))
	}

	var pages []Page
	objtab := make([]byte, 0, len(m.Objects)*0x18)
	for _, o := range m.Objects {
		first := uint32(len(pages)) + 1
		count := uint32(len(o.Pages))
		pages = append(pages, o.Pages...)
		if o.FirstPage != 0 {
			first = o.FirstPage
		}
		if o.PageCount != 0 {
			count = o.PageCount
		}
		if count == 0 {
			first = 0
		}
		var rec [0x18]byte
		binary.LittleEndian.PutUint32(rec[0x00:], o.VirtualSize)
		binary.LittleEndian.PutUint32(rec[0x04:], o.Base)
		binary.LittleEndian.PutUint32(rec[0x08:], uint32(o.Flags))
		binary.LittleEndian.PutUint32(rec[0x0c:], first)
		binary.LittleEndian.PutUint32(rec[0x10:], count)
		objtab = append(objtab, rec[:]...)
	}
	numPages := uint32(len(pages))
	if m.NumPages != 0 {
		numPages = m.NumPages
	}

	var h [lx.HeaderSize]byte
	le := binary.LittleEndian
	copy(h[:], kind.String())
	h[0x02] = m.ByteOrder
	le.PutUint16(h[0x08:], 2) // 80386
	le.PutUint16(h[0x0a:], 1) // OS/2
	le.PutUint32(h[0x14:], numPages)
	le.PutUint32(h[0x18:], eipObj)
	le.PutUint32(h[0x1c:], m.EIP)
	le.PutUint32(h[0x20:], m.ESPObject)
	le.PutUint32(h[0x24:], m.ESP)
	le.PutUint32(h[0x28:], pageSize)
	le.PutUint32(h[0x44:], uint32(len(m.Objects)))

	objOff := uint32(lx.HeaderSize)
	pageOff := objOff + uint32(len(objtab))
	entrySize := uint32(8)
	if kind == lx.KindLE {
		entrySize = 4
	}
	dataOff := base + pageOff + uint32(len(pages))*entrySize
	le.PutUint32(h[0x40:], objOff)
	le.PutUint32(h[0x48:], pageOff)
	le.PutUint32(h[0x80:], dataOff)

	var pagetab, data []byte
	if kind == lx.KindLE {
		pagetab, data = m.lePages(pages, pageSize, h[:])
	} else {
		le.PutUint32(h[0x2c:], m.PageShift)
		var iter []byte
		pagetab, data, iter = m.lxPages(pages)
		if m.IterPages {
			le.PutUint32(h[0x4c:], dataOff+uint32(len(data)))
			data = append(data, iter...)
		}
	}

	d.write(h[:])
	d.write(objtab)
	d.write(pagetab)
	d.write(data)
	return d.data
}

// lePages gives every entry a page-sized data slot so page numbers follow
// table order. The final page is stored short and recorded in the header.
func (m *Module) lePages(pages []Page, pageSize uint32, h []byte) (pagetab, data []byte) {
	for i, p := range pages {
		n := uint32(i + 1)
		pagetab = append(pagetab, byte(n>>16), byte(n>>8), byte(n), byte(p.Encoding))
		slot := make([]byte, pageSize)
		copy(slot, p.Data)
		if i == len(pages)-1 && len(p.Data) > 0 && uint32(len(p.Data)) < pageSize {
			slot = slot[:len(p.Data)]
			binary.LittleEndian.PutUint32(h[0x2c:], uint32(len(p.Data)))
		}
		data = append(data, slot...)
	}
	return pagetab, data
}

// lxPages stores each page's data aligned to the page shift. Pages without
// data get a zero offset and size. With IterPages set, iterated pages go to
// iter and their offsets are relative to it.
func (m *Module) lxPages(pages []Page) (pagetab, data, iter []byte) {
	align := 1 << m.PageShift
	for _, p := range pages {
		var ent [8]byte
		if len(p.Data) > 0 {
			region := &data
			if m.IterPages && p.Encoding == lx.EncIterated {
				region = &iter
			}
			for len(*region)%align != 0 {
				*region = append(*region, 0)
			}
			binary.LittleEndian.PutUint32(ent[0:], uint32(len(*region))>>m.PageShift)
			binary.LittleEndian.PutUint16(ent[4:], uint16(len(p.Data)))
			*region = append(*region, p.Data...)
		}
		binary.LittleEndian.PutUint16(ent[6:], uint16(p.Encoding))
		pagetab = append(pagetab, ent[:]...)
	}
	return pagetab, data, iter
}
