package lx

import (
	"fmt"

	"lxload/internal/lxfmt"
)

// Encoding selects how a page's bytes are sourced.
type Encoding uint8

const (
	EncLegal      Encoding = 0 // verbatim page data
	EncIterated   Encoding = 1 // run-length records
	EncInvalid    Encoding = 2 // unbacked page
	EncZeroFilled Encoding = 3 // no file data, zero bytes
	EncRange      Encoding = 4 // one data record shared by a run of pages (LX only)
	EncCompressed Encoding = 5 // EXEPACK2 (LX only)
)

var encodingNames = [...]string{"legal", "iterated", "invalid", "zero", "range", "compressed"}

func (e Encoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

const (
	lePageEntrySize = 4
	lxPageEntrySize = 8
)

// A Page is a decoded page table entry.
type Page struct {
	Index    int    // 0-based position in the page table
	Raw      uint32 // stored page number (LE) or shifted data offset (LX)
	Flags    uint16
	Encoding Encoding
	Offset   int64  // absolute file offset of the page data
	Size     uint32 // bytes of page data in the file
	Entry    int64  // absolute file offset of the page table entry
}

func (p *Page) String() string {
	return fmt.Sprintf("page %d %s off=0x%x size=0x%x", p.Index+1, p.Encoding, p.Offset, p.Size)
}

// DecodePages decodes n page table entries and resolves each page's file
// location. The LE and LX layouts differ only here.
func DecodePages(c *lxfmt.Cursor, h *Header, n int) ([]Page, error) {
	start := h.Rel(h.PageTableOffset)
	entrySize := int64(lxPageEntrySize)
	if h.Kind == KindLE {
		entrySize = lePageEntrySize
	}
	if int64(n)*entrySize > c.Size()-start {
		return nil, formatErrf("page table", start, ErrTruncatedTable,
			"%d entries do not fit in 0x%x bytes", n, c.Size())
	}

	pages := make([]Page, n)
	for i := range pages {
		off := start + int64(i)*entrySize
		raw, err := c.BytesAt(off, int(entrySize))
		if err != nil {
			return nil, formatErrf("page table", off, ErrTruncatedTable, "page %d", i+1)
		}
		p := &pages[i]
		p.Index = i
		p.Entry = off
		if h.Kind == KindLE {
			decodeLEPage(p, raw, h)
		} else {
			decodeLXPage(p, raw, h)
		}
	}
	return pages, nil
}

// decodeLEPage decodes a 4-byte LE entry: a 24-bit page number stored high
// byte first, then a flags byte. Pages are stored back to back from the data
// pages offset, each PageSize bytes except the module's last.
func decodeLEPage(p *Page, raw []byte, h *Header) {
	p.Raw = uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
	p.Flags = uint16(raw[3])
	p.Encoding = Encoding(raw[3] & 0x03)
	if p.Raw == 0 {
		return
	}
	p.Offset = int64(h.DataPagesOffset) + int64(p.Raw-1)*int64(h.PageSize)
	p.Size = h.PageSize
	if p.Raw == h.NumPages {
		p.Size = h.LastPageSize()
	}
}

// decodeLXPage decodes an 8-byte LX entry: data offset, data size and flags.
// The data offset is shifted by the header page shift and is relative to the
// data pages offset, or to the iterated pages offset for iterated pages when
// the module has one.
func decodeLXPage(p *Page, raw []byte, h *Header) {
	p.Raw = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	p.Size = uint32(raw[4]) | uint32(raw[5])<<8
	p.Flags = uint16(raw[6]) | uint16(raw[7])<<8
	p.Encoding = Encoding(p.Flags & 0x07)
	base := int64(h.DataPagesOffset)
	if p.Encoding == EncIterated && h.IterPagesOffset != 0 {
		base = int64(h.IterPagesOffset)
	}
	p.Offset = base + int64(p.Raw)<<h.PageShift
}

// DecodePage materializes one page as exactly pageSize bytes. Invalid pages
// decode to zeros and add a diagnostic to diags, which may be nil.
func DecodePage(c *lxfmt.Cursor, p *Page, pageSize uint32, diags *lxfmt.Diags) ([]byte, error) {
	out := make([]byte, pageSize)
	switch p.Encoding {
	case EncZeroFilled:
		return out, nil

	case EncInvalid:
		if diags != nil {
			diags.Addf(uint64(p.Entry), lxfmt.DiagInvalidPage, "page %d is invalid, zero-filled", p.Index+1)
		}
		return out, nil

	case EncLegal, EncRange:
		if err := checkPageSize(p, pageSize); err != nil {
			return nil, err
		}
		if err := c.ReadAt(out[:p.Size], p.Offset); err != nil {
			return nil, formatErrf(pageName(p), p.Offset, ErrCorruptPageData,
				"0x%x bytes past end of file", p.Size)
		}
		return out, nil

	case EncIterated:
		if err := checkPageSize(p, pageSize); err != nil {
			return nil, err
		}
		src, err := c.BytesAt(p.Offset, int(p.Size))
		if err != nil {
			return nil, formatErrf(pageName(p), p.Offset, ErrCorruptPageData,
				"0x%x bytes past end of file", p.Size)
		}
		if err := Unpack(out, src); err != nil {
			return nil, formatErr(pageName(p), p.Offset, err)
		}
		return out, nil

	default:
		return nil, formatErrf(pageName(p), p.Entry, ErrUnsupportedPage, "%s", p.Encoding)
	}
}

func checkPageSize(p *Page, pageSize uint32) error {
	if p.Size == 0 {
		return formatErrf(pageName(p), p.Entry, ErrCorruptPageData, "%s page has no data", p.Encoding)
	}
	if p.Size > pageSize && p.Encoding != EncIterated {
		return formatErrf(pageName(p), p.Entry, ErrCorruptPageData,
			"data size 0x%x exceeds page size 0x%x", p.Size, pageSize)
	}
	return nil
}

func pageName(p *Page) string {
	return fmt.Sprintf("page %d", p.Index+1)
}

// iteratedRecordHeader is the size of the iteration count and data length
// preceding each iterated run.
const iteratedRecordHeader = 4

// Unpack expands iterated page data into dst. src is a sequence of records,
// each a little-endian u16 iteration count, a u16 run length and the run
// bytes; the run is written count times. Expansion stops at the end of src
// or at a zero record. Records left over once dst is full, a record that
// would write past the end of dst, or a run extending past src are corrupt.
// Bytes of dst not written are left untouched.
func Unpack(dst, src []byte) error {
	var n, pos int
	for pos < len(src) {
		if n == len(dst) {
			if !zeroTail(src[pos:]) {
				return fmt.Errorf("%w: records at 0x%x follow a full page", ErrCorruptPageData, pos)
			}
			break
		}
		if len(src)-pos < iteratedRecordHeader {
			return fmt.Errorf("%w: %d trailing bytes at 0x%x", ErrCorruptPageData, len(src)-pos, pos)
		}
		count := int(src[pos]) | int(src[pos+1])<<8
		length := int(src[pos+2]) | int(src[pos+3])<<8
		pos += iteratedRecordHeader
		if count == 0 && length == 0 {
			break
		}
		if length > len(src)-pos {
			return fmt.Errorf("%w: run of %d bytes at 0x%x exceeds data", ErrCorruptPageData, length, pos)
		}
		if count*length > len(dst)-n {
			return fmt.Errorf("%w: %d x %d bytes at 0x%x overruns page (%d bytes left)",
				ErrCorruptPageData, count, length, pos, len(dst)-n)
		}
		run := src[pos : pos+length]
		for i := 0; i < count; i++ {
			n += copy(dst[n:], run)
		}
		pos += length
	}
	return nil
}

// zeroTail reports whether b starts with a zero record or is zero padding.
func zeroTail(b []byte) bool {
	if len(b) >= iteratedRecordHeader {
		b = b[:iteratedRecordHeader]
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// rangeRepeats returns how many logical pages each of pages stands for. Every
// entry stands for one page except Range entries, which share the pages
// needed to cover virtualSize. The last Range entry takes the remainder.
func rangeRepeats(pages []Page, virtualSize, pageSize uint32) []int {
	reps := make([]int, len(pages))
	var ranges []int
	for i := range pages {
		reps[i] = 1
		if pages[i].Encoding == EncRange {
			ranges = append(ranges, i)
		}
	}
	if len(ranges) == 0 {
		return reps
	}
	logical := int((uint64(virtualSize) + uint64(pageSize) - 1) / uint64(pageSize))
	spare := logical - (len(pages) - len(ranges))
	if spare <= len(ranges) {
		return reps
	}
	share := spare / len(ranges)
	for _, i := range ranges {
		reps[i] = share
	}
	reps[ranges[len(ranges)-1]] += spare - share*len(ranges)
	return reps
}
