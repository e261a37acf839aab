package lx

import (
	"fmt"
	"sort"

	"lxload/internal/lxfmt"
)

// objectRecordSize is the on-disk size of one object table entry.
const objectRecordSize = 0x18

// ObjectRecord is the on-disk layout of an object table entry.
type ObjectRecord struct {
	VirtualSize uint32
	BaseAddress uint32
	Flags       uint32
	PageIndex   uint32 // 1-based
	PageCount   uint32
	Reserved    uint32
}

// An Object is a decoded object table entry. Page indices are 0-based: the
// object owns Pages[PageIndex : PageIndex+PageCount].
type Object struct {
	Index       int // 0-based position in the object table
	VirtualSize uint32
	Base        uint32
	Flags       ObjFlag
	PageIndex   int
	PageCount   int
	Offset      int64 // absolute file offset of the record
}

// Number returns the 1-based object number used by the file format.
func (o *Object) Number() int { return o.Index + 1 }

// PageEnd returns the index one past the object's last page.
func (o *Object) PageEnd() int { return o.PageIndex + o.PageCount }

// End returns the address one past the object's mapped region.
func (o *Object) End() uint64 { return uint64(o.Base) + uint64(o.VirtualSize) }

func (o *Object) String() string {
	return fmt.Sprintf("object %d base=0x%08x size=0x%x flags=0x%04x pages=%d+%d",
		o.Number(), o.Base, o.VirtualSize, uint32(o.Flags), o.PageIndex, o.PageCount)
}

// DecodeObjects decodes the object table. Objects are returned in table
// order; the 1-based page table index of each record is converted to a
// 0-based index here and nowhere else.
func DecodeObjects(c *lxfmt.Cursor, h *Header) ([]Object, error) {
	start := h.Rel(h.ObjectTableOffset)
	if int64(h.NumObjects)*objectRecordSize > c.Size()-start {
		return nil, formatErrf("object table", start, ErrTruncatedTable,
			"%d objects do not fit in 0x%x bytes", h.NumObjects, c.Size())
	}
	objs := make([]Object, 0, h.NumObjects)
	for i := 0; i < int(h.NumObjects); i++ {
		off := start + int64(i)*objectRecordSize
		var rec ObjectRecord
		if _, err := c.UnpackAt(off, &rec); err != nil {
			return nil, formatErrf("object table", off, ErrTruncatedTable, "object %d", i+1)
		}
		obj := Object{
			Index:       i,
			VirtualSize: rec.VirtualSize,
			Base:        rec.BaseAddress,
			Flags:       ObjFlag(rec.Flags),
			PageCount:   int(rec.PageCount),
			Offset:      off,
		}
		if rec.PageCount > 0 {
			if rec.PageIndex == 0 {
				return nil, formatErrf(fmt.Sprintf("object %d", i+1), off, ErrPageRange,
					"page table index 0 with %d pages", rec.PageCount)
			}
			obj.PageIndex = int(rec.PageIndex) - 1
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// pageTableLen returns the number of page table entries. The header page
// count is authoritative when set; otherwise the highest page owned by any
// object defines the table length.
func pageTableLen(h *Header, objs []Object) int {
	if h.NumPages != 0 {
		return int(h.NumPages)
	}
	n := 0
	for i := range objs {
		if end := objs[i].PageEnd(); end > n {
			n = end
		}
	}
	return n
}

// checkPageRanges verifies that every object's pages lie inside the page
// table and that no two objects share a page.
func checkPageRanges(objs []Object, n int) error {
	owned := make([]*Object, 0, len(objs))
	for i := range objs {
		o := &objs[i]
		if o.PageCount == 0 {
			continue
		}
		if o.PageEnd() > n {
			return formatErrf(fmt.Sprintf("object %d", o.Number()), o.Offset, ErrPageRange,
				"pages %d..%d exceed page table of %d entries", o.PageIndex+1, o.PageEnd(), n)
		}
		owned = append(owned, o)
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].PageIndex < owned[j].PageIndex })
	for i := 1; i < len(owned); i++ {
		prev, o := owned[i-1], owned[i]
		if o.PageIndex < prev.PageEnd() {
			return formatErrf(fmt.Sprintf("object %d", o.Number()), o.Offset, ErrPageRange,
				"page %d already owned by object %d", o.PageIndex+1, prev.Number())
		}
	}
	return nil
}
