package lx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"lxload/internal/lxfmt"
)

// MZ stub fields consulted when locating an embedded header.
const (
	mzRelocOffset  = 0x18 // file address of relocation table
	mzNewHeader    = 0x3c // file address of new exe header
	mzMinNewHeader = 0x40 // relocation table offset marking an extended header
)

// Container describes where the linear executable header lives.
type Container struct {
	Embedded     bool  // header follows an MZ stub
	HeaderOffset int64 // absolute offset of the LE/LX header
}

// Classify inspects the first bytes of r. Standalone LE/LX files have their
// header at offset 0. MZ files whose relocation table offset is at least
// 0x40 carry an extended header located by the u32 at 0x3C. Anything else
// is not supported and reports false.
func Classify(r io.ReaderAt, size int64) (Container, bool) {
	c := lxfmt.NewCursor(r, size)
	sig, err := c.BytesAt(0, 2)
	if err != nil {
		return Container{}, false
	}
	switch string(sig) {
	case "LE", "LX":
		return Container{}, true
	case "MZ":
		reloc, err := c.Uint8At(mzRelocOffset)
		if err != nil || reloc < mzMinNewHeader {
			return Container{}, false
		}
		off, err := c.Uint32At(mzNewHeader)
		if err != nil {
			return Container{}, false
		}
		return Container{Embedded: true, HeaderOffset: int64(off)}, true
	}
	return Container{}, false
}

// Supported reports whether r looks like an LE/LX module.
func Supported(r io.ReaderAt, size int64) bool {
	_, ok := Classify(r, size)
	return ok
}

// An Image is the memory image of one loadable object.
type Image struct {
	Object int     // 0-based object index
	Base   uint32  // address the object is mapped at
	Data   []byte  // exactly the object's virtual size
	Flags  ObjFlag // raw object flags
	Perm   Perm
	Label  string // block label derived from the flags: CODE, DATA or RSRC
}

// Name returns the deterministic block name: label plus 1-based object number.
func (im *Image) Name() string {
	return fmt.Sprintf("%s%d", im.Label, im.Object+1)
}

// ObjectFailure records an object that could not be materialized.
type ObjectFailure struct {
	Object int
	Err    error
}

// Module is a decoded LE/LX module.
type Module struct {
	Container
	Header  *Header
	Objects []Object
	Pages   []Page
	Images  []Image
	Entry   uint32 // absolute entry address
	Stack   uint32 // absolute initial ESP, 0 when the header names no object
	Failed  []ObjectFailure
	Diags   []lxfmt.Diag
}

// Image returns the image of the object with 0-based index i.
func (m *Module) Image(i int) *Image {
	for j := range m.Images {
		if m.Images[j].Object == i {
			return &m.Images[j]
		}
	}
	return nil
}

// ObjectPages returns the page table entries owned by o.
func (m *Module) ObjectPages(o *Object) []Page {
	if o.PageCount == 0 {
		return nil
	}
	return m.Pages[o.PageIndex:o.PageEnd()]
}

// A Loader decodes modules with fixed options.
type Loader struct {
	Options lxfmt.Options
	Flags   FlagTable
}

// NewLoader returns a loader using the default flag layout.
func NewLoader(opts lxfmt.Options) *Loader {
	return &Loader{Options: opts, Flags: DefaultFlagTable}
}

// Load decodes the module held in r using a default loader.
func Load(r io.ReaderAt, size int64, opts lxfmt.Options) (*Module, error) {
	return NewLoader(opts).Load(context.Background(), r, size)
}

// Open opens the named file and decodes it. The file is closed before
// Open returns; the module holds no reference to it.
func Open(path string, opts lxfmt.Options) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lx: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("lx: stat: %w", err)
	}
	return Load(f, info.Size(), opts)
}

// Load decodes the module held in r. Header and table errors abort the
// load. In best-effort mode an object whose pages cannot be decoded is
// recorded in Module.Failed and the remaining objects still load; in strict
// mode the first such error is returned. ctx is checked between objects.
func (l *Loader) Load(ctx context.Context, r io.ReaderAt, size int64) (*Module, error) {
	ct, ok := Classify(r, size)
	if !ok {
		return nil, formatErr("signature", 0, ErrUnrecognizedFormat)
	}
	c := lxfmt.NewCursor(r, size)

	h, err := DecodeHeader(c, ct.HeaderOffset)
	if err != nil {
		return nil, err
	}
	m := &Module{Container: ct, Header: h}
	var diags lxfmt.Diags
	if h.BigEndian() {
		diags.Addf(uint64(h.Base+2), lxfmt.DiagUnsupported,
			"header declares big-endian byte order, fields read little-endian")
	}

	if m.Objects, err = DecodeObjects(c, h); err != nil {
		return nil, err
	}
	if m.Pages, err = DecodePages(c, h, pageTableLen(h, m.Objects)); err != nil {
		return nil, err
	}
	if err := checkPageRanges(m.Objects, len(m.Pages)); err != nil {
		return nil, err
	}

	m.Entry = m.Objects[h.EntryObject()].Base + h.EIP
	if h.ESPObject >= 1 && h.ESPObject <= h.NumObjects {
		m.Stack = m.Objects[h.ESPObject-1].Base + h.ESP
	}

	for i := range m.Objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o := &m.Objects[i]
		if l.Flags.IsInvalid(o.Flags) {
			diags.Addf(uint64(o.Offset), lxfmt.DiagSkipped, "object %d is flagged invalid", o.Number())
			continue
		}
		if o.PageCount == 0 {
			diags.Addf(uint64(o.Offset), lxfmt.DiagSkipped, "object %d has no pages", o.Number())
			continue
		}
		img, err := l.materialize(c, m, o, &diags)
		if err != nil {
			if l.Options.Mode == lxfmt.ModeStrict {
				return nil, err
			}
			diags.Addf(uint64(o.Offset), lxfmt.DiagCorrupt, "object %d: %v", o.Number(), err)
			m.Failed = append(m.Failed, ObjectFailure{Object: i, Err: err})
			continue
		}
		m.Images = append(m.Images, img)
	}
	m.Diags = diags.Items()
	return m, nil
}

// materialize decodes the pages owned by o and joins them into one buffer
// of exactly o.VirtualSize bytes.
func (l *Loader) materialize(c *lxfmt.Cursor, m *Module, o *Object, diags *lxfmt.Diags) (Image, error) {
	h := m.Header
	if int64(o.VirtualSize) > int64(l.Options.EffectiveMaxBytes()) {
		return Image{}, formatErrf(fmt.Sprintf("object %d", o.Number()), o.Offset, ErrObjectTooLarge,
			"virtual size 0x%x", o.VirtualSize)
	}

	pages := m.ObjectPages(o)
	reps := rangeRepeats(pages, o.VirtualSize, h.PageSize)
	data := make([]byte, 0, o.VirtualSize)
	for i := range pages {
		if len(data) >= int(o.VirtualSize) {
			break
		}
		p := &pages[i]
		buf, err := DecodePage(c, p, h.PageSize, diags)
		if err != nil {
			return Image{}, fmt.Errorf("object %d: %w", o.Number(), err)
		}
		for r := 0; r < reps[i] && len(data) < int(o.VirtualSize); r++ {
			data = append(data, buf...)
		}
	}

	switch {
	case len(data) > int(o.VirtualSize):
		data = data[:o.VirtualSize]
	case len(data) < int(o.VirtualSize):
		data = append(data, make([]byte, int(o.VirtualSize)-len(data))...)
	}

	return Image{
		Object: o.Index,
		Base:   o.Base,
		Data:   data,
		Flags:  o.Flags,
		Perm:   l.Flags.Perm(o.Flags),
		Label:  l.Flags.Label(o.Flags),
	}, nil
}

// IsNotApplicable reports whether err means the input is not an LE/LX
// module at all, as opposed to a damaged one.
func IsNotApplicable(err error) bool {
	return errors.Is(err, ErrUnrecognizedFormat)
}
