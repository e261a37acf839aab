package lx_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lxload/internal/lx"
	"lxload/internal/lx/lxtest"
	"lxload/internal/lxfmt"
)

const pageSize = 0x1000

func fill(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func load(t *testing.T, data []byte, opts lxfmt.Options) *lx.Module {
	t.Helper()
	m, err := lx.Load(bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func loadErr(data []byte, opts lxfmt.Options) error {
	_, err := lx.Load(bytes.NewReader(data), int64(len(data)), opts)
	return err
}

// twoPageModule has one object of two verbatim pages mapped at 0x10000.
func twoPageModule(kind lx.Kind) *lxtest.Module {
	return &lxtest.Module{
		Kind: kind,
		EIP:  0x10,
		Objects: []lxtest.Object{{
			Base:        0x10000,
			VirtualSize: 2 * pageSize,
			Flags:       lx.ObjR | lx.ObjX | lx.Obj32Bit,
			Pages: []lxtest.Page{
				{Encoding: lx.EncLegal, Data: fill(0xaa, pageSize)},
				{Encoding: lx.EncLegal, Data: fill(0xbb, pageSize)},
			},
		}},
	}
}

func TestClassify(t *testing.T) {
	lxData := twoPageModule(lx.KindLX).Bytes()
	tests := []struct {
		name   string
		data   []byte
		ok     bool
		embed  bool
		offset int64
	}{
		{"standalone LX", lxData, true, false, 0},
		{"standalone LE", twoPageModule(lx.KindLE).Bytes(), true, false, 0},
		{"embedded", append(lxtest.Stub(0x1234), lxData...), true, true, 0x1234},
		{"bad signature", append([]byte("XX"), lxData[2:]...), false, false, 0},
		{"empty", nil, false, false, 0},
		{"one byte", []byte("L"), false, false, 0},
	}
	for _, tt := range tests {
		ct, ok := lx.Classify(bytes.NewReader(tt.data), int64(len(tt.data)))
		if ok != tt.ok {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if ct.Embedded != tt.embed || ct.HeaderOffset != tt.offset {
			t.Errorf("%s: container = %+v, want embedded=%v offset=0x%x",
				tt.name, ct, tt.embed, tt.offset)
		}
	}
}

func TestClassifyClassicDOSStub(t *testing.T) {
	stub := lxtest.Stub(0x80)
	stub[0x18] = 0x1e // classic DOS relocation table offset
	data := append(stub, twoPageModule(lx.KindLX).Bytes()...)
	if lx.Supported(bytes.NewReader(data), int64(len(data))) {
		t.Error("classic DOS executable reported as supported")
	}
}

func TestLoadTwoVerbatimPages(t *testing.T) {
	for _, kind := range []lx.Kind{lx.KindLX, lx.KindLE} {
		m := load(t, twoPageModule(kind).Bytes(), lxfmt.Options{})
		if len(m.Images) != 1 {
			t.Fatalf("%s: images = %d, want 1", kind, len(m.Images))
		}
		img := m.Images[0]
		want := append(fill(0xaa, pageSize), fill(0xbb, pageSize)...)
		if len(img.Data) != 2*pageSize {
			t.Fatalf("%s: len = 0x%x, want 0x%x", kind, len(img.Data), 2*pageSize)
		}
		if !bytes.Equal(img.Data, want) {
			t.Errorf("%s: image is not the concatenation of both pages", kind)
		}
		if img.Base != 0x10000 {
			t.Errorf("%s: base = 0x%x, want 0x10000", kind, img.Base)
		}
		if m.Header.Kind != kind {
			t.Errorf("kind = %s, want %s", m.Header.Kind, kind)
		}
	}
}

func TestEntryResolution(t *testing.T) {
	m := load(t, twoPageModule(lx.KindLX).Bytes(), lxfmt.Options{})
	if m.Entry != 0x10010 {
		t.Errorf("entry = 0x%x, want 0x10010", m.Entry)
	}
}

func TestEntryInSecondObject(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.Objects = append(mod.Objects, lxtest.Object{
		Base: 0x20000, VirtualSize: 0x100, Flags: lx.ObjR | lx.ObjW,
		Pages: []lxtest.Page{{Encoding: lx.EncLegal, Data: fill(1, 0x100)}},
	})
	mod.EIPObject = 2
	mod.EIP = 4
	mod.ESPObject = 2
	mod.ESP = 0x100
	m := load(t, mod.Bytes(), lxfmt.Options{})
	if m.Entry != 0x20004 {
		t.Errorf("entry = 0x%x, want 0x20004", m.Entry)
	}
	if m.Stack != 0x20100 {
		t.Errorf("stack = 0x%x, want 0x20100", m.Stack)
	}
}

func TestLoadIdempotent(t *testing.T) {
	data := twoPageModule(lx.KindLX).Bytes()
	a := load(t, data, lxfmt.Options{})
	b := load(t, data, lxfmt.Options{})
	if len(a.Images) != len(b.Images) {
		t.Fatalf("image count differs: %d vs %d", len(a.Images), len(b.Images))
	}
	for i := range a.Images {
		if !bytes.Equal(a.Images[i].Data, b.Images[i].Data) || a.Images[i].Base != b.Images[i].Base {
			t.Errorf("image %d differs between loads", i)
		}
	}
}

func TestLoadEmbedded(t *testing.T) {
	mod := twoPageModule(lx.KindLE)
	mod.Embedded = true
	m := load(t, mod.Bytes(), lxfmt.Options{})
	if !m.Embedded || m.HeaderOffset != lxtest.StubSize {
		t.Errorf("container = %+v", m.Container)
	}
	if len(m.Images) != 1 || m.Images[0].Data[pageSize] != 0xbb {
		t.Error("embedded module pages not decoded from absolute data offset")
	}
}

func TestLEShortLastPage(t *testing.T) {
	mod := &lxtest.Module{
		Kind: lx.KindLE,
		Objects: []lxtest.Object{{
			Base: 0x1000, VirtualSize: pageSize + 0x200, Flags: lx.ObjR,
			Pages: []lxtest.Page{
				{Encoding: lx.EncLegal, Data: fill(1, pageSize)},
				{Encoding: lx.EncLegal, Data: fill(2, 0x64)},
			},
		}},
	}
	m := load(t, mod.Bytes(), lxfmt.Options{})
	if m.Header.LastPageSize() != 0x64 {
		t.Fatalf("last page size = 0x%x, want 0x64", m.Header.LastPageSize())
	}
	data := m.Images[0].Data
	if len(data) != pageSize+0x200 {
		t.Fatalf("len = 0x%x", len(data))
	}
	if !bytes.Equal(data[pageSize:pageSize+0x64], fill(2, 0x64)) {
		t.Error("last page data mismatch")
	}
	if !bytes.Equal(data[pageSize+0x64:], make([]byte, 0x200-0x64)) {
		t.Error("last page not zero padded")
	}
}

func TestRangeExpansion(t *testing.T) {
	mod := &lxtest.Module{
		Objects: []lxtest.Object{{
			Base: 0x1000, VirtualSize: 4 * pageSize, Flags: lx.ObjR | lx.ObjW,
			Pages: []lxtest.Page{
				{Encoding: lx.EncLegal, Data: fill(0x11, pageSize)},
				{Encoding: lx.EncRange, Data: fill(0x22, pageSize)},
			},
		}},
	}
	m := load(t, mod.Bytes(), lxfmt.Options{})
	data := m.Images[0].Data
	if len(data) != 4*pageSize {
		t.Fatalf("len = 0x%x, want 0x%x", len(data), 4*pageSize)
	}
	want := append(fill(0x11, pageSize), fill(0x22, 3*pageSize)...)
	if !bytes.Equal(data, want) {
		t.Error("range page was not expanded over the rest of the object")
	}
}

func TestIteratedAndZeroPages(t *testing.T) {
	iter := append(lxtest.Iterated(0x100, []byte{0xde, 0xad}), lxtest.Iterated(8, []byte{0x90})...)
	mod := &lxtest.Module{
		PageShift: 2,
		Objects: []lxtest.Object{{
			Base: 0x1000, VirtualSize: 3 * pageSize, Flags: lx.ObjR | lx.ObjX,
			Pages: []lxtest.Page{
				{Encoding: lx.EncIterated, Data: iter},
				{Encoding: lx.EncZeroFilled},
				{Encoding: lx.EncLegal, Data: []byte("tail")},
			},
		}},
	}
	m := load(t, mod.Bytes(), lxfmt.Options{})
	data := m.Images[0].Data
	if !bytes.Equal(data[:0x200], bytes.Repeat([]byte{0xde, 0xad}, 0x100)) {
		t.Error("iterated run mismatch")
	}
	if !bytes.Equal(data[0x200:0x208], fill(0x90, 8)) {
		t.Error("second iterated run mismatch")
	}
	if !bytes.Equal(data[0x208:2*pageSize], make([]byte, 2*pageSize-0x208)) {
		t.Error("iterated underrun or zero page not zero filled")
	}
	if string(data[2*pageSize:2*pageSize+4]) != "tail" {
		t.Errorf("third page = %q", data[2*pageSize:2*pageSize+4])
	}
}

func TestLXIteratedPagesOffset(t *testing.T) {
	mod := &lxtest.Module{
		PageShift: 2,
		IterPages: true,
		Objects: []lxtest.Object{{
			Base: 0x1000, VirtualSize: 2 * pageSize, Flags: lx.ObjR | lx.ObjX,
			Pages: []lxtest.Page{
				{Encoding: lx.EncLegal, Data: fill(0xcc, pageSize)},
				{Encoding: lx.EncIterated, Data: lxtest.Iterated(4, []byte("ab"))},
			},
		}},
	}
	m := load(t, mod.Bytes(), lxfmt.Options{Mode: lxfmt.ModeStrict})
	h := m.Header
	if h.IterPagesOffset == 0 || h.IterPagesOffset == h.DataPagesOffset {
		t.Fatalf("iterated pages offset = 0x%x, data pages offset = 0x%x", h.IterPagesOffset, h.DataPagesOffset)
	}
	if m.Pages[1].Offset != int64(h.IterPagesOffset) {
		t.Errorf("iterated page offset = 0x%x, want 0x%x", m.Pages[1].Offset, h.IterPagesOffset)
	}
	if m.Pages[0].Offset != int64(h.DataPagesOffset) {
		t.Errorf("legal page offset = 0x%x, want 0x%x", m.Pages[0].Offset, h.DataPagesOffset)
	}
	data := m.Images[0].Data
	if !bytes.Equal(data[:pageSize], fill(0xcc, pageSize)) {
		t.Error("legal page mismatch")
	}
	if string(data[pageSize:pageSize+8]) != "abababab" {
		t.Errorf("iterated page = %q", data[pageSize:pageSize+8])
	}
	if !bytes.Equal(data[pageSize+8:], make([]byte, pageSize-8)) {
		t.Error("iterated underrun not zero filled")
	}
}

func TestVirtualSizeTruncates(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.Objects[0].VirtualSize = 0x800
	m := load(t, mod.Bytes(), lxfmt.Options{})
	if len(m.Images[0].Data) != 0x800 {
		t.Errorf("len = 0x%x, want 0x800", len(m.Images[0].Data))
	}
}

func TestVirtualSizeExtends(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.Objects[0].VirtualSize = 5 * pageSize
	m := load(t, mod.Bytes(), lxfmt.Options{})
	data := m.Images[0].Data
	if len(data) != 5*pageSize {
		t.Fatalf("len = 0x%x, want 0x%x", len(data), 5*pageSize)
	}
	if !bytes.Equal(data[2*pageSize:], make([]byte, 3*pageSize)) {
		t.Error("region past the last page is not zero")
	}
}

func TestSkippedObjects(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.Objects = append(mod.Objects,
		lxtest.Object{Base: 0x30000, VirtualSize: 0x1000, Flags: lx.ObjR | lx.ObjW}, // bss, no pages
		lxtest.Object{Base: 0x40000, VirtualSize: 0x1000, Flags: lx.ObjR | lx.ObjInvalid,
			Pages: []lxtest.Page{{Encoding: lx.EncLegal, Data: fill(3, 16)}}},
	)
	m := load(t, mod.Bytes(), lxfmt.Options{})
	if len(m.Images) != 1 || m.Images[0].Object != 0 {
		t.Fatalf("images = %d, want only object 1", len(m.Images))
	}
	skipped := 0
	for _, d := range m.Diags {
		if d.Kind == lxfmt.DiagSkipped {
			skipped++
		}
	}
	if skipped != 2 {
		t.Errorf("skipped diags = %d, want 2", skipped)
	}
}

func TestCorruptObjectIsolated(t *testing.T) {
	mod := &lxtest.Module{
		EIPObject: 2,
		Objects: []lxtest.Object{
			{Base: 0x1000, VirtualSize: pageSize, Flags: lx.ObjR,
				Pages: []lxtest.Page{{Encoding: lx.EncIterated, Data: lxtest.Iterated(0x2000, []byte{1})}}},
			{Base: 0x2000, VirtualSize: pageSize, Flags: lx.ObjR | lx.ObjX,
				Pages: []lxtest.Page{{Encoding: lx.EncLegal, Data: fill(0xcc, pageSize)}}},
		},
	}
	data := mod.Bytes()
	m := load(t, data, lxfmt.Options{Mode: lxfmt.ModeBestEffort})
	if len(m.Images) != 1 || m.Images[0].Object != 1 {
		t.Fatalf("want only object 2 loaded, got %d images", len(m.Images))
	}
	if len(m.Failed) != 1 || m.Failed[0].Object != 0 {
		t.Fatalf("failed = %+v", m.Failed)
	}
	if !errors.Is(m.Failed[0].Err, lx.ErrCorruptPageData) {
		t.Errorf("failure = %v, want ErrCorruptPageData", m.Failed[0].Err)
	}

	err := loadErr(data, lxfmt.Options{Mode: lxfmt.ModeStrict})
	if !errors.Is(err, lx.ErrCorruptPageData) {
		t.Errorf("strict: err = %v, want ErrCorruptPageData", err)
	}
}

func TestInvalidPageWarning(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.Objects[0].Pages[1] = lxtest.Page{Encoding: lx.EncInvalid}
	m := load(t, mod.Bytes(), lxfmt.Options{})
	if len(m.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(m.Images))
	}
	if !bytes.Equal(m.Images[0].Data[pageSize:], make([]byte, pageSize)) {
		t.Error("invalid page not zero filled")
	}
	found := false
	for _, d := range m.Diags {
		if d.Kind == lxfmt.DiagInvalidPage {
			found = true
		}
	}
	if !found {
		t.Error("no invalid page diagnostic")
	}
}

func TestPermissionsAndNames(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.Objects = append(mod.Objects,
		lxtest.Object{Base: 0x20000, VirtualSize: 16, Flags: lx.ObjR | lx.ObjW,
			Pages: []lxtest.Page{{Encoding: lx.EncLegal, Data: fill(1, 16)}}},
		lxtest.Object{Base: 0x30000, VirtualSize: 16, Flags: lx.ObjR | lx.ObjResource,
			Pages: []lxtest.Page{{Encoding: lx.EncLegal, Data: fill(2, 16)}}},
	)
	m := load(t, mod.Bytes(), lxfmt.Options{})
	want := []struct {
		name string
		perm string
	}{
		{"CODE1", "r-x"},
		{"DATA2", "rw-"},
		{"RSRC3", "r--"},
	}
	if len(m.Images) != len(want) {
		t.Fatalf("images = %d, want %d", len(m.Images), len(want))
	}
	for i, w := range want {
		img := m.Images[i]
		if img.Name() != w.name || img.Perm.String() != w.perm {
			t.Errorf("image %d = %s %s, want %s %s", i, img.Name(), img.Perm, w.name, w.perm)
		}
	}
}

func TestCustomFlagTable(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	data := mod.Bytes()
	l := lx.NewLoader(lxfmt.Options{})
	l.Flags.Executable = lx.ObjW
	m, err := l.Load(context.Background(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if m.Images[0].Perm != lx.PermR {
		t.Errorf("perm = %s, want r--", m.Images[0].Perm)
	}
}

func TestStructuralErrors(t *testing.T) {
	good := twoPageModule(lx.KindLX).Bytes()

	badEntry := twoPageModule(lx.KindLX)
	badEntry.EIPObject = 3

	overrun := twoPageModule(lx.KindLX)
	overrun.Objects[0].PageCount = 5

	overlap := twoPageModule(lx.KindLX)
	overlap.Objects = append(overlap.Objects, lxtest.Object{
		Base: 0x50000, VirtualSize: 16, Flags: lx.ObjR, FirstPage: 2, PageCount: 1,
	})

	noObjects := twoPageModule(lx.KindLX)
	noObjects.Objects = nil

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"unrecognized", append([]byte("XX"), good[2:]...), lx.ErrUnrecognizedFormat},
		{"embedded PE", append(lxtest.Stub(0x80), []byte("PE\x00\x00")...), lx.ErrUnrecognizedFormat},
		{"truncated header", good[:12], lx.ErrTruncatedHeader},
		{"embedded header past eof", lxtest.Stub(0x1000), lx.ErrTruncatedHeader},
		{"truncated object table", good[:lx.HeaderSize+10], lx.ErrTruncatedTable},
		{"truncated page table", good[:lx.HeaderSize+0x18+4], lx.ErrTruncatedTable},
		{"entry object out of range", badEntry.Bytes(), lx.ErrInvalidEntryPoint},
		{"page range past table", overrun.Bytes(), lx.ErrPageRange},
		{"overlapping pages", overlap.Bytes(), lx.ErrPageRange},
		{"no objects", noObjects.Bytes(), lx.ErrInvalidHeader},
	}
	for _, tt := range tests {
		err := loadErr(tt.data, lxfmt.Options{})
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
			continue
		}
		var fe *lx.FormatError
		if !errors.As(err, &fe) {
			t.Errorf("%s: %T does not carry a location", tt.name, err)
		}
	}
}

func TestNotApplicable(t *testing.T) {
	err := loadErr([]byte("XX not a module"), lxfmt.Options{})
	if !lx.IsNotApplicable(err) {
		t.Errorf("IsNotApplicable(%v) = false", err)
	}
	err = loadErr(twoPageModule(lx.KindLX).Bytes()[:12], lxfmt.Options{})
	if lx.IsNotApplicable(err) {
		t.Errorf("truncated module reported as not applicable: %v", err)
	}
}

func TestFormatErrorLocation(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.EIPObject = 9
	err := loadErr(mod.Bytes(), lxfmt.Options{})
	var fe *lx.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if fe.Struct != "header" || fe.Offset != 0x18 {
		t.Errorf("location = %s at 0x%x, want header at 0x18", fe.Struct, fe.Offset)
	}
	if !strings.Contains(err.Error(), "EIP object 9") {
		t.Errorf("message %q lacks detail", err.Error())
	}
}

func TestMaxBytes(t *testing.T) {
	m := load(t, twoPageModule(lx.KindLX).Bytes(), lxfmt.Options{MaxBytes: pageSize})
	if len(m.Images) != 0 || len(m.Failed) != 1 {
		t.Fatalf("images=%d failed=%d", len(m.Images), len(m.Failed))
	}
	if !errors.Is(m.Failed[0].Err, lx.ErrObjectTooLarge) {
		t.Errorf("failure = %v", m.Failed[0].Err)
	}
}

func TestBigEndianDiag(t *testing.T) {
	mod := twoPageModule(lx.KindLX)
	mod.ByteOrder = 1
	m := load(t, mod.Bytes(), lxfmt.Options{})
	if !m.Header.BigEndian() {
		t.Fatal("byte order flag not decoded")
	}
	if len(m.Diags) == 0 || m.Diags[0].Kind != lxfmt.DiagUnsupported {
		t.Errorf("diags = %v", m.Diags)
	}
}

func TestLoadCancelled(t *testing.T) {
	data := twoPageModule(lx.KindLX).Bytes()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := lx.NewLoader(lxfmt.Options{}).Load(ctx, bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod.exe")
	mod := twoPageModule(lx.KindLX)
	mod.Embedded = true
	if err := os.WriteFile(path, mod.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := lx.Open(path, lxfmt.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if m.Entry != 0x10010 {
		t.Errorf("entry = 0x%x", m.Entry)
	}

	if _, err := lx.Open(filepath.Join(t.TempDir(), "missing"), lxfmt.Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDumpText(t *testing.T) {
	m := load(t, twoPageModule(lx.KindLE).Bytes(), lxfmt.Options{})
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	m.DumpText(w, "")
	w.Flush()
	out := buf.String()
	for _, want := range []string{
		`Signature:`, `"LE"`, "80386", "OS/2", "Object 1:", "Page 2", "legal", "R X 32BIT",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func FuzzLoad(f *testing.F) {
	f.Add(twoPageModule(lx.KindLX).Bytes())
	f.Add(twoPageModule(lx.KindLE).Bytes())
	f.Add(append(lxtest.Stub(0x80), twoPageModule(lx.KindLX).Bytes()...))
	f.Add([]byte("LX"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := lx.Load(bytes.NewReader(data), int64(len(data)), lxfmt.Options{MaxBytes: 1 << 20})
		if err != nil {
			return
		}
		for i := range m.Images {
			img := &m.Images[i]
			if len(img.Data) != int(m.Objects[img.Object].VirtualSize) {
				t.Fatalf("image %d is %d bytes, virtual size %d",
					i, len(img.Data), m.Objects[img.Object].VirtualSize)
			}
		}
	})
}
