package lx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"lxload/internal/lxfmt"
)

// rec encodes one iterated record.
func rec(count uint16, data string) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:], count)
	binary.LittleEndian.PutUint16(b[2:], uint16(len(data)))
	return append(b, data...)
}

func TestUnpackUnderrunPads(t *testing.T) {
	dst := make([]byte, 16)
	if err := Unpack(dst, rec(3, "ab")); err != nil {
		t.Fatal(err)
	}
	want := append([]byte("ababab"), make([]byte, 10)...)
	if !bytes.Equal(dst, want) {
		t.Errorf("got %q, want %q", dst, want)
	}
}

func TestUnpackMultipleRuns(t *testing.T) {
	src := append(rec(2, "xy"), rec(4, "z")...)
	dst := make([]byte, 8)
	if err := Unpack(dst, src); err != nil {
		t.Fatal(err)
	}
	if string(dst) != "xyxyzzzz" {
		t.Errorf("got %q, want xyxyzzzz", dst)
	}
}

func TestUnpackOverrun(t *testing.T) {
	dst := make([]byte, 8)
	err := Unpack(dst, rec(5, "ab"))
	if !errors.Is(err, ErrCorruptPageData) {
		t.Fatalf("err = %v, want ErrCorruptPageData", err)
	}
}

func TestUnpackFullPage(t *testing.T) {
	// The page fills exactly; only a terminator or padding may follow.
	for _, tail := range [][]byte{nil, {0, 0, 0, 0}, {0, 0, 0, 0, 0xff}, {0, 0}} {
		dst := make([]byte, 4)
		if err := Unpack(dst, append(rec(2, "ab"), tail...)); err != nil {
			t.Errorf("tail % x: %v", tail, err)
		}
		if string(dst) != "abab" {
			t.Errorf("tail % x: got %q, want abab", tail, dst)
		}
	}
}

func TestUnpackRecordsPastFullPage(t *testing.T) {
	// Runs total 5 bytes for a 4-byte page.
	src := append(rec(2, "ab"), rec(1, "c")...)
	err := Unpack(make([]byte, 4), src)
	if !errors.Is(err, ErrCorruptPageData) {
		t.Fatalf("err = %v, want ErrCorruptPageData", err)
	}
}

func TestUnpackTruncatedRecord(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
	}{
		{"run past data", rec(1, "abcde")[:6]},
		{"partial header", []byte{1, 0, 2}},
	}
	for _, tt := range tests {
		err := Unpack(make([]byte, 32), tt.src)
		if !errors.Is(err, ErrCorruptPageData) {
			t.Errorf("%s: err = %v, want ErrCorruptPageData", tt.name, err)
		}
	}
}

func TestUnpackTerminator(t *testing.T) {
	src := append(rec(2, "q"), 0, 0, 0, 0, 0xff, 0xff)
	dst := make([]byte, 4)
	if err := Unpack(dst, src); err != nil {
		t.Fatal(err)
	}
	if string(dst) != "qq\x00\x00" {
		t.Errorf("got %q", dst)
	}
}

func TestDecodePageZeroFilled(t *testing.T) {
	// Offset and size are ignored: nothing is read from the empty source.
	c := lxfmt.NewBytesCursor(nil)
	p := &Page{Encoding: EncZeroFilled, Offset: 0x9999, Size: 0x77}
	out, err := DecodePage(c, p, 0x1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0x1000 {
		t.Fatalf("len = 0x%x, want 0x1000", len(out))
	}
	if !bytes.Equal(out, make([]byte, 0x1000)) {
		t.Error("zero-filled page has non-zero bytes")
	}
}

func TestDecodePageInvalidWarns(t *testing.T) {
	var diags lxfmt.Diags
	p := &Page{Index: 2, Encoding: EncInvalid, Entry: 0x200}
	out, err := DecodePage(lxfmt.NewBytesCursor(nil), p, 0x100, &diags)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0x100 {
		t.Errorf("len = 0x%x, want 0x100", len(out))
	}
	if diags.Len() != 1 || diags.Items()[0].Kind != lxfmt.DiagInvalidPage {
		t.Errorf("diags = %v", diags.Items())
	}
	if diags.Items()[0].Offset != 0x200 {
		t.Errorf("diag offset = 0x%x, want 0x200", diags.Items()[0].Offset)
	}
}

func TestDecodePageLegalPads(t *testing.T) {
	c := lxfmt.NewBytesCursor([]byte("....hello"))
	p := &Page{Encoding: EncLegal, Offset: 4, Size: 5}
	out, err := DecodePage(c, p, 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte("hello"), make([]byte, 11)...)
	if !bytes.Equal(out, want) {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestDecodePageErrors(t *testing.T) {
	data := append(rec(100, "ab"), make([]byte, 8)...)
	c := lxfmt.NewBytesCursor(data)
	tests := []struct {
		name string
		page Page
		want error
	}{
		{"iterated overrun", Page{Encoding: EncIterated, Size: 6}, ErrCorruptPageData},
		{"legal past eof", Page{Encoding: EncLegal, Offset: 10, Size: 16}, ErrCorruptPageData},
		{"legal too big", Page{Encoding: EncLegal, Size: 17}, ErrCorruptPageData},
		{"legal empty", Page{Encoding: EncLegal}, ErrCorruptPageData},
		{"exepack2", Page{Encoding: EncCompressed, Size: 4}, ErrUnsupportedPage},
	}
	for _, tt := range tests {
		_, err := DecodePage(c, &tt.page, 16, nil)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Errorf("%s: %T is not a *FormatError", tt.name, err)
		}
	}
}

func TestRangeRepeats(t *testing.T) {
	pages := func(encs ...Encoding) []Page {
		ps := make([]Page, len(encs))
		for i, e := range encs {
			ps[i].Encoding = e
		}
		return ps
	}
	tests := []struct {
		name  string
		pages []Page
		vsize uint32
		want  []int
	}{
		{"no range", pages(EncLegal, EncLegal), 0x3000, []int{1, 1}},
		{"single range", pages(EncRange), 0x3000, []int{3}},
		{"range after legal", pages(EncLegal, EncRange), 0x3800, []int{1, 3}},
		{"two ranges", pages(EncRange, EncLegal, EncRange), 0x6000, []int{2, 1, 3}},
		{"range already covers", pages(EncLegal, EncRange), 0x1000, []int{1, 1}},
	}
	for _, tt := range tests {
		got := rangeRepeats(tt.pages, tt.vsize, 0x1000)
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestCheckPageRanges(t *testing.T) {
	objs := []Object{
		{Index: 0, PageIndex: 0, PageCount: 2},
		{Index: 1, PageCount: 0},
		{Index: 2, PageIndex: 2, PageCount: 1},
	}
	if err := checkPageRanges(objs, 3); err != nil {
		t.Fatalf("disjoint ranges: %v", err)
	}
	if err := checkPageRanges(objs, 2); !errors.Is(err, ErrPageRange) {
		t.Errorf("range past table: %v, want ErrPageRange", err)
	}
	objs[2].PageIndex = 1
	if err := checkPageRanges(objs, 3); !errors.Is(err, ErrPageRange) {
		t.Errorf("overlap: %v, want ErrPageRange", err)
	}
}

func TestEncodingString(t *testing.T) {
	if EncIterated.String() != "iterated" {
		t.Errorf("EncIterated = %q", EncIterated.String())
	}
	if Encoding(9).String() != "encoding(9)" {
		t.Errorf("Encoding(9) = %q", Encoding(9).String())
	}
}
