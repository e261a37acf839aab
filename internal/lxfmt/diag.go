// Package lxfmt provides the byte cursor and shared diagnostics used by the
// linear executable decoders.
package lxfmt

import "fmt"

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagTruncated   DiagKind = "truncated"
	DiagInvalidPage DiagKind = "invalid_page"
	DiagCorrupt     DiagKind = "corrupt"
	DiagUnsupported DiagKind = "unsupported"
	DiagSkipped     DiagKind = "skipped"
	DiagClamped     DiagKind = "clamped"
)

// Diag records a non-fatal issue encountered during decoding.
type Diag struct {
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Mode controls error handling behavior.
type Mode int

const (
	ModeBestEffort Mode = iota // skip the failing object, accumulate diags
	ModeStrict                 // first object or page error aborts the load
)

// Options controls decoding behavior across packages.
type Options struct {
	Mode     Mode
	MaxSteps int // instruction decode cap for disassembly; 0 = use default
	MaxBytes int // cap on a single object's virtual size; 0 = use default
}

// DefaultMaxSteps is the global default loop cap.
const DefaultMaxSteps = 10_000_000

// DefaultMaxBytes caps the memory image of one object. LE/LX modules are
// at most a few tens of megabytes in practice.
const DefaultMaxBytes = 256 << 20

func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}

func (o Options) EffectiveMaxBytes() int {
	if o.MaxBytes > 0 {
		return o.MaxBytes
	}
	return DefaultMaxBytes
}
