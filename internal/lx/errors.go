package lx

import (
	"errors"
	"fmt"
)

var (
	ErrUnrecognizedFormat = errors.New("lx: unrecognized format")
	ErrTruncatedHeader    = errors.New("lx: truncated header")
	ErrInvalidHeader      = errors.New("lx: invalid header")
	ErrTruncatedTable     = errors.New("lx: truncated table")
	ErrInvalidEntryPoint  = errors.New("lx: invalid entry point")
	ErrPageRange          = errors.New("lx: invalid page range")
	ErrCorruptPageData    = errors.New("lx: corrupt page data")
	ErrInvalidPage        = errors.New("lx: invalid page")
	ErrUnsupportedPage    = errors.New("lx: unsupported page encoding")
	ErrObjectTooLarge     = errors.New("lx: object too large")
)

// A FormatError locates a decoding failure within the raw file. Struct names
// the structure being decoded ("header", "object table", "object 2 page 3")
// and Offset is the absolute file offset of that structure.
type FormatError struct {
	Struct string
	Offset int64
	Err    error
	Msg    string
}

func (e *FormatError) Error() string {
	s := fmt.Sprintf("%s at 0x%x: %v", e.Struct, e.Offset, e.Err)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(what string, off int64, err error) error {
	return &FormatError{Struct: what, Offset: off, Err: err}
}

func formatErrf(what string, off int64, err error, format string, a ...any) error {
	return &FormatError{Struct: what, Offset: off, Err: err, Msg: fmt.Sprintf(format, a...)}
}
