package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONL writes one JSON record per line.
type JSONL struct {
	f   *os.File
	enc *json.Encoder
	n   int
}

// CreateJSONL creates (or truncates) the file at path.
func CreateJSONL(path string) (*JSONL, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("output: create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONL{f: f, enc: enc}, nil
}

// Write appends one record.
func (w *JSONL) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("output: write %s: %w", w.f.Name(), err)
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *JSONL) Count() int { return w.n }

// Path returns the file name.
func (w *JSONL) Path() string { return w.f.Name() }

// Close closes the underlying file.
func (w *JSONL) Close() error { return w.f.Close() }

// ReadJSONL reads a JSONL file into a slice of T.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []T
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return records, fmt.Errorf("line %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
