// Package output writes lxload analysis results to files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lxload/internal/disasm"
	"lxload/internal/lxfmt"
)

// WriteModuleJSON writes module metadata to module.json.
func WriteModuleJSON(dir string, info *ModuleInfo) error {
	return writeJSON(filepath.Join(dir, "module.json"), info)
}

// WriteDiagnosticsJSON writes non-fatal decode issues to diagnostics.json.
func WriteDiagnosticsJSON(dir string, diags []lxfmt.Diag) error {
	if diags == nil {
		diags = []lxfmt.Diag{}
	}
	return writeJSON(filepath.Join(dir, "diagnostics.json"), diags)
}

// SymbolEntry represents a named code address.
type SymbolEntry struct {
	Address uint64 `json:"address"`
	Name    string `json:"name"`
	Size    uint64 `json:"size,omitempty"`
}

// WriteSymbolsJSON writes symbols to symbols.json.
func WriteSymbolsJSON(dir string, symbols []SymbolEntry) error {
	return writeJSON(filepath.Join(dir, "symbols.json"), symbols)
}

// WriteASM writes disassembled instructions to asm/<name>.txt.
func WriteASM(dir string, name string, insts []disasm.Inst, lookup disasm.SymbolLookup, annotators ...disasm.Annotator) error {
	path := filepath.Join(dir, "asm", name+".txt")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir asm: %w", err)
	}

	text := disasm.Format(insts, lookup, annotators...)
	return os.WriteFile(path, []byte(text), 0644)
}

// WriteObjectBin writes an object's memory image to objects/<name>.bin.
func WriteObjectBin(dir string, name string, data []byte) error {
	path := filepath.Join(dir, "objects", name+".bin")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir objects: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteDOT writes a Graphviz document to <dir>/<name>.dot.
func WriteDOT(dir string, name string, dot string) error {
	path := filepath.Join(dir, name+".dot")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, []byte(dot), 0644)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
