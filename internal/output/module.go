package output

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lxload/internal/lx"
	"lxload/internal/lxfmt"
)

// ModuleInfo is the JSON form of a decoded module.
type ModuleInfo struct {
	File         string         `json:"file,omitempty"`
	Kind         string         `json:"kind"`
	Embedded     bool           `json:"embedded"`
	HeaderOffset string         `json:"header_offset"`
	CPU          string         `json:"cpu"`
	OS           string         `json:"os"`
	ModuleType   string         `json:"module_type"`
	PageSize     uint32         `json:"page_size"`
	NumPages     int            `json:"num_pages"`
	Entry        string         `json:"entry"`
	Stack        string         `json:"stack,omitempty"`
	Objects      []ObjectInfo   `json:"objects"`
	Failed       []FailureInfo  `json:"failed,omitempty"`
	Diags        []lxfmt.Diag   `json:"diags,omitempty"`
	Encodings    map[string]int `json:"encodings"` // page count per encoding
}

// ObjectInfo describes one object table entry and its image.
type ObjectInfo struct {
	Number      int    `json:"number"`
	Name        string `json:"name,omitempty"` // block name; empty when not loaded
	Base        string `json:"base"`
	VirtualSize uint32 `json:"virtual_size"`
	Flags       string `json:"flags"`
	Perm        string `json:"perm"`
	FirstPage   int    `json:"first_page,omitempty"` // 1-based, 0 when the object owns no pages
	Pages       int    `json:"pages"`
	Loaded      bool   `json:"loaded"`
	SHA256      string `json:"sha256,omitempty"`
}

// FailureInfo names an object that did not load.
type FailureInfo struct {
	Object int    `json:"object"` // 1-based
	Error  string `json:"error"`
}

// Summarize builds the JSON form of m.
func Summarize(m *lx.Module, flags lx.FlagTable) *ModuleInfo {
	h := m.Header
	info := &ModuleInfo{
		Kind:         h.Kind.String(),
		Embedded:     m.Embedded,
		HeaderOffset: fmt.Sprintf("0x%x", m.HeaderOffset),
		CPU:          lx.CPUName(h.CPUType),
		OS:           lx.OSName(h.OSType),
		ModuleType:   lx.ModuleType(h.ModuleFlags),
		PageSize:     h.PageSize,
		NumPages:     len(m.Pages),
		Entry:        fmt.Sprintf("0x%08x", m.Entry),
		Diags:        m.Diags,
		Encodings:    make(map[string]int),
	}
	if m.Stack != 0 {
		info.Stack = fmt.Sprintf("0x%08x", m.Stack)
	}
	for i := range m.Pages {
		info.Encodings[m.Pages[i].Encoding.String()]++
	}
	for i := range m.Objects {
		o := &m.Objects[i]
		oi := ObjectInfo{
			Number:      o.Number(),
			Base:        fmt.Sprintf("0x%08x", o.Base),
			VirtualSize: o.VirtualSize,
			Flags:       fmt.Sprintf("0x%04x", uint32(o.Flags)),
			Perm:        flags.Perm(o.Flags).String(),
			Pages:       o.PageCount,
		}
		if o.PageCount > 0 {
			oi.FirstPage = o.PageIndex + 1
		}
		if img := m.Image(i); img != nil {
			sum := sha256.Sum256(img.Data)
			oi.Name = img.Name()
			oi.Loaded = true
			oi.SHA256 = hex.EncodeToString(sum[:])
		}
		info.Objects = append(info.Objects, oi)
	}
	for _, f := range m.Failed {
		info.Failed = append(info.Failed, FailureInfo{Object: f.Object + 1, Error: f.Err.Error()})
	}
	return info
}
