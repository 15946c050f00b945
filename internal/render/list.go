package render

import (
	"fmt"
	"sync"
)

// Row is one rendered entry of the code list.
type Row struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	// RemoveURL is the removal control for this row. It carries the row's
	// position at render time and the text it showed, so a stale click can
	// be detected.
	RemoveURL string `json:"removeUrl"`
}

// ListRenderer projects the code list into rows.
type ListRenderer struct {
	mu       sync.RWMutex
	basePath string
	rows     []Row
}

// NewListRenderer creates a renderer whose removal controls point under basePath.
func NewListRenderer(basePath string) *ListRenderer {
	return &ListRenderer{basePath: basePath, rows: []Row{}}
}

// Render replaces the current projection with one row per code.
func (r *ListRenderer) Render(codes []string) []Row {
	rows := make([]Row, len(codes))
	for i, code := range codes {
		rows[i] = Row{
			Index:     i,
			Text:      code,
			RemoveURL: fmt.Sprintf("%s/%d", r.basePath, i),
		}
	}

	r.mu.Lock()
	r.rows = rows
	r.mu.Unlock()
	return rows
}

// Rows returns the last rendered projection.
func (r *ListRenderer) Rows() []Row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Row{}, r.rows...)
}
