// Package notebook builds and inspects Jupyter notebooks in nbformat 4.
package notebook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	FormatMajor = 4
	FormatMinor = 5
)

// CellType is the nbformat cell_type value.
type CellType string

const (
	Markdown CellType = "markdown"
	Code     CellType = "code"
)

// Cell is one notebook cell. Source is stored as nbformat multiline lines.
type Cell struct {
	ID             string         `json:"id,omitempty"`
	Type           CellType       `json:"cell_type"`
	Metadata       map[string]any `json:"metadata"`
	Source         Source         `json:"source"`
	ExecutionCount *int           `json:"execution_count,omitempty"`
	Outputs        []any          `json:"outputs,omitempty"`
}

// Source is a cell body as nbformat multiline lines. A plain JSON string is
// also accepted when decoding.
type Source []string

// UnmarshalJSON accepts either a string or an array of strings.
func (s *Source) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = SplitSource(text)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*s = lines
	return nil
}

// Text returns the cell source joined back into one string.
func (c Cell) Text() string {
	return strings.Join(c.Source, "")
}

// Notebook is the top-level nbformat document.
type Notebook struct {
	Cells         []Cell         `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// New returns an empty Python 3 notebook titled title.
func New(title string) *Notebook {
	meta := map[string]any{
		"kernelspec": map[string]any{
			"display_name": "Python 3",
			"language":     "python",
			"name":         "python3",
		},
		"language_info": map[string]any{"name": "python"},
	}
	if t := strings.TrimSpace(title); t != "" {
		meta["title"] = t
	}
	return &Notebook{
		Cells:         []Cell{},
		Metadata:      meta,
		NBFormat:      FormatMajor,
		NBFormatMinor: FormatMinor,
	}
}

// AddMarkdown appends a markdown cell.
func (nb *Notebook) AddMarkdown(text string) *Notebook {
	nb.Cells = append(nb.Cells, Cell{
		ID:       cellID(),
		Type:     Markdown,
		Metadata: map[string]any{},
		Source:   SplitSource(text),
	})
	return nb
}

// AddCode appends an unexecuted code cell.
func (nb *Notebook) AddCode(text string) *Notebook {
	nb.Cells = append(nb.Cells, Cell{
		ID:       cellID(),
		Type:     Code,
		Metadata: map[string]any{},
		Source:   SplitSource(text),
		Outputs:  []any{},
	})
	return nb
}

// Len returns the number of cells.
func (nb *Notebook) Len() int { return len(nb.Cells) }

// Count returns the number of cells of kind.
func (nb *Notebook) Count(kind CellType) int {
	n := 0
	for _, c := range nb.Cells {
		if c.Type == kind {
			n++
		}
	}
	return n
}

// Marshal encodes the notebook the way Jupyter writes it: one-space indent,
// trailing newline, no HTML escaping.
func (nb *Notebook) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(nb); err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalJSON emits execution_count as null on code cells, which nbformat
// requires and omitempty would drop.
func (c Cell) MarshalJSON() ([]byte, error) {
	type plain Cell
	if c.Type != Code {
		out := plain(c)
		out.Metadata = nonNilMap(c.Metadata)
		out.Source = nonNilSlice(c.Source)
		out.ExecutionCount = nil
		out.Outputs = nil
		return marshalRaw(out)
	}
	outputs := c.Outputs
	if outputs == nil {
		outputs = []any{}
	}
	return marshalRaw(struct {
		ID             string         `json:"id,omitempty"`
		Type           CellType       `json:"cell_type"`
		Metadata       map[string]any `json:"metadata"`
		Source         Source         `json:"source"`
		ExecutionCount *int           `json:"execution_count"`
		Outputs        []any          `json:"outputs"`
	}{c.ID, c.Type, nonNilMap(c.Metadata), nonNilSlice(c.Source), c.ExecutionCount, outputs})
}

// Parse decodes and sanity-checks a notebook document.
func Parse(data []byte) (*Notebook, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("parse notebook: empty document")
	}
	var nb Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("parse notebook: %w", err)
	}
	if nb.NBFormat != FormatMajor {
		return nil, fmt.Errorf("parse notebook: unsupported nbformat %d", nb.NBFormat)
	}
	for i, c := range nb.Cells {
		switch c.Type {
		case Markdown, Code, "raw":
		default:
			return nil, fmt.Errorf("parse notebook: cell %d: unknown cell_type %q", i, c.Type)
		}
	}
	return &nb, nil
}

// SplitSource splits text into nbformat source lines, each keeping its
// trailing newline except the last.
func SplitSource(text string) Source {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return Source{}
	}
	return strings.SplitAfter(text, "\n")
}

func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func cellID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilSlice(s Source) Source {
	if s == nil {
		return Source{}
	}
	return s
}
