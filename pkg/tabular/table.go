package tabular

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row maps each header to the cell value of that column.
type Row map[string]Value

// Table is an ordered header list plus the rows that conform to it.
// Tables are never mutated after construction; filtering produces new Tables
// that share the header slice.
type Table struct {
	// Headers is the ordered list of column names
	Headers []string `json:"headers"`

	// Rows holds the data rows in input order
	Rows []Row `json:"rows"`
}

// NewTable builds a Table from headers and rows.
func NewTable(headers []string, rows []Row) *Table {
	if rows == nil {
		rows = []Row{}
	}
	return &Table{Headers: headers, Rows: rows}
}

// WithRows returns a new Table with the same header list and the given rows.
func (t *Table) WithRows(rows []Row) *Table {
	return NewTable(t.Headers, rows)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasHeader reports whether name is one of the table's headers.
func (t *Table) HasHeader(name string) bool {
	return t.HeaderIndex(name) >= 0
}

// HeaderIndex returns the position of name in the header list, or -1.
func (t *Table) HeaderIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Records returns the rows as ordered slices of canonical strings, one slice
// per row, following the header order.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make([]string, len(t.Headers))
		for i, h := range t.Headers {
			rec[i] = row[h].String()
		}
		out = append(out, rec)
	}
	return out
}

// MarshalJSON encodes the table with each row's keys in header order.
func (t Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"headers":`)
	headers := t.Headers
	if headers == nil {
		headers = []string{}
	}
	hb, err := json.Marshal(headers)
	if err != nil {
		return nil, err
	}
	buf.Write(hb)
	buf.WriteString(`,"rows":`)
	rb, err := MarshalRows(t.Headers, t.Rows)
	if err != nil {
		return nil, err
	}
	buf.Write(rb)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalRows encodes rows as a JSON array of objects whose keys follow the
// given header order.
func MarshalRows(headers []string, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeRow(&buf, headers, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeRow(buf *bytes.Buffer, headers []string, row Row) error {
	buf.WriteByte('{')
	for j, h := range headers {
		if j > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(h)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := row[h].MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return nil
}
