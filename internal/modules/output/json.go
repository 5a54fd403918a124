package output

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

// JSONOutput writes the rows as a JSON array, keys in header order.
type JSONOutput struct {
	w      io.Writer
	indent bool
}

// NewJSONOutput creates a JSON writer. With indent the array is
// pretty-printed with two spaces.
func NewJSONOutput(w io.Writer, indent bool) *JSONOutput {
	return &JSONOutput{w: w, indent: indent}
}

// Write encodes the table rows.
func (o *JSONOutput) Write(ctx context.Context, t *tabular.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := tabular.MarshalRows(t.Headers, t.Rows)
	if err != nil {
		return err
	}
	if o.indent {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		raw = buf.Bytes()
	}
	raw = append(raw, '\n')
	_, err = o.w.Write(raw)
	return err
}

var _ Module = (*JSONOutput)(nil)
