package output

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

// CSVOutput writes the header line followed by one record per row.
type CSVOutput struct {
	w io.Writer
}

// NewCSVOutput creates a CSV writer.
func NewCSVOutput(w io.Writer) *CSVOutput {
	return &CSVOutput{w: w}
}

// Write encodes table as CSV.
func (o *CSVOutput) Write(ctx context.Context, t *tabular.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := append([][]string{t.Headers}, t.Records()...)

	w := csv.NewWriter(o.w)
	if err := w.WriteAll(data); err != nil {
		return err
	}
	return w.Error()
}

var _ Module = (*CSVOutput)(nil)
