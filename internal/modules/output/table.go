package output

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

// NoRowsMessage is rendered in place of an empty table.
const NoRowsMessage = "No matching rows"

// TableOutput renders an aligned text table.
type TableOutput struct {
	w io.Writer
}

// NewTableOutput creates a table renderer writing to w.
func NewTableOutput(w io.Writer) *TableOutput {
	return &TableOutput{w: w}
}

// Write renders the table with its headers in order and a row-count footer.
func (o *TableOutput) Write(ctx context.Context, t *tabular.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Len() == 0 {
		_, err := fmt.Fprintln(o.w, NoRowsMessage)
		return err
	}

	header := make(table.Row, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}

	tw := table.NewWriter()
	tw.AppendHeader(header)
	for _, rec := range t.Records() {
		row := make(table.Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		tw.AppendRow(row)
	}
	tw.AppendSeparator()
	tw.AppendFooter(table.Row{rowCount(t.Len())})
	tw.SetStyle(table.StyleLight)
	tw.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	tw.Style().Options.DrawBorder = false

	if _, err := io.WriteString(o.w, tw.Render()+"\n"); err != nil {
		return err
	}
	return nil
}

func rowCount(n int) string {
	if n == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", n)
}

var _ Module = (*TableOutput)(nil)
