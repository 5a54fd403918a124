package filter

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

func salesTable() *tabular.Table {
	return tabular.NewTable(
		[]string{"Region", "Units", "Product"},
		[]tabular.Row{
			{"Region": tabular.String("North"), "Units": tabular.Number(150), "Product": tabular.String("Widget Pro")},
			{"Region": tabular.String("South"), "Units": tabular.Number(80), "Product": tabular.String("Gadget")},
			{"Region": tabular.String("North"), "Units": tabular.Number(40), "Product": tabular.String("widget")},
			{"Region": tabular.String("East"), "Units": tabular.String("n/a"), "Product": tabular.String("Gizmo 5")},
			{"Region": tabular.String("West"), "Units": tabular.String(" 120 "), "Product": tabular.String("")},
		},
	)
}

func cond(header string, op tabular.Operator, v tabular.Value) tabular.FilterCondition {
	return tabular.FilterCondition{Header: header, Operator: op, Value: v}
}

func regions(t *tabular.Table) []string {
	out := make([]string, 0, t.Len())
	for _, r := range t.Rows {
		out = append(out, r["Region"].String()+"/"+r["Units"].String())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEvaluateCombinedConditions(t *testing.T) {
	table := tabular.NewTable(
		[]string{"Region", "Units"},
		[]tabular.Row{
			{"Region": tabular.String("North"), "Units": tabular.Number(150)},
			{"Region": tabular.String("South"), "Units": tabular.Number(80)},
			{"Region": tabular.String("North"), "Units": tabular.Number(40)},
		},
	)
	out, err := Evaluate(table, []tabular.FilterCondition{
		cond("Region", tabular.OpEquals, tabular.String("North")),
		cond("Units", tabular.OpGreaterThan, tabular.Number(100)),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := regions(out); !equalStrings(got, []string{"North/150"}) {
		t.Errorf("got %v, want [North/150]", got)
	}
}

func TestEvaluateOperators(t *testing.T) {
	tests := []struct {
		name string
		cond tabular.FilterCondition
		want []string
	}{
		{"equals string", cond("Region", tabular.OpEquals, tabular.String("North")), []string{"North/150", "North/40"}},
		{"equals is case sensitive", cond("Region", tabular.OpEquals, tabular.String("north")), []string{}},
		{"equals number", cond("Units", tabular.OpEquals, tabular.Number(80)), []string{"South/80"}},
		{"equals numeric string does not match number", cond("Units", tabular.OpEquals, tabular.String("80")), []string{}},
		{"not-equals", cond("Region", tabular.OpNotEquals, tabular.String("North")), []string{"South/80", "East/n/a", "West/ 120 "}},
		{"greater-than", cond("Units", tabular.OpGreaterThan, tabular.Number(80)), []string{"North/150", "West/ 120 "}},
		{"less-than", cond("Units", tabular.OpLessThan, tabular.Number(80)), []string{"North/40"}},
		{"greater-or-equal", cond("Units", tabular.OpGreaterOrEqual, tabular.Number(80)), []string{"North/150", "South/80", "West/ 120 "}},
		{"less-or-equal", cond("Units", tabular.OpLessOrEqual, tabular.Number(80)), []string{"South/80", "North/40"}},
		{"comparison with numeric string expected", cond("Units", tabular.OpGreaterThan, tabular.String("100")), []string{"North/150", "West/ 120 "}},
		{"comparison with non-numeric expected", cond("Units", tabular.OpGreaterThan, tabular.String("lots")), []string{}},
		{"comparison on string column", cond("Region", tabular.OpGreaterThan, tabular.Number(0)), []string{}},
		{"contains case-insensitive", cond("Product", tabular.OpContains, tabular.String("WIDGET")), []string{"North/150", "North/40"}},
		{"contains number stringified", cond("Product", tabular.OpContains, tabular.Number(5)), []string{"East/n/a"}},
		{"contains on number column", cond("Units", tabular.OpContains, tabular.String("5")), []string{"North/150"}},
		{"contains empty matches all", cond("Product", tabular.OpContains, tabular.String("")), []string{"North/150", "South/80", "North/40", "East/n/a", "West/ 120 "}},
		{"not-contains", cond("Product", tabular.OpNotContains, tabular.String("widget")), []string{"South/80", "East/n/a", "West/ 120 "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Evaluate(salesTable(), []tabular.FilterCondition{tt.cond})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got := regions(out); !equalStrings(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateUnknownHeader(t *testing.T) {
	table := salesTable()
	_, err := Evaluate(table, []tabular.FilterCondition{
		cond("Region", tabular.OpEquals, tabular.String("North")),
		cond("Area", tabular.OpEquals, tabular.String("x")),
		cond("Zone", tabular.OpEquals, tabular.String("y")),
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var fe *FilterError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FilterError, got %T", err)
	}
	if fe.Header != "Area" || fe.ConditionIndex != 1 || fe.Code != ErrCodeUnknownHeader {
		t.Errorf("FilterError = %+v, want header Area at index 1", fe)
	}
	if fe.Error() != "unknown header: Area" {
		t.Errorf("Error() = %q", fe.Error())
	}
	if !errors.Is(err, ErrUnknownHeader) {
		t.Error("errors.Is(err, ErrUnknownHeader) should be true")
	}
	if fe.HTTPStatus() != http.StatusUnprocessableEntity {
		t.Errorf("HTTPStatus() = %d", fe.HTTPStatus())
	}
}

func TestEvaluateUnknownOperator(t *testing.T) {
	_, err := Evaluate(salesTable(), []tabular.FilterCondition{
		{Header: "Region", Operator: tabular.OpInvalid, Value: tabular.String("x")},
	})
	if !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestEvaluateValidatesBeforeEmptyTable(t *testing.T) {
	empty := tabular.NewTable([]string{"Region"}, nil)
	if _, err := Evaluate(empty, []tabular.FilterCondition{cond("Area", tabular.OpEquals, tabular.String("x"))}); err == nil {
		t.Error("unknown header must fail even with no rows")
	}
}

func TestEvaluateIdentity(t *testing.T) {
	table := salesTable()
	out, err := Evaluate(table, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out != table {
		t.Error("empty conditions must return the input table")
	}
	out, err = Evaluate(table, []tabular.FilterCondition{})
	if err != nil || out != table {
		t.Errorf("empty slice must also be identity, err = %v", err)
	}
}

func TestEvaluateZeroRowsIsNotError(t *testing.T) {
	out, err := Evaluate(salesTable(), []tabular.FilterCondition{cond("Region", tabular.OpEquals, tabular.String("Mars"))})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out == nil || out.Len() != 0 {
		t.Fatalf("expected empty table, got %v", out)
	}
	if len(out.Headers) != 3 {
		t.Errorf("empty result must keep headers, got %v", out.Headers)
	}
}

func TestEvaluateSharesHeadersAndDoesNotMutate(t *testing.T) {
	table := salesTable()
	before := table.Len()
	out, err := Evaluate(table, []tabular.FilterCondition{cond("Region", tabular.OpEquals, tabular.String("North"))})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if &out.Headers[0] != &table.Headers[0] {
		t.Error("result must share the header list")
	}
	if table.Len() != before {
		t.Error("input table was mutated")
	}
}

func TestEqualsTypeStrictness(t *testing.T) {
	table := salesTable()
	for i, row := range table.Rows {
		for _, h := range table.Headers {
			v := row[h]
			out, err := Evaluate(table, []tabular.FilterCondition{cond(h, tabular.OpEquals, v)})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			found := false
			for _, r := range out.Rows {
				if r["Region"].Equal(row["Region"]) && r["Units"].Equal(row["Units"]) {
					found = true
				}
			}
			if !found {
				t.Errorf("row %d not included by equals on its own %s value", i, h)
			}

			if v.IsNumber() {
				flipped, _ := Evaluate(table, []tabular.FilterCondition{cond(h, tabular.OpEquals, tabular.String(v.String()))})
				for _, r := range flipped.Rows {
					if r[h].Equal(v) {
						t.Errorf("string %q must not match number %v", v.String(), v)
					}
				}
			}
		}
	}
}

func TestContainsPartition(t *testing.T) {
	table := salesTable()
	for _, needle := range []string{"widget", "G", "5", "", "zzz"} {
		in, err := Evaluate(table, []tabular.FilterCondition{cond("Product", tabular.OpContains, tabular.String(needle))})
		if err != nil {
			t.Fatal(err)
		}
		out, err := Evaluate(table, []tabular.FilterCondition{cond("Product", tabular.OpNotContains, tabular.String(needle))})
		if err != nil {
			t.Fatal(err)
		}
		if in.Len()+out.Len() != table.Len() {
			t.Errorf("needle %q: %d + %d != %d", needle, in.Len(), out.Len(), table.Len())
		}
		seen := map[string]bool{}
		for _, r := range in.Rows {
			seen[r["Region"].String()+r["Units"].String()] = true
		}
		for _, r := range out.Rows {
			if seen[r["Region"].String()+r["Units"].String()] {
				t.Errorf("needle %q: row %v in both partitions", needle, r)
			}
		}
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	conds := []tabular.FilterCondition{
		cond("Units", tabular.OpGreaterOrEqual, tabular.Number(50)),
		cond("Product", tabular.OpNotContains, tabular.String("gizmo")),
	}
	once, err := Evaluate(salesTable(), conds)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Evaluate(once, conds)
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(regions(once), regions(twice)) {
		t.Errorf("not idempotent: %v vs %v", regions(once), regions(twice))
	}
}

func TestAndShortCircuits(t *testing.T) {
	calls := 0
	never := func(tabular.Row) bool { calls++; return true }
	p := And(func(tabular.Row) bool { return false }, never)
	if p(tabular.Row{}) {
		t.Error("And should be false")
	}
	if calls != 0 {
		t.Error("And should short-circuit")
	}
	if !And()(tabular.Row{}) {
		t.Error("empty And should accept")
	}
}

func TestCompileInvalidOperator(t *testing.T) {
	if Compile(tabular.FilterCondition{Header: "A"}) != nil {
		t.Error("Compile should return nil for the invalid operator")
	}
}

func TestConditionModuleAndChain(t *testing.T) {
	chain := Chain{
		NewConditionModule([]tabular.FilterCondition{cond("Region", tabular.OpEquals, tabular.String("North"))}),
		NewConditionModule([]tabular.FilterCondition{cond("Units", tabular.OpLessThan, tabular.Number(100))}),
	}
	out, err := chain.Process(context.Background(), salesTable())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := regions(out); !equalStrings(got, []string{"North/40"}) {
		t.Errorf("got %v, want [North/40]", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := chain.Process(ctx, salesTable()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
