package tabular_test

import (
	"encoding/json"
	"testing"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"0", 0, true},
		{"12", 12, true},
		{"-3.5", -3.5, true},
		{"+4", 4, true},
		{".5", 0.5, true},
		{"5.", 5, true},
		{"1e3", 1000, true},
		{"2.5E-1", 0.25, true},
		{"", 0, false},
		{"12a", 0, false},
		{"Infinity", 0, false},
		{"NaN", 0, false},
		{"0x10", 0, false},
		{"1,000", 0, false},
		{"1e400", 0, false},
		{" 12", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := tabular.ParseNumber(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		name string
		v    tabular.Value
		want string
	}{
		{"integer", tabular.Number(150), "150"},
		{"fraction", tabular.Number(2.5), "2.5"},
		{"negative zero", tabular.Number(-0.0 * 1), "0"},
		{"large", tabular.Number(1e21), "1000000000000000000000"},
		{"string", tabular.String("North"), "North"},
		{"empty", tabular.String(""), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValueEqualIsKindStrict(t *testing.T) {
	if tabular.Number(5).Equal(tabular.String("5")) {
		t.Error("Number(5) must not equal String(\"5\")")
	}
	if !tabular.Number(5).Equal(tabular.Number(5)) {
		t.Error("Number(5) must equal Number(5)")
	}
	if !tabular.String("a").Equal(tabular.String("a")) {
		t.Error("String(a) must equal String(a)")
	}
	var zero tabular.Value
	if !zero.Equal(tabular.String("")) {
		t.Error("zero Value must equal String(\"\")")
	}
}

func TestValueAsNumber(t *testing.T) {
	if f, ok := tabular.String(" 42 ").AsNumber(); !ok || f != 42 {
		t.Errorf("AsNumber() = %v, %v; want 42, true", f, ok)
	}
	if _, ok := tabular.String("abc").AsNumber(); ok {
		t.Error("AsNumber() on non-numeric string should fail")
	}
	if f, ok := tabular.Number(7).AsNumber(); !ok || f != 7 {
		t.Errorf("AsNumber() = %v, %v; want 7, true", f, ok)
	}
}

func TestValueJSON(t *testing.T) {
	var v tabular.Value
	if err := json.Unmarshal([]byte(`12.5`), &v); err != nil {
		t.Fatalf("Unmarshal number: %v", err)
	}
	if !v.IsNumber() || v.Num() != 12.5 {
		t.Errorf("expected Number(12.5), got %#v", v)
	}
	if err := json.Unmarshal([]byte(`"12.5"`), &v); err != nil {
		t.Fatalf("Unmarshal string: %v", err)
	}
	if v.IsNumber() || v.Str() != "12.5" {
		t.Errorf("expected String(\"12.5\"), got %#v", v)
	}

	for _, bad := range []string{`true`, `null`, `{}`, `[1]`} {
		if err := json.Unmarshal([]byte(bad), &v); err == nil {
			t.Errorf("Unmarshal(%s) should fail", bad)
		}
	}

	out, err := json.Marshal([]tabular.Value{tabular.Number(3), tabular.String("x")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `[3,"x"]` {
		t.Errorf("Marshal = %s, want [3,\"x\"]", out)
	}
}

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in      string
		want    tabular.Operator
		wantErr bool
	}{
		{"equals", tabular.OpEquals, false},
		{"===", tabular.OpEquals, false},
		{"!==", tabular.OpNotEquals, false},
		{">", tabular.OpGreaterThan, false},
		{"<", tabular.OpLessThan, false},
		{">=", tabular.OpGreaterOrEqual, false},
		{"<=", tabular.OpLessOrEqual, false},
		{"Contains", tabular.OpContains, false},
		{"!contains", tabular.OpNotContains, false},
		{" not-contains ", tabular.OpNotContains, false},
		{"like", tabular.OpInvalid, true},
		{"", tabular.OpInvalid, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := tabular.ParseOperator(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOperator(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOperator(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilterConditionJSON(t *testing.T) {
	var cond tabular.FilterCondition
	raw := `{"header":"Units","operator":">","value":100}`
	if err := json.Unmarshal([]byte(raw), &cond); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cond.Header != "Units" || cond.Operator != tabular.OpGreaterThan || !cond.Value.Equal(tabular.Number(100)) {
		t.Errorf("unexpected condition %+v", cond)
	}

	out, err := json.Marshal(cond)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"header":"Units","operator":"greater-than","value":100}`
	if string(out) != want {
		t.Errorf("Marshal = %s, want %s", out, want)
	}

	if err := json.Unmarshal([]byte(`{"header":"A","operator":"~","value":1}`), &cond); err == nil {
		t.Error("expected error for unknown operator")
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in      string
		want    tabular.FilterCondition
		wantErr bool
	}{
		{
			in:   "Units > 100",
			want: tabular.FilterCondition{Header: "Units", Operator: tabular.OpGreaterThan, Value: tabular.Number(100)},
		},
		{
			in:   `Region equals "North"`,
			want: tabular.FilterCondition{Header: "Region", Operator: tabular.OpEquals, Value: tabular.String("North")},
		},
		{
			in:   `"Product Name" contains gadget pro`,
			want: tabular.FilterCondition{Header: "Product Name", Operator: tabular.OpContains, Value: tabular.String("gadget pro")},
		},
		{
			in:   `Code equals "5"`,
			want: tabular.FilterCondition{Header: "Code", Operator: tabular.OpEquals, Value: tabular.String("5")},
		},
		{
			in:   "Notes equals",
			want: tabular.FilterCondition{Header: "Notes", Operator: tabular.OpEquals, Value: tabular.String("")},
		},
		{in: "", wantErr: true},
		{in: "Units", wantErr: true},
		{in: "Units ~ 3", wantErr: true},
		{in: `"Units > 3`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := tabular.ParseCondition(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCondition(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Header != tt.want.Header || got.Operator != tt.want.Operator || !got.Value.Equal(tt.want.Value) {
				t.Errorf("ParseCondition(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTableMarshalKeepsHeaderOrder(t *testing.T) {
	table := tabular.NewTable(
		[]string{"Product", "Units", "Region"},
		[]tabular.Row{
			{"Region": tabular.String("North"), "Units": tabular.Number(150), "Product": tabular.String("Widget")},
		},
	)
	out, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"headers":["Product","Units","Region"],"rows":[{"Product":"Widget","Units":150,"Region":"North"}]}`
	if string(out) != want {
		t.Errorf("Marshal = %s\nwant      %s", out, want)
	}

	var decoded tabular.Table
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Len() != 1 || !decoded.Rows[0]["Units"].Equal(tabular.Number(150)) {
		t.Errorf("unexpected decoded table %+v", decoded)
	}
}

func TestTableWithRowsSharesHeaders(t *testing.T) {
	table := tabular.NewTable([]string{"A"}, nil)
	sub := table.WithRows([]tabular.Row{{"A": tabular.Number(1)}})
	if &sub.Headers[0] != &table.Headers[0] {
		t.Error("WithRows must share the header slice")
	}
	if table.Len() != 0 || sub.Len() != 1 {
		t.Errorf("Len() = %d/%d, want 0/1", table.Len(), sub.Len())
	}
	if !table.HasHeader("A") || table.HasHeader("B") {
		t.Error("HasHeader mismatch")
	}
	recs := sub.Records()
	if len(recs) != 1 || recs[0][0] != "1" {
		t.Errorf("Records() = %v", recs)
	}
}
