package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

const ruleScript = `
function generate(query, headers) {
  var q = query.toLowerCase();
  var out = [];
  console.log("translating", query, headers);
  var m = q.match(/more than (\d+)/);
  if (m && headers.indexOf("Units") >= 0) {
    out.push({header: "Units", operator: ">", value: Number(m[1])});
  }
  if (q.indexOf("north") >= 0) {
    out.push({header: "Region", operator: "equals", value: "North"});
  }
  return out;
}
`

func TestScriptGeneratorGenerate(t *testing.T) {
	g, err := NewScriptGenerator(ScriptConfig{Script: ruleScript})
	if err != nil {
		t.Fatalf("NewScriptGenerator() error = %v", err)
	}

	tests := []struct {
		query string
		want  []tabular.FilterCondition
	}{
		{"more than 100 in the North", []tabular.FilterCondition{
			{Header: "Units", Operator: tabular.OpGreaterThan, Value: tabular.Number(100)},
			{Header: "Region", Operator: tabular.OpEquals, Value: tabular.String("North")},
		}},
		{"everything", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := g.Generate(context.Background(), tt.query, headers)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i].Header != tt.want[i].Header || got[i].Operator != tt.want[i].Operator || !got[i].Value.Equal(tt.want[i].Value) {
					t.Errorf("condition %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScriptGeneratorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.js")
	if err := os.WriteFile(path, []byte(ruleScript), 0o600); err != nil {
		t.Fatal(err)
	}
	g, err := NewScriptGenerator(ScriptConfig{ScriptFile: path})
	if err != nil {
		t.Fatalf("NewScriptGenerator() error = %v", err)
	}
	got, err := g.Generate(context.Background(), "north", headers)
	if err != nil || len(got) != 1 {
		t.Fatalf("Generate() = %v, %v", got, err)
	}
}

func TestNewScriptGeneratorErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ScriptConfig
		target error
	}{
		{"empty", ScriptConfig{Script: "  \n"}, ErrMissingScript},
		{"both", ScriptConfig{Script: "x", ScriptFile: "y.js"}, ErrScriptAndFileExclusive},
		{"too long", ScriptConfig{Script: "//" + strings.Repeat("x", MaxScriptLength)}, ErrScriptTooLong},
		{"no generate", ScriptConfig{Script: "function other() {}"}, ErrMissingGenerateFunc},
		{"not a function", ScriptConfig{Script: "var generate = 42;"}, ErrGenerateNotFunction},
		{"missing file", ScriptConfig{ScriptFile: filepath.Join(os.TempDir(), "does-not-exist.js")}, os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScriptGenerator(tt.config)
			if !errors.Is(err, tt.target) {
				t.Errorf("got %v, want %v", err, tt.target)
			}
		})
	}

	if _, err := NewScriptGenerator(ScriptConfig{Script: "function generate( {"}); err == nil {
		t.Error("expected compilation error")
	}
}

func TestScriptGeneratorFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"throws", `function generate() { throw new Error("no rules for that"); }`, "no rules for that"},
		{"returns object", `function generate() { return {header: "A"}; }`, "must return an array"},
		{"returns undefined", `function generate() {}`, "null or undefined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewScriptGenerator(ScriptConfig{Script: tt.script})
			if err != nil {
				t.Fatal(err)
			}
			_, err = g.Generate(context.Background(), "q", headers)
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("expected *UpstreamError, got %v", err)
			}
			if upstream.Code != ErrCodeScriptFailed || !strings.Contains(upstream.Error(), tt.want) {
				t.Errorf("unexpected error %+v", upstream)
			}
		})
	}
}

func TestScriptGeneratorInterruptedByContext(t *testing.T) {
	g, err := NewScriptGenerator(ScriptConfig{Script: `function generate() { while (true) {} }`})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = g.Generate(ctx, "q", headers)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestStaticAndFuncGenerators(t *testing.T) {
	conds := []tabular.FilterCondition{{Header: "Region", Operator: tabular.OpEquals, Value: tabular.String("North")}}
	s := NewStaticGenerator(conds)
	conds[0].Header = "mutated"

	got, err := s.Generate(context.Background(), "ignored", nil)
	if err != nil || len(got) != 1 || got[0].Header != "Region" {
		t.Fatalf("StaticGenerator.Generate() = %v, %v", got, err)
	}

	var seen []string
	f := GeneratorFunc(func(_ context.Context, q string, h []string) ([]tabular.FilterCondition, error) {
		seen = append(append(seen, q), h...)
		return nil, nil
	})
	if _, err := f.Generate(context.Background(), "q", []string{"A"}); err != nil {
		t.Fatal(err)
	}
	if strings.Join(seen, ",") != "q,A" {
		t.Errorf("GeneratorFunc saw %v", seen)
	}
}
