package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/csvquerygenie/genie/internal/errhandling"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// fakeModel serves chat completions from a list of canned replies, one per
// call, and records every request it receives.
type fakeModel struct {
	mu       sync.Mutex
	replies  []func(w http.ResponseWriter)
	requests []chatRequest
	auth     []string
}

func (f *fakeModel) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		n := len(f.requests)
		f.mu.Unlock()

		if n > len(f.replies) {
			t.Errorf("unexpected call %d", n)
			http.Error(w, "no more replies", http.StatusInternalServerError)
			return
		}
		f.replies[n-1](w)
	}
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func reply(content string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func status(code int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		http.Error(w, http.StatusText(code), code)
	}
}

func newTestChat(t *testing.T, model *fakeModel) *ChatGenerator {
	t.Helper()
	server := httptest.NewServer(model.handler(t))
	t.Cleanup(server.Close)

	retry := errhandling.DefaultRetryConfig()
	retry.DelayMs = 1
	retry.MaxDelayMs = 1
	g, err := NewChatGenerator(ChatConfig{
		Endpoint: server.URL + "/",
		APIKey:   "test-key",
		Retry:    &retry,
	})
	if err != nil {
		t.Fatalf("NewChatGenerator() error = %v", err)
	}
	return g
}

var headers = []string{"Region", "Units", "Product"}

func TestChatGeneratorGenerate(t *testing.T) {
	model := &fakeModel{replies: []func(http.ResponseWriter){
		reply(`{"filters":[
			{"header":"Units","operator":">","value":"100"},
			{"header":"Region","operator":"===","value":"North"},
			{"header":"Product","operator":"bogus","value":"x"},
			{"header":"Units","operator":"<","value":"lots"}
		]}`),
	}}
	g := newTestChat(t, model)

	got, err := g.Generate(context.Background(), "big sales in the north", headers)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []tabular.FilterCondition{
		{Header: "Units", Operator: tabular.OpGreaterThan, Value: tabular.Number(100)},
		{Header: "Region", Operator: tabular.OpEquals, Value: tabular.String("North")},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Header != want[i].Header || got[i].Operator != want[i].Operator || !got[i].Value.Equal(want[i].Value) {
			t.Errorf("condition %d = %v, want %v", i, got[i], want[i])
		}
	}

	req := model.requests[0]
	if req.Model != DefaultModel || req.Temperature != 0 || req.ResponseFormat.Type != "json_object" {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "big sales in the north" {
		t.Fatalf("unexpected messages %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, `["Region","Units","Product"]`) {
		t.Errorf("system prompt does not list headers: %s", req.Messages[0].Content)
	}
	if model.auth[0] != "Bearer test-key" {
		t.Errorf("Authorization = %q", model.auth[0])
	}
}

func TestChatGeneratorCorrectionTurn(t *testing.T) {
	model := &fakeModel{replies: []func(http.ResponseWriter){
		reply("Sure! Here are your filters."),
		reply(`{"filters":[{"header":"Product","operator":"contains","value":"widget"}]}`),
	}}
	g := newTestChat(t, model)

	got, err := g.Generate(context.Background(), "widgets", headers)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(got) != 1 || got[0].Operator != tabular.OpContains {
		t.Fatalf("unexpected conditions %v", got)
	}

	second := model.requests[1].Messages
	if len(second) != 4 {
		t.Fatalf("expected 4 messages in correction turn, got %d", len(second))
	}
	if second[2].Role != "assistant" || second[2].Content != "Sure! Here are your filters." {
		t.Errorf("bad reply not echoed back: %+v", second[2])
	}
	if second[3].Role != "user" || second[3].Content != correctionPrompt {
		t.Errorf("missing correction prompt: %+v", second[3])
	}
}

func TestChatGeneratorGivesUpAfterMaxAttempts(t *testing.T) {
	model := &fakeModel{replies: []func(http.ResponseWriter){
		reply("nope"),
		reply(`{"filters":"Units > 100"}`),
		reply(""),
	}}
	g := newTestChat(t, model)

	_, err := g.Generate(context.Background(), "anything", headers)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if upstream.Code != ErrCodeInvalidResponse || upstream.Attempts != DefaultMaxAttempts {
		t.Errorf("unexpected error %+v", upstream)
	}
	if upstream.Error() != InvalidResponseMessage {
		t.Errorf("Error() = %q", upstream.Error())
	}
	if upstream.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("HTTPStatus() = %d, want 500", upstream.HTTPStatus())
	}
	if model.calls() != DefaultMaxAttempts {
		t.Errorf("expected %d calls, got %d", DefaultMaxAttempts, model.calls())
	}
}

func TestChatGeneratorUpstreamErrors(t *testing.T) {
	t.Run("client error is not retried", func(t *testing.T) {
		model := &fakeModel{replies: []func(http.ResponseWriter){status(http.StatusUnauthorized)}}
		g := newTestChat(t, model)

		_, err := g.Generate(context.Background(), "q", headers)
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected *UpstreamError, got %v", err)
		}
		if upstream.Code != ErrCodeUpstreamFailed || upstream.StatusCode != http.StatusUnauthorized {
			t.Errorf("unexpected error %+v", upstream)
		}
		if upstream.HTTPStatus() != http.StatusBadGateway {
			t.Errorf("HTTPStatus() = %d, want 502", upstream.HTTPStatus())
		}
		if errhandling.GetErrorCategory(err) != errhandling.CategoryAuthentication {
			t.Errorf("category = %s", errhandling.GetErrorCategory(err))
		}
		if model.calls() != 1 {
			t.Errorf("expected 1 call, got %d", model.calls())
		}
	})

	t.Run("server error is retried", func(t *testing.T) {
		model := &fakeModel{replies: []func(http.ResponseWriter){
			status(http.StatusServiceUnavailable),
			reply(`{"filters":[]}`),
		}}
		g := newTestChat(t, model)

		got, err := g.Generate(context.Background(), "q", headers)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no conditions, got %v", got)
		}
		if model.calls() != 2 {
			t.Errorf("expected 2 calls, got %d", model.calls())
		}
	})
}

func TestNewChatGeneratorAPIKey(t *testing.T) {
	t.Setenv(DefaultAPIKeyEnv, "")
	if _, err := NewChatGenerator(ChatConfig{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	t.Setenv("GENIE_TEST_KEY", "from-env")
	g, err := NewChatGenerator(ChatConfig{APIKeyEnv: "GENIE_TEST_KEY"})
	if err != nil {
		t.Fatalf("NewChatGenerator() error = %v", err)
	}
	if g.apiKey != "from-env" || g.url != DefaultEndpoint+"/chat/completions" {
		t.Errorf("unexpected generator %+v", g)
	}
}

func TestDecodeFilters(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"empty list", `{"filters":[]}`, 0, false},
		{"missing key", `{"other":1}`, 0, false},
		{"null filters", `{"filters":null}`, 0, false},
		{"one filter", `{"filters":[{"header":"A","operator":"eq","value":1}]}`, 1, false},
		{"blank", "   ", 0, true},
		{"prose", "here you go", 0, true},
		{"array top level", `[{"header":"A"}]`, 0, true},
		{"null top level", `null`, 0, true},
		{"not a list", `{"filters":{"header":"A"}}`, 0, true},
		{"trailing data", `{"filters":[]} {}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeFilters(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeFilters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.want {
				t.Errorf("got %d conditions, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNormalizeFilters(t *testing.T) {
	entries := []interface{}{
		map[string]interface{}{"header": "Units", "operator": ">=", "value": json.Number("40")},
		map[string]interface{}{"header": "Units", "operator": "gt", "value": " 12.5 "},
		map[string]interface{}{"header": "Units", "operator": "<", "value": true},
		map[string]interface{}{"header": "Code", "operator": "equals", "value": json.Number("5")},
		map[string]interface{}{"header": "Code", "operator": "equals", "value": "5"},
		map[string]interface{}{"header": "Flag", "operator": "contains", "value": false},
		map[string]interface{}{"header": "Flag", "operator": "contains", "value": nil},
		map[string]interface{}{"header": "", "operator": "contains", "value": "x"},
		map[string]interface{}{"header": "Region", "value": "x"},
		"not an object",
		map[string]interface{}{"header": "Units", "operator": "le", "value": int64(7)},
	}
	want := []tabular.FilterCondition{
		{Header: "Units", Operator: tabular.OpGreaterOrEqual, Value: tabular.Number(40)},
		{Header: "Units", Operator: tabular.OpGreaterThan, Value: tabular.Number(12.5)},
		{Header: "Code", Operator: tabular.OpEquals, Value: tabular.Number(5)},
		{Header: "Code", Operator: tabular.OpEquals, Value: tabular.String("5")},
		{Header: "Flag", Operator: tabular.OpContains, Value: tabular.String("false")},
		{Header: "Units", Operator: tabular.OpLessOrEqual, Value: tabular.Number(7)},
	}

	got := normalizeFilters(entries)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Header != want[i].Header || got[i].Operator != want[i].Operator || !got[i].Value.Equal(want[i].Value) {
			t.Errorf("condition %d = %v, want %v", i, got[i], want[i])
		}
	}
}
