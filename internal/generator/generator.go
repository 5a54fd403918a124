// Package generator turns a natural-language question and a header list into
// structured filter conditions.
//
// The translation itself is opaque: a chat-completion model, a user script or
// a fixed list. Every implementation returns conditions the evaluator can
// validate; an empty list means no filter could be derived.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Error codes for generation failures
const (
	ErrCodeInvalidResponse = "INVALID_AI_RESPONSE"
	ErrCodeUpstreamFailed  = "UPSTREAM_FAILED"
	ErrCodeScriptFailed    = "SCRIPT_FAILED"
)

// InvalidResponseMessage is reported when the model never produced a usable
// filter object.
const InvalidResponseMessage = "AI failed to generate a valid JSON filter after multiple attempts."

// Common errors
var (
	ErrMissingAPIKey = errors.New("api key is required for the chat generator")
	ErrMissingScript = errors.New("script generator requires a script or scriptFile")
	ErrUnknownType   = errors.New("unknown generator type")
)

// Generator translates query into conditions over headers.
type Generator interface {
	Generate(ctx context.Context, query string, headers []string) ([]tabular.FilterCondition, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, query string, headers []string) ([]tabular.FilterCondition, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, query string, headers []string) ([]tabular.FilterCondition, error) {
	return f(ctx, query, headers)
}

// StaticGenerator always returns the same conditions.
type StaticGenerator struct {
	conditions []tabular.FilterCondition
}

// NewStaticGenerator creates a generator for conditions.
func NewStaticGenerator(conditions []tabular.FilterCondition) *StaticGenerator {
	copied := make([]tabular.FilterCondition, len(conditions))
	copy(copied, conditions)
	return &StaticGenerator{conditions: copied}
}

// Generate returns a copy of the fixed conditions.
func (s *StaticGenerator) Generate(ctx context.Context, _ string, _ []string) ([]tabular.FilterCondition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]tabular.FilterCondition, len(s.conditions))
	copy(out, s.conditions)
	return out, nil
}

// UpstreamError reports a failure of the filter-generation collaborator.
type UpstreamError struct {
	Code       string
	Message    string
	StatusCode int // upstream HTTP status, 0 when none was received
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HTTPStatus is 502 when the upstream answered with an error status and 500
// otherwise.
func (e *UpstreamError) HTTPStatus() int {
	if e.StatusCode > 0 {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// normalizeFilters converts decoded filter entries into conditions.
//
// Entries that are not objects, lack a header or operator, or name an unknown
// operator are dropped. Comparison operators need a numeric value; anything
// else drops the entry. Other operators keep numbers as numbers and strings
// as strings.
func normalizeFilters(entries []interface{}) []tabular.FilterCondition {
	out := make([]tabular.FilterCondition, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			dropFilter(i, "entry is not an object")
			continue
		}
		header, _ := obj["header"].(string)
		opName, _ := obj["operator"].(string)
		if header == "" || opName == "" {
			dropFilter(i, "missing header or operator")
			continue
		}
		op, err := tabular.ParseOperator(opName)
		if err != nil {
			dropFilter(i, err.Error())
			continue
		}
		value, ok := conditionValue(obj["value"], op.IsComparison())
		if !ok {
			dropFilter(i, fmt.Sprintf("unusable value %v for operator %s", obj["value"], op))
			continue
		}
		out = append(out, tabular.FilterCondition{Header: header, Operator: op, Value: value})
	}
	return out
}

func dropFilter(index int, reason string) {
	logger.Warn("dropping generated filter",
		slog.Int("filter_index", index),
		slog.String("reason", reason),
	)
}

func conditionValue(raw interface{}, numeric bool) (tabular.Value, bool) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return tabular.Value{}, false
		}
		return tabular.Number(f), true
	case float64:
		return tabular.Number(v), true
	case int64:
		return tabular.Number(float64(v)), true
	case int:
		return tabular.Number(float64(v)), true
	case string:
		if !numeric {
			return tabular.String(v), true
		}
		f, ok := tabular.ParseNumber(strings.TrimSpace(v))
		if !ok {
			return tabular.Value{}, false
		}
		return tabular.Number(f), true
	case bool:
		if numeric {
			return tabular.Value{}, false
		}
		return tabular.String(strconv.FormatBool(v)), true
	default:
		return tabular.Value{}, false
	}
}

var (
	_ Generator = GeneratorFunc(nil)
	_ Generator = (*StaticGenerator)(nil)
)
