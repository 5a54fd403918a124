package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

var printer = message.NewPrinter(language.English)

//go:embed schema/genie-schema.json
var embeddedSchema []byte

const schemaURL = "https://csvquerygenie.dev/schemas/genie/v1/genie-schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaInitErr  error
)

// GetEmbeddedSchema returns the embedded configuration schema.
func GetEmbeddedSchema() []byte {
	return embeddedSchema
}

// getCompiledSchema returns the compiled JSON schema, compiling it if necessary.
// Thread-safe via sync.Once.
func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchema))
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, schemaDoc); err != nil {
			schemaInitErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}

		compiledSchema, err = compiler.Compile(schemaURL)
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to compile schema: %w", err)
			return
		}
	})

	if schemaInitErr != nil {
		return nil, schemaInitErr
	}
	return compiledSchema, nil
}

// ValidateConfig validates a parsed configuration against the schema, then
// checks the constraints a schema cannot express.
func ValidateConfig(data map[string]interface{}) *ValidationResult {
	result := &ValidationResult{
		Valid: true,
	}

	// Handle nil data
	if data == nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "required",
			Message: "configuration data is nil",
		})
		return result
	}

	// Handle empty data
	if len(data) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "required",
			Message: "configuration data is empty",
		})
		return result
	}

	// Get the compiled schema
	schema, err := getCompiledSchema()
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Path:    "/",
			Type:    "schema",
			Message: fmt.Sprintf("failed to load schema: %v", err),
		})
		return result
	}

	if validationErr := schema.Validate(normalize(data)); validationErr != nil {
		result.Valid = false
		var detailedErr *jsonschema.ValidationError
		if errors.As(validationErr, &detailedErr) {
			result.Errors = convertValidationErrors(detailedErr)
		} else {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "/",
				Type:    "validation",
				Message: validationErr.Error(),
			})
		}
		return result
	}

	if semanticErrs := validateSemantics(data); len(semanticErrs) > 0 {
		result.Valid = false
		result.Errors = append(result.Errors, semanticErrs...)
	}
	return result
}

// convertValidationErrors converts jsonschema validation errors to our format.
// Only leaf errors are kept; their parents merely repeat them.
func convertValidationErrors(err *jsonschema.ValidationError) []ValidationError {
	if len(err.Causes) == 0 {
		return []ValidationError{{
			Path:    formatInstanceLocation(err.InstanceLocation),
			Type:    extractErrorType(err),
			Message: err.ErrorKind.LocalizedString(printer),
		}}
	}
	var out []ValidationError
	for _, cause := range err.Causes {
		out = append(out, convertValidationErrors(cause)...)
	}
	return out
}

// formatInstanceLocation formats the instance location as a JSON path.
func formatInstanceLocation(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}

// extractErrorType maps the failing keyword to a short error type.
func extractErrorType(err *jsonschema.ValidationError) string {
	switch err.ErrorKind.(type) {
	case *kind.Required:
		return "required"
	case *kind.Type:
		return "type"
	case *kind.Pattern:
		return "pattern"
	case *kind.Enum, *kind.Const:
		return "enum"
	case *kind.Minimum, *kind.Maximum, *kind.ExclusiveMinimum, *kind.ExclusiveMaximum:
		return "range"
	case *kind.MinLength, *kind.MaxLength, *kind.MinItems, *kind.MaxItems:
		return "length"
	case *kind.Format:
		return "format"
	case *kind.AdditionalProperties:
		return "additionalProperties"
	default:
		return "validation"
	}
}

// normalize converts decoded YAML into the plain JSON value model the
// schema validator expects.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

// validateSemantics checks values the schema only types loosely: operator
// spellings and condition values.
func validateSemantics(data map[string]interface{}) []ValidationError {
	gen, _ := data["generator"].(map[string]interface{})
	if gen == nil {
		return nil
	}
	conds, _ := gen["conditions"].([]interface{})

	var errs []ValidationError
	for i, raw := range conds {
		cond, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		op, _ := cond["operator"].(string)
		if _, err := tabular.ParseOperator(op); err != nil {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("/generator/conditions/%d/operator", i),
				Type:    "enum",
				Message: err.Error(),
			})
		}
	}
	return errs
}
