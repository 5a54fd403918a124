package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseConfig reads, parses and validates the configuration file at filepath.
// The format comes from the extension, or from the content when the
// extension is unknown.
func ParseConfig(filepath string) *Result {
	result := &Result{FilePath: filepath}

	content, err := os.ReadFile(filepath)
	if err != nil {
		result.ParseErrors = append(result.ParseErrors, ParseError{
			Path:    filepath,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Type:    ErrorTypeIO,
		})
		return result
	}

	parsed := ParseConfigString(string(content), DetectFormat(filepath))
	parsed.FilePath = filepath
	for i := range parsed.ParseErrors {
		if parsed.ParseErrors[i].Path == "" {
			parsed.ParseErrors[i].Path = filepath
		}
	}
	return parsed
}

// ParseConfigString parses and validates configuration content. If format
// is empty, it is detected from the content.
func ParseConfigString(content string, format string) *Result {
	result := &Result{Format: format}

	if format == "" {
		switch {
		case IsJSON(content):
			format = FormatJSON
		case IsYAML(content):
			format = FormatYAML
		default:
			result.ParseErrors = append(result.ParseErrors, ParseError{
				Message: "unable to detect configuration format: not valid JSON or YAML",
				Type:    ErrorTypeFormat,
			})
			return result
		}
		result.Format = format
	}

	var parsed *ParseResult
	switch format {
	case FormatJSON:
		parsed = ParseJSONString(content)
	case FormatYAML:
		parsed = ParseYAMLString(content)
	default:
		result.ParseErrors = append(result.ParseErrors, ParseError{
			Message: fmt.Sprintf("unsupported format: %s", format),
			Type:    ErrorTypeFormat,
		})
		return result
	}

	result.Data = parsed.Data
	result.ParseErrors = parsed.Errors
	result.Format = parsed.Format
	for i := range result.ParseErrors {
		result.ParseErrors[i].Source = sourceLine(content, result.ParseErrors[i].Line)
	}
	if !parsed.IsValid() {
		return result
	}

	validation := ValidateConfig(parsed.Data)
	result.ValidationErrors = validation.Errors
	locateValidationErrors(content, result.ValidationErrors)
	return result
}

// ParseJSONString parses JSON content from a string.
func ParseJSONString(content string) *ParseResult {
	result := &ParseResult{Format: FormatJSON}

	content = strings.TrimSpace(content)
	if content == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected JSON object",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var data interface{}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		result.Errors = append(result.Errors, parseJSONError(err, content))
		return result
	}
	if data == nil {
		return result
	}

	dataMap, ok := data.(map[string]interface{})
	if !ok {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("invalid configuration: expected JSON object, got %T", data),
			Type:    ErrorTypeFormat,
		})
		return result
	}
	result.Data = dataMap
	return result
}

// parseJSONError extracts location information from a JSON unmarshaling error.
func parseJSONError(err error, content string) ParseError {
	parseErr := ParseError{
		Message: err.Error(),
		Type:    ErrorTypeSyntax,
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		parseErr.Offset = syntaxErr.Offset
		parseErr.Line, parseErr.Column = offsetToLineColumn(content, syntaxErr.Offset)
		parseErr.Message = fmt.Sprintf("JSON syntax error at offset %d: %s", syntaxErr.Offset, syntaxErr.Error())
	}
	return parseErr
}

// offsetToLineColumn converts a byte offset to line and column numbers (1-based).
func offsetToLineColumn(content string, offset int64) (line, column int) {
	if offset <= 0 {
		return 1, 1
	}

	line = 1
	column = 1
	for i := int64(0); i < offset && i < int64(len(content)); i++ {
		if content[i] == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}

// ParseYAMLString parses YAML content from a string.
func ParseYAMLString(content string) *ParseResult {
	result := &ParseResult{Format: FormatYAML}

	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, ParseError{
			Message: "empty content: expected YAML document",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	var data interface{}
	if err := yaml.Unmarshal([]byte(content), &data); err != nil {
		result.Errors = append(result.Errors, parseYAMLError(err))
		return result
	}
	if data == nil {
		// comments only
		return result
	}

	dataMap, ok := data.(map[string]interface{})
	if !ok {
		result.Errors = append(result.Errors, ParseError{
			Message: fmt.Sprintf("invalid configuration: expected YAML mapping, got %T", data),
			Type:    ErrorTypeFormat,
		})
		return result
	}
	result.Data = dataMap
	return result
}

// parseYAMLError extracts the line from a yaml.v3 error ("yaml: line X: ...").
func parseYAMLError(err error) ParseError {
	parseErr := ParseError{
		Message: err.Error(),
		Type:    ErrorTypeSyntax,
	}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		parseErr.Message = fmt.Sprintf("YAML type error: %s", strings.Join(typeErr.Errors, "; "))
	}

	if strings.Contains(err.Error(), "yaml: line ") {
		var line int
		if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
			parseErr.Line = line
		}
	}
	return parseErr
}

// DetectFormat detects the configuration format from the file extension.
// Returns "json", "yaml", or "" when the extension is not recognized.
func DetectFormat(filepath string) string {
	switch strings.ToLower(path.Ext(filepath)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// IsJSON checks if the content appears to be JSON.
func IsJSON(content string) bool {
	content = strings.TrimSpace(content)
	return strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[")
}

// IsYAML checks if the content parses as a non-empty YAML document.
// JSON is also YAML, so this is true for JSON content too.
func IsYAML(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	var data interface{}
	err := yaml.Unmarshal([]byte(content), &data)
	return err == nil && data != nil
}

// locateValidationErrors fills Line and Column from the source document.
// JSON is a YAML subset, so one node walk serves both formats.
func locateValidationErrors(content string, errs []ValidationError) {
	if len(errs) == 0 {
		return
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return
	}
	for i := range errs {
		if node := lookupPointer(&doc, errs[i].Path); node != nil {
			errs[i].Line, errs[i].Column = node.Line, node.Column
		}
	}
}

// lookupPointer resolves a JSON pointer against a YAML node tree. It returns
// the node of the deepest token reached, the key node for mapping members.
func lookupPointer(doc *yaml.Node, pointer string) *yaml.Node {
	node := doc
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	found := node
	pointer = strings.Trim(pointer, "/")
	if pointer == "" {
		return found
	}

	for _, token := range strings.Split(pointer, "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		key, value := childNode(node, token)
		if value == nil {
			return found
		}
		found, node = key, value
	}
	return found
}

func childNode(node *yaml.Node, token string) (key, value *yaml.Node) {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == token {
				return node.Content[i], node.Content[i+1]
			}
		}
	case yaml.SequenceNode:
		idx, err := strconv.Atoi(token)
		if err == nil && idx >= 0 && idx < len(node.Content) {
			return node.Content[idx], node.Content[idx]
		}
	}
	return nil, nil
}
