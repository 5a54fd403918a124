package generator

import (
	"encoding/json"
	"strings"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

const correctionPrompt = "Your previous response was not valid JSON. Please correct it. " +
	"You must only return a JSON object with a 'filters' key containing an array, with no extra text or formatting."

// systemPrompt instructs the model to answer with {"filters":[...]} over headers.
func systemPrompt(headers []string) string {
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		headerJSON = []byte("[]")
	}
	ops := tabular.Operators()
	quoted := make([]string, len(ops))
	for i, op := range ops {
		quoted[i] = "'" + op.String() + "'"
	}

	var b strings.Builder
	b.WriteString("You are an AI data analysis assistant. Your task is to convert a user's natural language query ")
	b.WriteString("into a structured JSON filter based on the provided CSV headers.\n")
	b.WriteString("The JSON should be an array of filter objects. Each object must have 'header', 'operator', and 'value'.\n")
	b.WriteString("- 'header' must be one of the provided CSV Headers: ")
	b.Write(headerJSON)
	b.WriteString("\n- 'operator' must be one of: ")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(".\n- 'value' should be a number for numeric comparisons, otherwise a string.\n")
	b.WriteString("If the query is ambiguous or cannot be converted, return an empty array [].\n")
	b.WriteString("You MUST only return a JSON object with a single key \"filters\" that contains the array of filter objects. ")
	b.WriteString("Do not include any extra text, explanations, or markdown formatting like ```json.")
	return b.String()
}
