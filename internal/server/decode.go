package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/csvquerygenie/genie/pkg/tabular"
)

// errInvalidData marks a /query body whose rows cannot form a table.
var errInvalidData = errors.New("invalid data format")

// queryPayload is a decoded POST /query body. Rows keep the keys they were
// sent with; Headers is either the requested order or the first-seen key
// order.
type queryPayload struct {
	Query      string
	Expression string
	Headers    []string
	Rows       []tabular.Row
}

// decodeQuery reads a POST /query body token by token, since a map would
// lose the column order of the rows.
func decodeQuery(r io.Reader) (*queryPayload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	p := &queryPayload{}
	var seen []string
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case "query":
			err = decodeOptional(dec, &p.Query)
		case "expression":
			err = decodeOptional(dec, &p.Expression)
		case "headers":
			err = decodeOptional(dec, &p.Headers)
		case "data":
			p.Rows, seen, err = decodeRows(dec)
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after request body", errInvalidData)
	}

	if len(p.Headers) == 0 {
		p.Headers = seen
	}
	if err := checkRows(p.Headers, p.Rows); err != nil {
		return nil, err
	}
	return p, nil
}

// decodeRows reads an array of flat objects. It also returns every key in
// first-seen order.
func decodeRows(dec *json.Decoder) ([]tabular.Row, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok == nil {
		return nil, nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, nil, fmt.Errorf("%w: data must be an array", errInvalidData)
	}

	var (
		rows  []tabular.Row
		order []string
		known = make(map[string]struct{})
	)
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, nil, fmt.Errorf("%w: row %d is not an object", errInvalidData, len(rows))
		}
		row := make(tabular.Row)
		for dec.More() {
			key, err := objectKey(dec)
			if err != nil {
				return nil, nil, err
			}
			var raw interface{}
			if err := dec.Decode(&raw); err != nil {
				return nil, nil, err
			}
			v, err := tabular.FromInterface(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: row %d, %q: %v", errInvalidData, len(rows), key, err)
			}
			row[key] = v
			if _, ok := known[key]; !ok {
				known[key] = struct{}{}
				order = append(order, key)
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, nil, err
	}
	return rows, order, nil
}

// checkRows requires unique headers and every header present in every row.
func checkRows(headers []string, rows []tabular.Row) error {
	unique := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, dup := unique[h]; dup {
			return fmt.Errorf("%w: duplicate header %q", errInvalidData, h)
		}
		unique[h] = struct{}{}
	}
	for i, row := range rows {
		for _, h := range headers {
			if _, ok := row[h]; !ok {
				return fmt.Errorf("%w: row %d is missing %q", errInvalidData, i, h)
			}
		}
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", errInvalidData, want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected object key, got %v", errInvalidData, tok)
	}
	return key, nil
}

// decodeOptional decodes the next value into dst, leaving dst alone for null.
func decodeOptional(dec *json.Decoder, dst interface{}) error {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
