// Package schema decodes consolidated contract schema documents, as written by
// the contract schema generator, and names the files they are split into.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	FieldContractName = "contract_name"
	FieldResponses    = "responses"

	// Ext is the extension of both consolidated documents and split output.
	Ext = ".json"
)

// MessageKinds are the top-level fields extracted from every consolidated
// document, in emit order.
var MessageKinds = []string{"instantiate", "execute", "query", "migrate"}

var (
	ErrNotObject       = errors.New("schema: document is not a JSON object")
	ErrNotConsolidated = errors.New("schema: document has no contract_name")
	ErrUnsafeField     = errors.New("schema: field name cannot be used in a file name")
)

// Fragment is one named sub-document to be written to its own file.
type Fragment struct {
	Field string
	Raw   json.RawMessage
}

// Document is a parsed consolidated schema document.
type Document struct {
	ContractName string
	fields       map[string]json.RawMessage
}

// Decode parses data as a consolidated schema document. The returned error
// wraps ErrNotObject or ErrNotConsolidated when data is valid JSON of the
// wrong shape.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("schema: empty document")
	}
	if trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("schema: invalid JSON")
		}
		return nil, ErrNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	raw, ok := fields[FieldContractName]
	if !ok {
		return nil, ErrNotConsolidated
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil || name == "" {
		return nil, fmt.Errorf("%w: contract_name must be a non-empty string", ErrNotConsolidated)
	}

	return &Document{ContractName: name, fields: fields}, nil
}

// Fragments returns the message kinds present in the document followed by
// every entry of its responses object, sorted by response name. A responses
// field that is not an object contributes nothing.
func (d *Document) Fragments() []Fragment {
	var out []Fragment
	for _, kind := range MessageKinds {
		if raw, ok := d.fields[kind]; ok {
			out = append(out, Fragment{Field: kind, Raw: raw})
		}
	}

	raw, ok := d.fields[FieldResponses]
	if !ok {
		return out
	}
	var responses map[string]json.RawMessage
	if err := json.Unmarshal(raw, &responses); err != nil || responses == nil {
		return out
	}
	names := make([]string, 0, len(responses))
	for name := range responses {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, Fragment{Field: name, Raw: responses[name]})
	}
	return out
}

// CheckField rejects field names that would place the output file outside
// the source document's directory.
func CheckField(field string) error {
	if field == "" || field == "." || field == ".." || strings.ContainsAny(field, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrUnsafeField, field)
	}
	return nil
}

// SanitizeName replaces every '-' in a contract name with '_'.
func SanitizeName(contractName string) string {
	return strings.ReplaceAll(contractName, "-", "_")
}

// OutputName is the file name a fragment of the named contract is written to.
func OutputName(contractName, field string) string {
	return SanitizeName(contractName) + "_" + field + Ext
}

// Compact returns raw with insignificant whitespace removed. Key order and
// number literals are kept as written.
func Compact(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("schema: compact fragment: %w", err)
	}
	return buf.Bytes(), nil
}
