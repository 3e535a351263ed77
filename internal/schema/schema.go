// Package schema describes the JSON documents the model must return and validates decoded
// responses against them before they are turned into typed values.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrValidation is wrapped by every validation failure.
var ErrValidation = errors.New("schema validation failed")

// Kind is the JSON type of a schema node.
type Kind int

const (
	String Kind = iota
	Integer
	Number
	Boolean
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// Field is one property of an object schema.
type Field struct {
	Name     string
	Schema   *Schema
	Required bool
}

// Schema is a node in a document description.
type Schema struct {
	Title  string
	Kind   Kind
	Fields []Field // Object only
	Items  *Schema // Array only
}

// Document is implemented by every typed response the pipeline asks for.
type Document interface {
	Schema() *Schema
}

// Str, Int, ArrayOf and ObjectOf are small constructors for building schemas.
func Str() *Schema { return &Schema{Kind: String} }
func Int() *Schema { return &Schema{Kind: Integer} }
func ArrayOf(s *Schema) *Schema { return &Schema{Kind: Array, Items: s} }

func ObjectOf(title string, fields ...Field) *Schema {
	return &Schema{Title: title, Kind: Object, Fields: fields}
}

// Required declares a required field.
func Required(name string, s *Schema) Field {
	return Field{Name: name, Schema: s, Required: true}
}

// Validate checks a value produced by a json.Decoder with UseNumber against s.
// All problems are reported together.
func Validate(v any, s *Schema) error {
	var problems []string
	validate(v, s, "$", &problems)
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func validate(v any, s *Schema, path string, problems *[]string) {
	if v == nil {
		*problems = append(*problems, fmt.Sprintf("%s: expected %s, got null", path, s.Kind))
		return
	}

	switch s.Kind {
	case String:
		if _, ok := v.(string); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected string, got %s", path, typeName(v)))
		}
	case Integer:
		n, ok := v.(json.Number)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected integer, got %s", path, typeName(v)))
			return
		}
		if _, ok := integral(n); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected integer, got %s", path, n.String()))
		}
	case Number:
		if _, ok := v.(json.Number); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected number, got %s", path, typeName(v)))
		}
	case Boolean:
		if _, ok := v.(bool); !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected boolean, got %s", path, typeName(v)))
		}
	case Array:
		items, ok := v.([]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected array, got %s", path, typeName(v)))
			return
		}
		if s.Items == nil {
			return
		}
		for i, item := range items {
			validate(item, s.Items, fmt.Sprintf("%s[%d]", path, i), problems)
		}
	case Object:
		obj, ok := v.(map[string]any)
		if !ok {
			*problems = append(*problems, fmt.Sprintf("%s: expected object, got %s", path, typeName(v)))
			return
		}
		for _, f := range s.Fields {
			fv, present := obj[f.Name]
			if !present {
				if f.Required {
					*problems = append(*problems, fmt.Sprintf("%s.%s: required field missing", path, f.Name))
				}
				continue
			}
			validate(fv, f.Schema, path+"."+f.Name, problems)
		}
	}
}

// integral reports the value of n if it is a whole number, including forms like 91.0.
func integral(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// canonical rewrites whole numbers written with a fraction or exponent at integer positions
// so that the value decodes into Go integers. v must already be valid against s.
func canonical(v any, s *Schema) any {
	switch s.Kind {
	case Integer:
		if n, ok := v.(json.Number); ok {
			if i, ok := integral(n); ok {
				return json.Number(strconv.FormatInt(i, 10))
			}
		}
	case Array:
		if items, ok := v.([]any); ok && s.Items != nil {
			for i := range items {
				items[i] = canonical(items[i], s.Items)
			}
		}
	case Object:
		if obj, ok := v.(map[string]any); ok {
			for _, f := range s.Fields {
				if fv, present := obj[f.Name]; present {
					obj[f.Name] = canonical(fv, f.Schema)
				}
			}
		}
	}
	return v
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// Decode validates raw JSON against the document's schema and, if it conforms, decodes it
// into doc.
func Decode(raw []byte, doc Document) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", ErrValidation)
	}
	if err := Validate(generic, doc.Schema()); err != nil {
		return err
	}
	normalized, err := json.Marshal(canonical(generic, doc.Schema()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := json.Unmarshal(normalized, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Describe renders s as a JSON-Schema style document for inclusion in prompts.
func Describe(s *Schema) string {
	b, err := json.MarshalIndent(describe(s, s.Title), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func describe(s *Schema, title string) map[string]any {
	out := map[string]any{"type": s.Kind.String()}
	if title != "" {
		out["title"] = title
	}
	switch s.Kind {
	case Array:
		if s.Items != nil {
			out["items"] = describe(s.Items, s.Items.Title)
		}
	case Object:
		props := make(map[string]any, len(s.Fields))
		var required []string
		for _, f := range s.Fields {
			props[f.Name] = describe(f.Schema, titleCase(f.Name))
			if f.Required {
				required = append(required, f.Name)
			}
		}
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
	}
	return out
}

// titleCase turns summary_id into "Summary Id", matching how field titles usually read.
func titleCase(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
