// Package schema models the JSON-Schema documents emitted for each stream.
//
// Property order is significant downstream (targets create table columns in
// schema order), so Properties is an ordered list that marshals to a JSON
// object rather than a Go map.
package schema

import (
	"bytes"
	"encoding/json"
)

// Property is one column's resolved JSON-Schema fragment.
type Property struct {
	Types      []string `json:"type"`
	Format     string   `json:"format,omitempty"`
	MultipleOf float64  `json:"multipleOf,omitempty"`
}

// NamedProperty pairs a property with its column name.
type NamedProperty struct {
	Name     string
	Property Property
}

// Properties is an ordered property list. It marshals to a JSON object whose
// keys appear in list order.
type Properties []NamedProperty

// MarshalJSON implements json.Marshaler.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, np := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(np.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		prop, err := json.Marshal(np.Property)
		if err != nil {
			return nil, err
		}
		buf.Write(prop)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the property for name, if present.
func (p Properties) Get(name string) (Property, bool) {
	for _, np := range p {
		if np.Name == name {
			return np.Property, true
		}
	}
	return Property{}, false
}

// Names returns the property names in order.
func (p Properties) Names() []string {
	names := make([]string, len(p))
	for i, np := range p {
		names[i] = np.Name
	}
	return names
}

// Schema is a stream's record schema.
type Schema struct {
	Type                 string     `json:"type"`
	AdditionalProperties bool       `json:"additionalProperties"`
	Properties           Properties `json:"properties"`
}

// Object returns an empty object schema that rejects undeclared properties.
func Object() *Schema {
	return &Schema{Type: "object", AdditionalProperties: false}
}

// Add appends a property and returns the schema for chaining.
func (s *Schema) Add(name string, prop Property) *Schema {
	s.Properties = append(s.Properties, NamedProperty{Name: name, Property: prop})
	return s
}

// Common property constructors; every emitted property is nullable.

func String() Property   { return Property{Types: []string{"null", "string"}} }
func Integer() Property  { return Property{Types: []string{"null", "integer"}} }
func Number() Property   { return Property{Types: []string{"null", "number"}} }
func Boolean() Property  { return Property{Types: []string{"null", "boolean", "string"}} }
func DateTime() Property { return Property{Types: []string{"null", "string"}, Format: "date-time"} }
func Date() Property     { return Property{Types: []string{"null", "string"}, Format: "date"} }
func Time() Property     { return Property{Types: []string{"null", "string"}, Format: "time"} }

// LooseNumber is the schema for numeric columns whose display format gives no
// hint: values may round-trip as numbers or degrade to strings, and floats
// are rounded so that multipleOf holds.
func LooseNumber() Property {
	return Property{Types: []string{"null", "number", "string"}, MultipleOf: 1e-15}
}
