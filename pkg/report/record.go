package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned by Normalize when a raw record lacks a key of the field table.
var ErrMissingField = errors.New("missing report field")

// Value is a single display-name/value pair of a Record.
type Value struct {
	Name  string
	Value string
}

// Record is a normalized report: one Value per entry of Fields, in table order.
type Record []Value

// Normalize maps a raw record (element name -> text) onto the field table,
// applying Format to every value.
func Normalize(raw map[string]string) (Record, error) {
	rec := make(Record, 0, len(Fields))
	for _, f := range Fields {
		v, ok := raw[f.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.Key)
		}
		rec = append(rec, Value{Name: f.Name, Value: Format(f.Name, v)})
	}
	return rec, nil
}

// Get returns the value stored under the display name.
func (r Record) Get(name string) (string, bool) {
	for _, v := range r {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// ReportNo returns the "Report No" value, or "" if absent.
func (r Record) ReportNo() string {
	v, _ := r.Get(Fields[0].Name)
	return v
}

// Values returns the values in column order (a CSV row).
func (r Record) Values() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.Value
	}
	return out
}

// MarshalJSON encodes the record as a JSON object, keeping column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(v.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
