package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dvloznov/finanzas/internal/domain"
)

// Kind tags the variant held by a RawInput.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// RawInput is an untrusted value decoded from YAML, JSON, CSV or model output.
// Exactly one variant is meaningful, selected by Kind.
type RawInput struct {
	kind   Kind
	str    string
	num    float64
	b      bool
	list   []RawInput
	fields map[string]RawInput
}

// Null returns the null variant.
func Null() RawInput { return RawInput{kind: KindNull} }

// String wraps a text value.
func String(s string) RawInput { return RawInput{kind: KindString, str: s} }

// Number wraps a numeric value.
func Number(f float64) RawInput { return RawInput{kind: KindNumber, num: f} }

// Bool wraps a boolean value.
func Bool(b bool) RawInput { return RawInput{kind: KindBool, b: b} }

// List wraps a sequence.
func List(items ...RawInput) RawInput { return RawInput{kind: KindList, list: items} }

// Map wraps a keyed record.
func Map(fields map[string]RawInput) RawInput {
	if fields == nil {
		fields = map[string]RawInput{}
	}
	return RawInput{kind: KindMap, fields: fields}
}

// FromValue converts a decoded YAML or JSON value into a RawInput.
// Values of unexpected Go types are rendered as text.
func FromValue(v interface{}) RawInput {
	switch val := v.(type) {
	case nil:
		return Null()
	case RawInput:
		return val
	case string:
		return String(val)
	case bool:
		return Bool(val)
	case int:
		return Number(float64(val))
	case int64:
		return Number(float64(val))
	case uint64:
		return Number(float64(val))
	case float32:
		return Number(float64(val))
	case float64:
		return Number(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return String(val.String())
		}
		return Number(f)
	case time.Time:
		return String(domain.FormatDate(val))
	case []interface{}:
		items := make([]RawInput, 0, len(val))
		for _, item := range val {
			items = append(items, FromValue(item))
		}
		return List(items...)
	case map[string]interface{}:
		fields := make(map[string]RawInput, len(val))
		for k, item := range val {
			fields[k] = FromValue(item)
		}
		return Map(fields)
	case map[interface{}]interface{}:
		fields := make(map[string]RawInput, len(val))
		for k, item := range val {
			fields[fmt.Sprint(k)] = FromValue(item)
		}
		return Map(fields)
	default:
		return String(fmt.Sprint(val))
	}
}

// Kind returns the variant tag.
func (r RawInput) Kind() Kind { return r.kind }

// IsNull reports whether r is the null variant.
func (r RawInput) IsNull() bool { return r.kind == KindNull }

// Lookup returns the value stored under key when r is a map.
func (r RawInput) Lookup(key string) (RawInput, bool) {
	if r.kind != KindMap {
		return RawInput{}, false
	}
	v, ok := r.fields[key]
	return v, ok
}

// Keys returns the sorted keys of a map, or nil.
func (r RawInput) Keys() []string {
	if r.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Items returns the elements of a list, or nil.
func (r RawInput) Items() []RawInput {
	if r.kind != KindList {
		return nil
	}
	return r.list
}

// Text renders scalar variants as text. Lists and maps return false.
func (r RawInput) Text() (string, bool) {
	switch r.kind {
	case KindString:
		return r.str, true
	case KindNumber:
		return strconv.FormatFloat(r.num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(r.b), true
	}
	return "", false
}
