package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// OptionKind tags the variant held by an OptionValue.
type OptionKind int

const (
	OptionBool OptionKind = iota
	OptionNumber
	OptionString
)

// OptionValue is a tagged variant over the scalar types a directive option
// can carry. Consumers switch on Kind instead of coercing.
type OptionValue struct {
	Kind OptionKind
	Bool bool
	Num  float64
	Str  string
}

// BoolValue wraps a boolean option value.
func BoolValue(v bool) OptionValue { return OptionValue{Kind: OptionBool, Bool: v} }

// NumberValue wraps a numeric option value.
func NumberValue(v float64) OptionValue { return OptionValue{Kind: OptionNumber, Num: v} }

// StringValue wraps a string option value.
func StringValue(v string) OptionValue { return OptionValue{Kind: OptionString, Str: v} }

// MarshalJSON emits the native scalar so the in-page API receives real
// booleans and numbers, not stringified ones.
func (v OptionValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case OptionBool:
		return json.Marshal(v.Bool)
	case OptionNumber:
		return json.Marshal(v.Num)
	default:
		return json.Marshal(v.Str)
	}
}

// UnmarshalJSON accepts any JSON scalar and tags it accordingly.
func (v *OptionValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = NumberValue(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	return fmt.Errorf("option value must be a boolean, number, or string: %s", data)
}

func (v OptionValue) String() string {
	switch v.Kind {
	case OptionBool:
		return strconv.FormatBool(v.Bool)
	case OptionNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	default:
		return v.Str
	}
}

// Options maps option names to parsed values.
type Options map[string]OptionValue

// optionToken matches one key=value pair: word characters, equals, then any
// run of non-whitespace.
var optionToken = regexp.MustCompile(`(\w+)=(\S+)`)

// ParseOptions tokenizes a raw option string into an Options map. Literal
// true/false become booleans, numeric tokens become numbers, everything else
// stays a verbatim string. Malformed tokens are skipped, duplicate keys keep
// the last occurrence, and empty input yields an empty map. Never fails.
func ParseOptions(raw string) Options {
	opts := make(Options)
	for _, m := range optionToken.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		switch val {
		case "true":
			opts[key] = BoolValue(true)
		case "false":
			opts[key] = BoolValue(false)
		default:
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				opts[key] = NumberValue(n)
			} else {
				opts[key] = StringValue(val)
			}
		}
	}
	return opts
}
