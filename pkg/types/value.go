package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Placeholder prefixes. These are the wire contract with the plan
// generator and are case-sensitive.
const (
	userInputPrefix = "USER_INPUT:"
	resultRefPrefix = "RESULT:"
)

// ValueKind discriminates the three forms a payload value can take.
type ValueKind int

const (
	// ValueConcrete is a literal value ready for use.
	ValueConcrete ValueKind = iota

	// ValueUserInput is a "USER_INPUT:<param>" placeholder, resolved by
	// the information-gathering phase.
	ValueUserInput

	// ValueResultRef is a "RESULT:<fn>:<key>" placeholder, resolved by
	// the execution phase against an earlier subtask's result.
	ValueResultRef
)

// Value is a single payload entry, parsed from the string placeholder
// grammar on load so downstream code never re-parses strings.
type Value struct {
	Kind ValueKind

	// Literal holds the concrete value when Kind is ValueConcrete.
	Literal any

	// Param is the parameter name when Kind is ValueUserInput.
	Param string

	// Fn and Key identify the source subtask result when Kind is
	// ValueResultRef. Key may contain colons or dots; only the first two
	// colons of the placeholder are structural.
	Fn  string
	Key string
}

// Concrete wraps a literal value.
func Concrete(v any) Value {
	return Value{Kind: ValueConcrete, Literal: v}
}

// UserInput builds a USER_INPUT placeholder value.
func UserInput(param string) Value {
	return Value{Kind: ValueUserInput, Param: param}
}

// ResultRef builds a RESULT placeholder value.
func ResultRef(fn, key string) Value {
	return Value{Kind: ValueResultRef, Fn: fn, Key: key}
}

// ParseValue classifies a raw payload entry. Strings carrying one of the
// placeholder prefixes must satisfy the grammar; everything else is
// concrete.
func ParseValue(raw any) (Value, error) {
	s, ok := raw.(string)
	if !ok {
		return Concrete(raw), nil
	}

	switch {
	case strings.HasPrefix(s, userInputPrefix):
		param := s[len(userInputPrefix):]
		if param == "" {
			return Value{}, fmt.Errorf("%w: empty parameter name in %q", ErrMalformedGraph, s)
		}
		return UserInput(param), nil

	case strings.HasPrefix(s, resultRefPrefix):
		parts := strings.SplitN(s[len(resultRefPrefix):], ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Value{}, fmt.Errorf("%w: result reference %q must be RESULT:<fn>:<key>", ErrMalformedGraph, s)
		}
		return ResultRef(parts[0], parts[1]), nil

	default:
		return Concrete(s), nil
	}
}

// String renders the value back into its wire form.
func (v Value) String() string {
	switch v.Kind {
	case ValueUserInput:
		return userInputPrefix + v.Param
	case ValueResultRef:
		return resultRefPrefix + v.Fn + ":" + v.Key
	default:
		return fmt.Sprintf("%v", v.Literal)
	}
}

// Interface returns the value in the shape it is persisted and sent to
// backends: placeholders keep their string encoding, concrete values pass
// through untouched.
func (v Value) Interface() any {
	switch v.Kind {
	case ValueUserInput, ValueResultRef:
		return v.String()
	default:
		return v.Literal
	}
}

// IsPlaceholder reports whether the value still needs resolution.
func (v Value) IsPlaceholder() bool {
	return v.Kind != ValueConcrete
}

// MarshalJSON writes the wire encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON parses the wire encoding, enforcing the placeholder
// grammar for prefixed strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
