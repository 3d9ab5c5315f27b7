package props

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parse converts a raw attribute string into a Value.
//
// Order: JSON-looking arrays and objects, then brace-wrapped expressions
// (`{5}`, `{true}`, `{"label"}`, `{[1,2]}`), then true/false/null and numeric
// literals, and finally a plain string.
func Parse(raw string) Value {
	trimmed := strings.TrimSpace(raw)

	if looksLikeCollection(trimmed) {
		if v, ok := decodeJSON(trimmed); ok {
			return v
		}
	}

	if len(trimmed) >= 2 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}' {
		if v, ok := parseExpression(trimmed[1 : len(trimmed)-1]); ok {
			return v
		}
	}

	if v, ok := parseLiteral(trimmed); ok {
		return v
	}

	return String(raw)
}

// ParseAttribute is Parse for a markup attribute; a valueless attribute is true.
func ParseAttribute(raw string, hasValue bool) Value {
	if !hasValue {
		return Bool(true)
	}
	return Parse(raw)
}

func looksLikeCollection(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '{' && s[len(s)-1] == '}')
}

func parseExpression(inner string) (Value, bool) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return Value{}, false
	}

	if looksLikeCollection(inner) {
		if v, ok := decodeJSON(inner); ok {
			return v, true
		}
	}

	if n := len(inner); n >= 2 {
		quote := inner[0]
		if (quote == '"' || quote == '\'' || quote == '`') && inner[n-1] == quote {
			return String(inner[1 : n-1]), true
		}
	}

	return parseLiteral(inner)
}

func parseLiteral(s string) (Value, bool) {
	switch s {
	case "true":
		return Bool(true), true
	case "false":
		return Bool(false), true
	case "null":
		return Null(), true
	}

	if s == "" || !isNumericStart(s[0]) {
		return Value{}, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, false
	}
	return Number(f), true
}

// isNumericStart keeps ParseFloat from accepting "Inf", "NaN" and hex forms
// that read as words in markup.
func isNumericStart(c byte) bool {
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9')
}

func decodeJSON(s string) (Value, bool) {
	v, err := decodeStrict([]byte(s))
	if err != nil {
		return Value{}, false
	}
	return v, true
}

// decodeStrict decodes exactly one JSON value, preserving object key order.
func decodeStrict(data []byte) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("props: trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(items...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("props: object key is not a string")
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Object(m), nil
		default:
			return Value{}, fmt.Errorf("props: unexpected delimiter %q", t)
		}
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("props: unexpected token %v", tok)
	}
}
