package repoql

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// jsonValue is the JSON form of a Value. BINARY payloads are base64.
type jsonValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// MarshalJSON encodes v as {"type":"LONG","value":"42"}.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return []byte("null"), nil
	}
	text := v.Text()
	if v.typ == TypeBinary {
		text = base64.StdEncoding.EncodeToString([]byte(v.str))
	}
	return json.Marshal(jsonValue{Type: v.typ.String(), Value: text})
}

// UnmarshalJSON accepts the typed object form written by MarshalJSON, or a
// bare JSON string, number or boolean. Integral numbers become LONG, other
// numbers DOUBLE.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("repoql: null is not a value")
	}
	switch data[0] {
	case '{':
		var jv jsonValue
		if err := json.Unmarshal(data, &jv); err != nil {
			return err
		}
		t, ok := ScalarTypeByName(jv.Type)
		if !ok {
			return fmt.Errorf("repoql: unknown value type %q", jv.Type)
		}
		text := jv.Value
		if t == TypeBinary {
			raw, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				return &MalformedValueError{Type: t, Text: text, Err: err}
			}
			text = string(raw)
		}
		parsed, err := ParseValue(t, text)
		if err != nil {
			return err
		}
		*v = parsed
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Boolean(b)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if i, err := n.Int64(); err == nil {
			*v = Long(i)
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return &MalformedValueError{Type: TypeDouble, Text: n.String(), Err: err}
		}
		*v = Double(f)
	}
	return nil
}
