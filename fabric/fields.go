package fabric

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// decodeJSONObject strictly decodes b as a single JSON object. Numbers are kept as json.Number so
// passthrough values round-trip without float conversion.
func decodeJSONObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil, fmt.Errorf("expected JSON object, got %s", describeValue(v))
	}
	return m, nil
}

// fieldsFromMap reads the model fields from a decoded mapping. Missing or mistyped keys fall back
// to empty values; unknown keys are carried in Extra.
func fieldsFromMap(m map[string]any) FabricFields {
	return FabricFields{
		Material:                 stringField(m, "material"),
		Texture:                  stringField(m, "texture"),
		Colors:                   stringListField(m, "colors"),
		Embellishments:           m["embellishments"],
		EmbellishmentDescription: stringField(m, "embellishment_description"),
		Extra:                    extraKeys(m, fieldKeys),
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// stringListField returns the string elements of a list value. A lone non-empty string becomes a
// one-element list; anything else yields an empty list.
func stringListField(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string{}, v...)
	case string:
		if v == "" {
			return []string{}
		}
		return []string{v}
	default:
		return []string{}
	}
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func extraKeys(m map[string]any, known []string) map[string]any {
	var extra map[string]any
	for k, v := range m {
		skip := false
		for _, kk := range known {
			if k == kk {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
