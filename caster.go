package marrow

import (
	"encoding/json"
	"fmt"

	"github.com/marrow-orm/marrow/schema"
)

// Caster transforms between a raw storage scalar and an application-level
// value. Implementations are resolved once per name and shared; they must be
// stateless.
type Caster interface {
	Decode(raw interface{}, owner schema.Owner) (interface{}, error)
	Encode(v interface{}, owner schema.Owner) (interface{}, error)
}

// BoolCasterName is the caster implicitly applied to bool-typed columns.
const BoolCasterName = "bool"

// JSONCasterName is the built-in caster for JSON columns.
const JSONCasterName = "json"

type boolCaster struct{}

func (boolCaster) Decode(raw interface{}, _ schema.Owner) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case string:
		return v == "t" || v == "true" || v == "1", nil
	case []byte:
		s := string(v)
		return s == "t" || s == "true" || s == "1", nil
	default:
		return nil, fmt.Errorf("cannot decode %T as bool", raw)
	}
}

func (boolCaster) Encode(v interface{}, _ schema.Owner) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	default:
		return nil, fmt.Errorf("cannot encode %T as bool", v)
	}
}

type jsonCaster struct{}

func (jsonCaster) Decode(raw interface{}, _ schema.Owner) (interface{}, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("cannot decode %T as json", raw)
	}

	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode json value: %w", err)
	}
	return out, nil
}

func (jsonCaster) Encode(v interface{}, _ schema.Owner) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json value: %w", err)
	}
	return string(data), nil
}
