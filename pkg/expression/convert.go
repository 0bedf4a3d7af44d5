package expression

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/zclconf/go-cty/cty"
)

// toCty converts a JSON-like Go value into a cty.Value.
// Values of other types are converted through their JSON encoding.
func toCty(value any) (cty.Value, error) {
	switch v := value.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return v, nil
	case string:
		return cty.StringVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case float32:
		return cty.NumberFloatVal(float64(v)), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int32:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case uint:
		return cty.NumberUIntVal(uint64(v)), nil
	case uint64:
		return cty.NumberUIntVal(v), nil
	case json.Number:
		f, _, err := big.ParseFloat(v.String(), 10, 512, big.ToNearestEven)
		if err != nil {
			return cty.NilVal, fmt.Errorf("invalid number %q: %w", v, err)
		}

		return cty.NumberVal(f), nil
	case map[string]any:
		return mapToCty(v)
	case []any:
		return sliceToCty(v)
	case []string:
		items := make([]any, len(v))
		for idx, item := range v {
			items[idx] = item
		}

		return sliceToCty(items)
	}

	return viaJSON(value)
}

// ToCtyObject converts a data bag into a cty object value.
func ToCtyObject(data map[string]any) (cty.Value, error) {
	return mapToCty(data)
}

func mapToCty(m map[string]any) (cty.Value, error) {
	if len(m) == 0 {
		return cty.EmptyObjectVal, nil
	}

	attrs := make(map[string]cty.Value, len(m))

	for key, item := range m {
		converted, err := toCty(item)
		if err != nil {
			return cty.NilVal, fmt.Errorf("key %q: %w", key, err)
		}

		attrs[key] = converted
	}

	return cty.ObjectVal(attrs), nil
}

func sliceToCty(s []any) (cty.Value, error) {
	if len(s) == 0 {
		return cty.EmptyTupleVal, nil
	}

	items := make([]cty.Value, len(s))

	for idx, item := range s {
		converted, err := toCty(item)
		if err != nil {
			return cty.NilVal, fmt.Errorf("index %d: %w", idx, err)
		}

		items[idx] = converted
	}

	return cty.TupleVal(items), nil
}

func viaJSON(value any) (cty.Value, error) {
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported value of type %T: %w", value, err)
	}

	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return cty.NilVal, err
	}

	return toCty(decoded)
}

// fromCty converts a cty.Value back to a JSON-like Go value.
// Numbers are returned as float64.
func fromCty(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}

	ty := val.Type()

	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()

			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}

	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)

		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()

			converted, err := fromCty(v)
			if err != nil {
				return nil, err
			}

			out[k.AsString()] = converted
		}

		return out, nil
	}

	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())

		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()

			converted, err := fromCty(v)
			if err != nil {
				return nil, err
			}

			out = append(out, converted)
		}

		return out, nil
	}

	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}
