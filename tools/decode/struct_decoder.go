package decode

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Options customises Decode behaviour.
type Options struct {
	// WeaklyTypedInput enables lenient decoding (default true):
	// "123" -> int, 1.0 -> int64, 102 -> "102" and so on. Booleans never
	// cross over to numbers or strings, nor strings to booleans.
	WeaklyTypedInput bool
	// TagName is the struct tag read for field names (default "json").
	TagName string
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
		TagName:          "json",
	}
}

// DecodeMap decodes a dynamic JSON object into T.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("map is nil")
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
		if cfg.TagName == "" {
			cfg.TagName = "json"
		}
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          cfg.TagName,
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			strictBoolHook(),
			jsonNumberHook(),
			floatToIntHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return &out, nil
}

// strictBoolHook keeps booleans out of weak typing: true must not become 1
// or "1", and "0" must not become false.
func strictBoolHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		switch {
		case from == reflect.Bool:
			switch to {
			case reflect.Bool, reflect.Interface, reflect.Ptr:
				return data, nil
			}
			return nil, fmt.Errorf("boolean %v cannot decode into %s", data, to)
		case to == reflect.Bool:
			return nil, fmt.Errorf("%s %v cannot decode into bool", from, data)
		}
		return data, nil
	}
}

// jsonNumberHook: json.Number (from a UseNumber decoder) becomes float64
// or string depending on the target.
func jsonNumberHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		n, ok := data.(json.Number)
		if !ok {
			return data, nil
		}
		switch to.Kind() {
		case reflect.String:
			return n.String(), nil
		case reflect.Int, reflect.Int32, reflect.Int64:
			return n.Int64()
		case reflect.Float32, reflect.Float64:
			return n.Float64()
		case reflect.Interface:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			return n.Float64()
		}
		return data, nil
	}
}

// floatToIntHook: integral float64 becomes int / int32 / int64; fractional
// values are rejected rather than truncated.
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		f := data.(float64)
		switch to {
		case reflect.Int, reflect.Int32, reflect.Int64:
			if f != float64(int64(f)) {
				return nil, fmt.Errorf("%v is not an integer", f)
			}
		}
		switch to {
		case reflect.Int:
			return int(f), nil
		case reflect.Int32:
			return int32(f), nil
		case reflect.Int64:
			return int64(f), nil
		}
		return data, nil
	}
}

// jsonRawStringToMapHook: a JSON object sent as a string is expanded into
// map[string]any when the target is a map.
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
