package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// genericize turns typed maps, slices, arrays, structs and pointers to them
// into map[string]any and []any so the walks can see every key and element.
// It reports false for scalars and nil values, which are returned as is.
func genericize(obj any) (any, bool) {
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return obj, false
		}
		return genericize(rv.Elem().Interface())

	case reflect.Map:
		if rv.IsNil() {
			return obj, false
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyString(iter.Key())] = iter.Value().Interface()
		}
		return out, true

	case reflect.Slice:
		if rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8 {
			return obj, false
		}
		return elements(rv), true

	case reflect.Array:
		return elements(rv), true

	case reflect.Struct:
		return viaJSON(obj), true
	}
	return obj, false
}

func elements(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

// viaJSON converts a struct to its JSON shape so field tags decide the key
// names. A value that cannot be encoded is masked whole.
func viaJSON(obj any) any {
	data, err := json.Marshal(obj)
	if err != nil {
		return Mask
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return Mask
	}
	return out
}
