// Package redact masks sensitive fields in structured payloads and
// sensitive substrings in free text.
package redact

import "strings"

// Mask is the sentinel every masked value becomes.
const Mask = "***"

// DefaultPIIKeys are the keys automatically redacted.
var DefaultPIIKeys = []string{
	"name", "first_name", "last_name", "full_name",
	"email", "phone", "address",
	"ssn", "social_security",
	"passport", "dob", "date_of_birth",
}

// MaskValue replaces any non-nil value, numbers and booleans included, with
// Mask. Partial masking could leak structure, so there is none.
func MaskValue(v any) any {
	if v == nil {
		return nil
	}
	return Mask
}

// KeySet is a case-insensitive set of field names.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from the default PII keys plus extra.
func NewKeySet(extra ...string) KeySet {
	ks := make(KeySet, len(DefaultPIIKeys)+len(extra))
	for _, k := range DefaultPIIKeys {
		ks[strings.ToLower(k)] = struct{}{}
	}
	for _, k := range extra {
		ks[strings.ToLower(k)] = struct{}{}
	}
	return ks
}

// Has reports whether key is in the set.
func (ks KeySet) Has(key string) bool {
	_, ok := ks[strings.ToLower(key)]
	return ok
}

// RedactAuto walks maps and slices and masks every value stored under a
// default PII key or one of extraKeys. Other keys recurse unchanged; values
// are never inspected. The input is not modified. Typed containers and
// structs come back as map[string]any and []any.
func RedactAuto(obj any, extraKeys []string) any {
	return redactWith(obj, NewKeySet(extraKeys...))
}

func redactWith(obj any, keys KeySet) any {
	switch v := obj.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if keys.Has(k) {
				out[k] = MaskValue(val)
			} else {
				out[k] = redactWith(val, keys)
			}
		}
		return out

	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if keys.Has(k) {
				out[k] = Mask
			} else {
				out[k] = val
			}
		}
		return out

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactWith(item, keys)
		}
		return out

	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			out[i] = redactWith(item, keys).(map[string]any)
		}
		return out

	default:
		if g, ok := genericize(obj); ok {
			return redactWith(g, keys)
		}
		return obj
	}
}

// RedactMap masks the given keys at the top level of data only.
func RedactMap(data map[string]any, keys []string) map[string]any {
	ks := make(KeySet, len(keys))
	for _, k := range keys {
		ks[strings.ToLower(k)] = struct{}{}
	}

	result := make(map[string]any, len(data))
	for k, v := range data {
		if ks.Has(k) {
			result[k] = MaskValue(v)
		} else {
			result[k] = v
		}
	}
	return result
}

// RedactRecords redacts each record in a slice.
func RedactRecords(records []map[string]any, keys []string) []map[string]any {
	result := make([]map[string]any, len(records))
	for i, r := range records {
		result[i] = RedactMap(r, keys)
	}
	return result
}
