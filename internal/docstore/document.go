package docstore

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is fixed width so that stored timestamps sort lexically in the
// SQL backends.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Document map[string]any

// Compact returns a copy of d without absent values: nil, nil pointers,
// nil slices and nil maps. Pointers are dereferenced and times are moved to
// UTC. Nested documents are compacted as well.
func Compact(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		if nv, ok := normalizeValue(v); ok {
			out[k] = nv
		}
	}
	return out
}

func normalizeValue(v any) (any, bool) {
	switch tv := v.(type) {
	case nil:
		return nil, false
	case time.Time:
		return tv.UTC(), true
	case *time.Time:
		if tv == nil {
			return nil, false
		}
		return tv.UTC(), true
	case Document:
		return Compact(tv), true
	case map[string]any:
		return Compact(Document(tv)), true
	case []string:
		if tv == nil {
			return nil, false
		}
		return append([]string(nil), tv...), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, false
		}
		return normalizeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
	}
	return v, true
}

func (d Document) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return ""
	}
}

// StringPtr returns nil when key is absent or not a string.
func (d Document) StringPtr(key string) *string {
	v, ok := d[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func (d Document) Bool(key string) bool {
	v, _ := d[key].(bool)
	return v
}

func (d Document) Int(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(n), true
	default:
		return 0, false
	}
}

// Time accepts native times and strings in TimeLayout or RFC 3339.
func (d Document) Time(key string) (time.Time, bool) {
	switch v := d[key].(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (d Document) clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if nested, ok := v.(Document); ok {
			v = nested.clone()
		}
		out[k] = v
	}
	return out
}

// compareValues orders two field values of the same kind. Missing values sort
// after present ones regardless of direction.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return compareInts(int64(av), int64(bv))
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return compareInts(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	return 0
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
