// Package canonicalize produces the json.sorted_keys.v1 canonical form that
// receipts are hashed and signed over.
//
// The scheme is deliberately minimal and frozen: object keys are sorted
// recursively, arrays keep their order, non-finite numbers become null and
// anything that is not JSON-shaped is coerced to a string. Two comparators
// exist, one per receipt generation, and they are NOT interchangeable:
//
//   - SortedKeysV1 (generation 1) orders keys by UTF-16 code units.
//   - LocaleSortedKeys (generation 0) orders keys by root-locale collation.
//
// Both agree on lowercase ASCII keys. Any change to either comparator changes
// canonical strings and invalidates existing signatures, so a change requires
// a new canonical identifier.
package canonicalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
)

// SortedKeysV1ID is the identifier of the canonical scheme.
const SortedKeysV1ID = "json.sorted_keys.v1"

type keyOrder func(a, b string) int

// SortedKeysV1 returns the canonical string of v using ordinal key order.
func SortedKeysV1(v any) string {
	return encode(v, compareUTF16)
}

// LocaleSortedKeys returns the canonical string of v using locale-aware key
// order, with ordinal order breaking collation ties.
func LocaleSortedKeys(v any) string {
	c := acquireCollator()
	defer releaseCollator(c)
	return encode(v, func(a, b string) int {
		if r := c.CompareString(a, b); r != 0 {
			return r
		}
		return compareUTF16(a, b)
	})
}

type encoder struct {
	buf   strings.Builder
	order keyOrder
}

func encode(v any, order keyOrder) string {
	e := &encoder{order: order}
	e.value(v)
	return e.buf.String()
}

func (e *encoder) value(v any) {
	switch t := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case string:
		writeQuoted(&e.buf, t)
	case bool:
		e.bool(t)
	case json.Number:
		e.number(t)
	case json.RawMessage:
		e.raw(t)
	case float64:
		e.float(t)
	case float32:
		e.float(float64(t))
	case int:
		e.float(float64(t))
	case int64:
		e.float(float64(t))
	case int32:
		e.float(float64(t))
	case uint64:
		e.float(float64(t))
	case []any:
		if t == nil {
			e.buf.WriteString("null")
			return
		}
		e.array(len(t), func(i int) any { return t[i] })
	case map[string]any:
		if t == nil {
			e.buf.WriteString("null")
			return
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		e.object(keys, func(k string) any { return t[k] })
	default:
		e.reflect(reflect.ValueOf(v))
	}
}

func (e *encoder) reflect(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return
		}
		e.value(rv.Elem().Interface())
	case reflect.String:
		writeQuoted(&e.buf, rv.String())
	case reflect.Bool:
		e.bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.float(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.float(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		e.float(rv.Float())
	case reflect.Slice:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return
		}
		e.array(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Array:
		e.array(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			e.coerce(rv.Interface())
			return
		}
		if rv.IsNil() {
			e.buf.WriteString("null")
			return
		}
		keys := make([]string, 0, rv.Len())
		values := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			values[k] = iter.Value().Interface()
		}
		e.object(keys, func(k string) any { return values[k] })
	default:
		e.coerce(rv.Interface())
	}
}

// coerce writes the string form of a value that has no JSON shape.
func (e *encoder) coerce(v any) {
	var s string
	switch t := v.(type) {
	case fmt.Stringer:
		s = t.String()
	case error:
		s = t.Error()
	default:
		s = fmt.Sprint(v)
	}
	writeQuoted(&e.buf, s)
}

func (e *encoder) bool(b bool) {
	if b {
		e.buf.WriteString("true")
		return
	}
	e.buf.WriteString("false")
}

func (e *encoder) float(f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		e.buf.WriteString("null")
		return
	}
	s, err := jcs.NumberToJSON(f)
	if err != nil {
		e.buf.WriteString("null")
		return
	}
	e.buf.WriteString(s)
}

// number formats a decoded JSON number the way the value it denotes would be
// formatted after a round trip through an IEEE-754 double.
func (e *encoder) number(n json.Number) {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			e.float(f)
			return
		}
		writeQuoted(&e.buf, string(n))
		return
	}
	e.float(f)
}

func (e *encoder) raw(msg json.RawMessage) {
	dec := json.NewDecoder(strings.NewReader(string(msg)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		writeQuoted(&e.buf, string(msg))
		return
	}
	e.value(v)
}

func (e *encoder) array(n int, at func(int) any) {
	e.buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.value(at(i))
	}
	e.buf.WriteByte(']')
}

func (e *encoder) object(keys []string, get func(string) any) {
	e.sortKeys(keys)
	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		writeQuoted(&e.buf, k)
		e.buf.WriteByte(':')
		e.value(get(k))
	}
	e.buf.WriteByte('}')
}

// sortKeys orders keys by the scheme comparator, except that array-index keys
// come first in ascending numeric order. Reference runtimes enumerate object
// members that way regardless of insertion order, so the frozen scheme does
// too.
func (e *encoder) sortKeys(keys []string) {
	slices.SortFunc(keys, func(a, b string) int {
		ai, aok := arrayIndex(a)
		bi, bok := arrayIndex(b)
		switch {
		case aok && bok:
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		case aok:
			return -1
		case bok:
			return 1
		}
		return e.order(a, b)
	})
}

const maxArrayIndex = 1<<32 - 2

func arrayIndex(s string) (uint64, bool) {
	if s == "" || len(s) > 10 || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n > maxArrayIndex {
		return 0, false
	}
	return n, true
}
