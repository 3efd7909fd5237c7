// Package document holds the semi-structured JSON documents attached to
// events (context, traits, properties, integrations) and the deep merge used
// to build the outgoing context.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
)

// Document is a JSON object. Values are JSON-compatible: nil, bool, numbers,
// string, []any, map[string]any or Document. Documents read with Unmarshal
// hold numbers as json.Number so integers beyond 2^53 keep every digit.
type Document map[string]any

// Merge returns a new document holding base deep-merged with overlay. When a
// key maps to an object on both sides the objects are merged recursively; any
// other collision is won by overlay. Neither input is modified.
func Merge(base, overlay Document) Document {
	out := Clone(base)
	if out == nil {
		out = Document{}
	}
	mergeInto(out, overlay)
	return out
}

func mergeInto(dst map[string]any, src map[string]any) {
	for k, v := range src {
		srcObj, srcIsObj := asObject(v)
		dstObj, dstIsObj := asObject(dst[k])
		if srcIsObj && dstIsObj {
			merged := cloneObject(dstObj)
			mergeInto(merged, srcObj)
			dst[k] = merged
			continue
		}
		dst[k] = cloneValue(v)
	}
}

// Unmarshal decodes one JSON value from data into v, keeping numbers inside
// any-typed fields as json.Number.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// Clone returns a deep copy of d. Clone(nil) is nil.
func Clone(d Document) Document {
	if d == nil {
		return nil
	}
	return Document(cloneObject(d))
}

// HasKey reports whether key is present at the top level of d.
func (d Document) HasKey(key string) bool {
	_, ok := d[key]
	return ok
}

// Equal reports whether a and b hold the same keys and values. A nil
// document equals an empty one.
func Equal(a, b Document) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !equalValue(av, bv) {
			return false
		}
	}
	return true
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case Document:
		return o, true
	case map[string]any:
		return o, true
	default:
		return nil, false
	}
}

func cloneObject(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return Document(cloneObject(t))
	case map[string]any:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return cloneContainer(v)
	}
}

// cloneContainer deep-copies maps and slices of any other type, such as
// map[string]string or []map[string]any, keeping their static type.
func cloneContainer(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i), rv.Type().Elem()))
		}
		return out.Interface()
	default:
		return v
	}
}

func cloneElem(ev reflect.Value, elemType reflect.Type) reflect.Value {
	c := cloneValue(ev.Interface())
	if c == nil {
		return reflect.Zero(elemType)
	}
	return reflect.ValueOf(c)
}

func equalValue(a, b any) bool {
	ao, aIsObj := asObject(a)
	bo, bIsObj := asObject(b)
	if aIsObj || bIsObj {
		return aIsObj && bIsObj && Equal(ao, bo)
	}
	as, aIsArr := a.([]any)
	bs, bIsArr := b.([]any)
	if aIsArr || bIsArr {
		if !aIsArr || !bIsArr || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equalValue(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if an, ok := a.(json.Number); ok {
		if bn, ok := b.(json.Number); ok {
			return an == bn
		}
	}
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
