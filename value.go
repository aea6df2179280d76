package plist

// bplistValue is the internal tagged sum type the parser and generator
// operate on. It mirrors the on-wire variants exactly (§3.1 of the bplist
// value domain): bool, int, float, date, data, string, uid, array, dict.
// Callers never see this type directly — Parse/Generate translate to and
// from plain Go values at the package boundary (see toInterface/fromInterface
// below).
type bplistValue interface {
	bplistTag() string
}

type bplistBool bool

func (bplistBool) bplistTag() string { return "bool" }

type bplistInt int64

func (bplistInt) bplistTag() string { return "int" }

// bplistReal carries a float64 plus whether it was stored on the wire as
// binary32 ("narrow") or binary64 ("wide"). The width is parser-only state:
// the generator always re-emits floats as binary64 (see §3.1 invariants).
type bplistReal struct {
	value float64
	wide  bool
}

func (bplistReal) bplistTag() string { return "float" }

type bplistDate float64 // seconds since the Cocoa epoch

func (bplistDate) bplistTag() string { return "date" }

type bplistData []byte

func (bplistData) bplistTag() string { return "data" }

// bplistString holds decoded text regardless of whether it was stored as
// ASCII or UTF-16BE on the wire; that choice is a pure function of content
// (see the string discipline in §4.3) and is recomputed by the generator.
type bplistString string

func (bplistString) bplistTag() string { return "string" }

type bplistUID UID

func (bplistUID) bplistTag() string { return "uid" }

type bplistArray []bplistValue

func (bplistArray) bplistTag() string { return "array" }

// bplistDict preserves insertion/decode order via parallel slices, rather
// than a Go map, so that re-encoding an untouched dict reproduces the same
// byte layout (Go map iteration order is randomized).
type bplistDict struct {
	keys   []bplistValue
	values []bplistValue
}

func (*bplistDict) bplistTag() string { return "dict" }

func (d *bplistDict) get(key string) (bplistValue, bool) {
	for i, k := range d.keys {
		if s, ok := k.(bplistString); ok && string(s) == key {
			return d.values[i], true
		}
	}
	return nil, false
}

func (d *bplistDict) set(key string, v bplistValue) {
	for i, k := range d.keys {
		if s, ok := k.(bplistString); ok && string(s) == key {
			d.values[i] = v
			return
		}
	}
	d.keys = append(d.keys, bplistString(key))
	d.values = append(d.values, v)
}

// toInterface converts the internal sum type to the plain-Go-value
// boundary representation documented on Parse.
func toInterface(v bplistValue) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case bplistBool:
		return bool(t)
	case bplistInt:
		return int64(t)
	case bplistReal:
		return t.value
	case bplistDate:
		return DateFromOffset(float64(t))
	case bplistData:
		return []byte(t)
	case bplistString:
		return string(t)
	case bplistUID:
		return UID(t)
	case bplistArray:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = toInterface(e)
		}
		return out
	case *bplistDict:
		out := make(map[string]interface{}, len(t.keys))
		for i, k := range t.keys {
			ks, ok := k.(bplistString)
			if !ok {
				// Non-string keys are rare in practice; fall back to the
				// OrderedDict representation so no information is lost.
				return dictToOrdered(t)
			}
			out[string(ks)] = toInterface(t.values[i])
		}
		return out
	default:
		return nil
	}
}

// OrderedDict is the boundary representation for a dict whose keys are not
// all strings, or whose iteration order a caller needs to preserve exactly
// (the generator special-cases it to re-emit the original key order; a
// plain map[string]interface{} round-trips with correct values but
// unspecified order).
type OrderedDict struct {
	Keys   []interface{}
	Values []interface{}
}

func dictToOrdered(d *bplistDict) *OrderedDict {
	out := &OrderedDict{
		Keys:   make([]interface{}, len(d.keys)),
		Values: make([]interface{}, len(d.values)),
	}
	for i := range d.keys {
		out.Keys[i] = toInterface(d.keys[i])
		out.Values[i] = toInterface(d.values[i])
	}
	return out
}

// fromInterface converts a plain Go value at the package boundary into the
// internal sum type, for Generate.
func fromInterface(v interface{}) (bplistValue, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return bplistBool(t), nil
	case int:
		return bplistInt(int64(t)), nil
	case int8:
		return bplistInt(int64(t)), nil
	case int16:
		return bplistInt(int64(t)), nil
	case int32:
		return bplistInt(int64(t)), nil
	case int64:
		return bplistInt(t), nil
	case uint:
		return bplistInt(int64(t)), nil
	case uint8:
		return bplistInt(int64(t)), nil
	case uint16:
		return bplistInt(int64(t)), nil
	case uint32:
		return bplistInt(int64(t)), nil
	case uint64:
		return bplistInt(int64(t)), nil
	case float32:
		return bplistReal{value: float64(t), wide: true}, nil
	case float64:
		return bplistReal{value: t, wide: true}, nil
	case Date:
		return bplistDate(t.Offset()), nil
	case []byte:
		return bplistData(t), nil
	case string:
		return bplistString(t), nil
	case UID:
		return bplistUID(t), nil
	case []interface{}:
		out := make(bplistArray, len(t))
		for i, e := range t {
			ev, err := fromInterface(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]interface{}:
		d := &bplistDict{}
		for k, val := range t {
			vv, err := fromInterface(val)
			if err != nil {
				return nil, err
			}
			d.set(k, vv)
		}
		return d, nil
	case *OrderedDict:
		d := &bplistDict{}
		for i, k := range t.Keys {
			kv, err := fromInterface(k)
			if err != nil {
				return nil, err
			}
			vv, err := fromInterface(t.Values[i])
			if err != nil {
				return nil, err
			}
			d.keys = append(d.keys, kv)
			d.values = append(d.values, vv)
		}
		return d, nil
	default:
		return nil, newError(UnsupportedType, "cannot represent value in bplist")
	}
}
