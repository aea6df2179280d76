package plist

import "reflect"

// decodeDataclass fills ptr (a pointer to a zero value of ci.typ) from
// dec's archive record, one struct field at a time, in the type's
// declared field order. An archive field the struct has no place for is a
// decode error unless ci.ignoreUnmapped is set; a struct field absent from
// the archive keeps its zero value.
func decodeDataclass(ptr reflect.Value, dec *ObjectDecoder, ci *classInfo) error {
	tinfo, err := GetTypeInfo(ci.typ)
	if err != nil {
		return err
	}
	if !ci.ignoreUnmapped {
		known := make(map[string]bool, len(tinfo.Fields)+1)
		known["$class"] = true
		for _, f := range tinfo.Fields {
			known[f.Name] = true
		}
		for k := range dec.record {
			if !known[k] {
				return &Error{
					Kind:      SchemaViolation,
					Message:   "archive field " + k + " has no matching struct field",
					ClassName: ci.name,
					Offset:    -1,
					Index:     -1,
				}
			}
		}
	}

	val := ptr.Elem()
	for i := range tinfo.Fields {
		f := &tinfo.Fields[i]
		v, err := dec.Decode(f.Name)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		if err := assign(f.Value(val), v); err != nil {
			return err
		}
	}
	return nil
}

// encodeDataclass archives val's exported fields, in declared order, under
// their plist field name.
func encodeDataclass(val reflect.Value, enc *ObjectEncoder, ci *classInfo) error {
	tinfo, err := GetTypeInfo(ci.typ)
	if err != nil {
		return err
	}
	for i := range tinfo.Fields {
		f := &tinfo.Fields[i]
		fv := f.Value(val)
		if f.OmitEmpty && isEmptyValue(fv) {
			continue
		}
		if err := enc.Encode(f.Name, fv.Interface()); err != nil {
			return err
		}
	}
	return nil
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}

// assign copies the decoded value v into dst, converting between numeric
// kinds and recursing through slices, maps, and pointers as needed. It is
// the decode-side counterpart of the reflect-driven field assignment the
// teacher's map/dictionary unmarshaling used, generalized to dataclass
// struct fields and to UnarchiveInto's top-level assignment.
func assign(dst reflect.Value, v interface{}) error {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)

	if dst.Kind() == reflect.Interface {
		dst.Set(rv)
		return nil
	}
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if isNumericKind(rv.Kind()) && isNumericKind(dst.Kind()) && rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}
	if rv.Kind() == reflect.Ptr && !rv.IsNil() && rv.Elem().Type().AssignableTo(dst.Type()) {
		// A decoded class instance is always a pointer (see decodeCustom);
		// unwrap it when the destination itself expects the struct by value.
		dst.Set(rv.Elem())
		return nil
	}

	switch dst.Kind() {
	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assign(dst.Elem(), v)
	case reflect.Slice:
		if rv.Kind() != reflect.Slice {
			return newError(UnsupportedType, "cannot assign "+rv.Kind().String()+" to a slice field")
		}
		out := reflect.MakeSlice(dst.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if err := assign(out.Index(i), rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	case reflect.Map:
		if rv.Kind() != reflect.Map {
			return newError(UnsupportedType, "cannot assign "+rv.Kind().String()+" to a map field")
		}
		out := reflect.MakeMapWithSize(dst.Type(), rv.Len())
		for _, k := range rv.MapKeys() {
			keyOut := reflect.New(dst.Type().Key()).Elem()
			if err := assign(keyOut, k.Interface()); err != nil {
				return err
			}
			valOut := reflect.New(dst.Type().Elem()).Elem()
			if err := assign(valOut, rv.MapIndex(k).Interface()); err != nil {
				return err
			}
			out.SetMapIndex(keyOut, valOut)
		}
		dst.Set(out)
		return nil
	}
	return newError(UnsupportedType, "cannot assign "+rv.Type().String()+" to "+dst.Type().String())
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
