package plist

import (
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	satoriuuid "github.com/satori/go.uuid"
)

// Options configures a call to ArchiveWithOptions.
type Options struct {
	// TopKey names the entry v is archived under in $top. Defaults to
	// "root", the convention NSKeyedArchiver itself uses for a single
	// root object.
	TopKey string
}

// Archive encodes v into an NSKeyedArchiver-format bplist, with v stored
// under the conventional "root" key.
//
// v may be any value Generate accepts other than *OrderedDict (which is
// rejected with UnsupportedType), plus: nil pointers, Date, time.Time,
// []byte, github.com/google/uuid.UUID and github.com/satori/go.uuid.UUID
// values, struct values and struct pointers whose type was registered with
// Register or RegisterDataclass, and maps/slices/arrays of any of the
// above. A *T passed more than once — directly or through a shared field —
// is archived once and referenced by UID everywhere else, preserving its
// identity and making cyclic object graphs safe to archive.
func Archive(v interface{}) ([]byte, error) {
	return ArchiveWithOptions(v, Options{})
}

// ArchiveWithOptions is Archive with control over the $top key v is stored
// under.
func ArchiveWithOptions(v interface{}, opts Options) ([]byte, error) {
	key := opts.TopKey
	if key == "" {
		key = "root"
	}
	return archiveRoots(map[string]interface{}{key: v})
}

// ArchiveMultiple encodes several root objects into one archive, each
// reachable by its key in $top. Shared objects referenced from more than
// one root are still archived only once.
func ArchiveMultiple(roots map[string]interface{}) ([]byte, error) {
	return archiveRoots(roots)
}

func archiveRoots(roots map[string]interface{}) ([]byte, error) {
	as := &archiveState{
		objects:        []interface{}{"$null"},
		seen:           make(map[uintptr]UID),
		classRecordIDs: make(map[string]UID),
	}
	top := make(map[string]interface{}, len(roots))
	for name, v := range roots {
		id, err := as.encode(v)
		if err != nil {
			return nil, err
		}
		top[name] = id
	}
	return Generate(map[string]interface{}{
		"$version":  int64(100000),
		"$archiver": "NSKeyedArchiver",
		"$top":      top,
		"$objects":  as.objects,
	})
}

// archiveState accumulates the $objects table as Archive walks v.
type archiveState struct {
	objects        []interface{}
	seen           map[uintptr]UID // pointer/map/slice identity -> uid
	classRecordIDs map[string]UID  // class name -> its class record's uid
}

func (as *archiveState) encode(v interface{}) (UID, error) {
	if v == nil {
		return 0, nil
	}
	return as.encodeValue(reflect.ValueOf(v))
}

func (as *archiveState) encodeValue(rv reflect.Value) (UID, error) {
	if !rv.IsValid() {
		return 0, nil
	}

	switch t := rv.Interface().(type) {
	case Date:
		return as.encodeDate(t)
	case time.Time:
		return as.encodeDate(NewDate(t))
	case uuid.UUID:
		return as.encodeUUID(t[:])
	case satoriuuid.UUID:
		return as.encodeUUID(t.Bytes())
	case UID:
		return as.appendPrimitive(t), nil
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return 0, nil
		}
		elem := rv.Elem()
		if elem.Kind() == reflect.Struct {
			if ci := globalRegistry.lookupByType(elem.Type()); ci != nil {
				return as.encodeRegisteredPtr(rv, ci)
			}
		}
		return as.encodeValue(elem)
	case reflect.Interface:
		if rv.IsNil() {
			return 0, nil
		}
		return as.encodeValue(rv.Elem())
	case reflect.Map:
		return as.encodeMap(rv)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return 0, nil
			}
			return as.encodeData(rv.Bytes())
		}
		if rv.IsNil() {
			return 0, nil
		}
		return as.encodeSequence(rv)
	case reflect.Array:
		return as.encodeSequence(rv)
	case reflect.Struct:
		ci := globalRegistry.lookupByType(rv.Type())
		if ci == nil {
			return 0, newError(UnsupportedType, "unregistered struct type "+rv.Type().String())
		}
		return as.encodeRegisteredValue(rv, ci)
	case reflect.String:
		return as.encodeString(rv.String())
	case reflect.Bool:
		return as.encodeBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return as.encodeInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return as.encodeInt(int64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return as.encodeFloat(rv.Float())
	default:
		return 0, newError(UnsupportedType, "cannot archive value of kind "+rv.Kind().String())
	}
}

// identity returns the address backing a pointer, map, or slice value, for
// deduplicating shared containers by Go reference identity. Other kinds
// have no stable address to key on and are always archived fresh.
func (as *archiveState) identity(rv reflect.Value) (uintptr, bool) {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}

func (as *archiveState) reserve() UID {
	as.objects = append(as.objects, nil)
	return UID(len(as.objects) - 1)
}

func (as *archiveState) appendPrimitive(v interface{}) UID {
	as.objects = append(as.objects, v)
	return UID(len(as.objects) - 1)
}

func (as *archiveState) encodeBool(b bool) (UID, error)     { return as.appendPrimitive(b), nil }
func (as *archiveState) encodeInt(i int64) (UID, error)     { return as.appendPrimitive(i), nil }
func (as *archiveState) encodeFloat(f float64) (UID, error) { return as.appendPrimitive(f), nil }
func (as *archiveState) encodeString(s string) (UID, error) { return as.appendPrimitive(s), nil }

func (as *archiveState) encodeData(b []byte) (UID, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return as.appendPrimitive(out), nil
}

// classRecord returns the uid of name's class record, creating it (and
// appending "NSObject" to its ancestor chain, matching what a real
// NSKeyedArchiver writes) the first time name is seen.
func (as *archiveState) classRecord(name string, ancestors ...string) UID {
	if id, ok := as.classRecordIDs[name]; ok {
		return id
	}
	if len(ancestors) == 0 {
		ancestors = []string{name, "NSObject"}
	}
	classes := make([]interface{}, len(ancestors))
	for i, a := range ancestors {
		classes[i] = a
	}
	id := as.reserve()
	as.classRecordIDs[name] = id
	as.objects[id] = map[string]interface{}{
		"$classname": name,
		"$classes":   classes,
	}
	return id
}

func (as *archiveState) encodeDate(d Date) (UID, error) {
	id := as.reserve()
	as.objects[id] = map[string]interface{}{
		"$class":  as.classRecord("NSDate"),
		"NS.time": d.Offset(),
	}
	return id, nil
}

func (as *archiveState) encodeUUID(b []byte) (UID, error) {
	id := as.reserve()
	out := make([]byte, len(b))
	copy(out, b)
	as.objects[id] = map[string]interface{}{
		"$class":       as.classRecord("NSUUID"),
		"NS.uuidbytes": out,
	}
	return id, nil
}

func (as *archiveState) encodeMap(rv reflect.Value) (UID, error) {
	if rv.Type().Key().Kind() != reflect.String {
		return 0, newError(UnsupportedType, "map key must be a string")
	}
	if addr, ok := as.identity(rv); ok {
		if id, cached := as.seen[addr]; cached {
			return id, nil
		}
		id := as.reserve()
		as.seen[addr] = id
		return as.fillMap(id, rv)
	}
	return as.fillMap(as.reserve(), rv)
}

func (as *archiveState) fillMap(id UID, rv reflect.Value) (UID, error) {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	keyIDs := make([]interface{}, len(keys))
	valIDs := make([]interface{}, len(keys))
	for i, k := range keys {
		kid, err := as.encodeString(k.String())
		if err != nil {
			return 0, err
		}
		keyIDs[i] = kid
		vid, err := as.encodeValue(rv.MapIndex(k))
		if err != nil {
			return 0, err
		}
		valIDs[i] = vid
	}
	as.objects[id] = map[string]interface{}{
		"$class":     as.classRecord("NSDictionary"),
		"NS.keys":    keyIDs,
		"NS.objects": valIDs,
	}
	return id, nil
}

func (as *archiveState) encodeSequence(rv reflect.Value) (UID, error) {
	if addr, ok := as.identity(rv); ok {
		if id, cached := as.seen[addr]; cached {
			return id, nil
		}
		id := as.reserve()
		as.seen[addr] = id
		return as.fillSequence(id, rv)
	}
	return as.fillSequence(as.reserve(), rv)
}

func (as *archiveState) fillSequence(id UID, rv reflect.Value) (UID, error) {
	n := rv.Len()
	elemIDs := make([]interface{}, n)
	for i := 0; i < n; i++ {
		eid, err := as.encodeValue(rv.Index(i))
		if err != nil {
			return 0, err
		}
		elemIDs[i] = eid
	}
	as.objects[id] = map[string]interface{}{
		"$class":     as.classRecord("NSArray"),
		"NS.objects": elemIDs,
	}
	return id, nil
}

func (as *archiveState) encodeRegisteredPtr(rv reflect.Value, ci *classInfo) (UID, error) {
	addr := rv.Pointer()
	if id, ok := as.seen[addr]; ok {
		return id, nil
	}
	id := as.reserve()
	as.seen[addr] = id
	return as.fillRegistered(id, rv.Elem(), ci, rv)
}

func (as *archiveState) encodeRegisteredValue(rv reflect.Value, ci *classInfo) (UID, error) {
	id := as.reserve()
	return as.fillRegistered(id, rv, ci, reflect.Value{})
}

// fillRegistered runs a registered class's encode hook. ptr, when valid,
// is the original pointer value (needed to satisfy a pointer-receiver
// Adapter); for a by-value struct a fresh pointer is synthesized instead.
func (as *archiveState) fillRegistered(id UID, elem reflect.Value, ci *classInfo, ptr reflect.Value) (UID, error) {
	enc := &ObjectEncoder{
		fields: map[string]interface{}{"$class": as.classRecord(ci.name, ci.classes...)},
		as:     as,
	}
	if ci.isDataclass {
		if err := encodeDataclass(elem, enc, ci); err != nil {
			return 0, err
		}
		as.objects[id] = enc.fields
		return id, nil
	}
	if !ptr.IsValid() {
		ptr = reflect.New(ci.typ)
		ptr.Elem().Set(elem)
	}
	adapter, ok := ptr.Interface().(Adapter)
	if !ok {
		return 0, newError(SchemaViolation, "registered type for \""+ci.name+"\" does not implement Adapter")
	}
	if err := adapter.EncodeArchive(enc); err != nil {
		return 0, err
	}
	as.objects[id] = enc.fields
	return id, nil
}

// ObjectEncoder is the view a registered Adapter's EncodeArchive method
// uses to add fields to the archive record for the object currently being
// encoded.
type ObjectEncoder struct {
	fields map[string]interface{}
	as     *archiveState
}

// Encode archives v and stores a reference to it under key in the current
// object's record.
func (e *ObjectEncoder) Encode(key string, v interface{}) error {
	id, err := e.as.encode(v)
	if err != nil {
		return err
	}
	e.fields[key] = id
	return nil
}
