package plist

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Unarchive decodes an NSKeyedArchiver-format bplist and returns the value
// stored under its "root" key, or a map[string]interface{} keyed by
// top-level name if the archive has more than one.
//
// Decoded values take the same boundary shapes as Parse's, plus: NSNull
// decodes to nil, NSArray/NSSet to []interface{}, NSDictionary to
// map[string]interface{}, and an instance of a class registered with
// Register or RegisterDataclass decodes to a pointer to that Go type.
func Unarchive(data []byte) (interface{}, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	top, ok := v.(map[string]interface{})
	if !ok {
		return nil, newError(SchemaViolation, "top-level value is not a dictionary")
	}
	return unarchiveTop(top)
}

// UnarchiveInto decodes data like Unarchive and then assigns the result
// into *v via reflection, matching the assignment rules dataclass decoding
// uses for a registered struct's fields. v must be a non-nil pointer.
func UnarchiveInto(data []byte, v interface{}) error {
	result, err := Unarchive(data)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return newError(UnsupportedType, "UnarchiveInto requires a non-nil pointer")
	}
	return assign(rv.Elem(), result)
}

func unarchiveTop(top map[string]interface{}) (interface{}, error) {
	archiverName, _ := top["$archiver"].(string)
	if archiverName != "NSKeyedArchiver" {
		return nil, newError(SchemaViolation, "missing or unrecognized $archiver")
	}
	version, ok := top["$version"].(int64)
	if !ok || version != 100000 {
		return nil, newError(SchemaViolation, "missing or unsupported $version")
	}
	objectsRaw, ok := top["$objects"].([]interface{})
	if !ok || len(objectsRaw) == 0 {
		return nil, newError(SchemaViolation, "missing or empty $objects")
	}
	if s, ok := objectsRaw[0].(string); !ok || s != "$null" {
		return nil, newError(SchemaViolation, "$objects[0] is not \"$null\"")
	}
	topDict, ok := top["$top"].(map[string]interface{})
	if !ok || len(topDict) == 0 {
		return nil, newError(SchemaViolation, "missing or empty $top")
	}

	u := &unarchiver{objects: objectsRaw, cache: make(map[UID]interface{}, len(objectsRaw))}

	if rootVal, ok := topDict["root"]; ok && len(topDict) == 1 {
		uid, ok := rootVal.(UID)
		if !ok {
			return nil, newError(SchemaViolation, "$top[\"root\"] is not a UID")
		}
		return u.resolve(uid)
	}

	result := make(map[string]interface{}, len(topDict))
	for name, val := range topDict {
		uid, ok := val.(UID)
		if !ok {
			return nil, newError(SchemaViolation, "$top entry is not a UID")
		}
		v, err := u.resolve(uid)
		if err != nil {
			return nil, err
		}
		result[name] = v
	}
	return result, nil
}

// unarchiver walks an archive's $objects table, resolving UID references
// to their decoded values.
type unarchiver struct {
	objects []interface{}
	cache   map[UID]interface{}
}

// cycleMarker occupies a UID's cache slot for the duration of a decode
// that has not yet produced a stable placeholder. Seeing one on re-entry
// means the archive contains a cycle a placeholder cannot make safe.
type cycleMarker struct{}

// resolve returns the decoded value for uid, memoizing it so a value
// referenced from more than one place decodes exactly once and keeps a
// single identity (for container and class-instance values, which decode
// to reference types). Containers and custom-class instances install
// their own placeholder into the cache before populating it, so a cyclic
// reference back to an in-progress object resolves to that placeholder
// rather than recursing.
func (u *unarchiver) resolve(id UID) (interface{}, error) {
	if id == 0 {
		return nil, nil
	}
	if cached, ok := u.cache[id]; ok {
		if _, stuck := cached.(cycleMarker); stuck {
			return nil, errAtIndex(SchemaViolation, int(id), "circular reference cannot be resolved")
		}
		return cached, nil
	}
	idx := int(id)
	if idx < 0 || idx >= len(u.objects) {
		return nil, errAtIndex(IndexOutOfRange, idx, "uid out of range")
	}
	u.cache[id] = cycleMarker{}
	result, err := u.decodeRecord(id, u.objects[idx])
	if err != nil {
		return nil, err
	}
	u.cache[id] = result
	return result, nil
}

func (u *unarchiver) decodeRecord(id UID, raw interface{}) (interface{}, error) {
	dict, isDict := raw.(map[string]interface{})
	if !isDict {
		// A plain bplist primitive: bool, int64, float64, Date, []byte,
		// string. Object records without $class never appear on the wire
		// from a well-formed archiver and are rejected below.
		return raw, nil
	}
	classVal, ok := dict["$class"]
	if !ok {
		return nil, newError(SchemaViolation, "object record missing $class")
	}
	classUID, ok := classVal.(UID)
	if !ok {
		return nil, newError(SchemaViolation, "$class is not a UID")
	}
	className, err := u.classNameFor(classUID)
	if err != nil {
		return nil, err
	}

	switch className {
	case "NSNull":
		return nil, nil
	case "NSDictionary", "NSMutableDictionary":
		return u.decodeDictionary(id, dict)
	case "NSArray", "NSMutableArray", "NSSet", "NSMutableSet":
		return u.decodeSequence(id, dict)
	case "NSString", "NSMutableString":
		return u.decodeField(dict, "NS.string")
	case "NSDate":
		return u.decodeDate(dict)
	case "NSData", "NSMutableData":
		return u.decodeField(dict, "NS.data")
	case "NSUUID":
		return u.decodeUUID(dict)
	default:
		ci := globalRegistry.lookupByName(className)
		if ci == nil {
			return nil, errUnsupportedClass(className)
		}
		return u.decodeCustom(id, dict, ci)
	}
}

func (u *unarchiver) classNameFor(classUID UID) (string, error) {
	idx := int(classUID)
	if idx < 0 || idx >= len(u.objects) {
		return "", errAtIndex(IndexOutOfRange, idx, "class uid out of range")
	}
	rec, ok := u.objects[idx].(map[string]interface{})
	if !ok {
		return "", newError(SchemaViolation, "class record is not a dictionary")
	}
	name, ok := rec["$classname"].(string)
	if !ok {
		return "", newError(SchemaViolation, "class record missing $classname")
	}
	return name, nil
}

// decodeField resolves the value of an object record field: a UID
// reference is followed through resolve, an inlined primitive is returned
// as-is, and an absent key decodes to nil.
func (u *unarchiver) decodeField(dict map[string]interface{}, key string) (interface{}, error) {
	val, ok := dict[key]
	if !ok {
		return nil, nil
	}
	if uid, ok := val.(UID); ok {
		return u.resolve(uid)
	}
	return val, nil
}

func (u *unarchiver) decodeUIDList(dict map[string]interface{}, key string) ([]UID, error) {
	raw, ok := dict[key].([]interface{})
	if !ok {
		return nil, newError(SchemaViolation, fmt.Sprintf("missing or malformed %s", key))
	}
	out := make([]UID, len(raw))
	for i, v := range raw {
		uid, ok := v.(UID)
		if !ok {
			return nil, newError(SchemaViolation, fmt.Sprintf("%s element is not a UID", key))
		}
		out[i] = uid
	}
	return out, nil
}

func (u *unarchiver) decodeDictionary(id UID, dict map[string]interface{}) (interface{}, error) {
	keyUIDs, err := u.decodeUIDList(dict, "NS.keys")
	if err != nil {
		return nil, err
	}
	valUIDs, err := u.decodeUIDList(dict, "NS.objects")
	if err != nil {
		return nil, err
	}
	if len(keyUIDs) != len(valUIDs) {
		return nil, newError(SchemaViolation, "NS.keys and NS.objects differ in length")
	}

	result := make(map[string]interface{}, len(keyUIDs))
	u.cache[id] = result // map is a reference type: safe placeholder for cycles
	for i := range keyUIDs {
		k, err := u.resolve(keyUIDs[i])
		if err != nil {
			return nil, err
		}
		v, err := u.resolve(valUIDs[i])
		if err != nil {
			return nil, err
		}
		ks, ok := k.(string)
		if !ok {
			logrus.WithField("key", k).Warn("plist: non-string dictionary key, stringifying")
			ks = fmt.Sprintf("%v", k)
		}
		result[ks] = v
	}
	return result, nil
}

func (u *unarchiver) decodeSequence(id UID, dict map[string]interface{}) (interface{}, error) {
	elemUIDs, err := u.decodeUIDList(dict, "NS.objects")
	if err != nil {
		return nil, err
	}
	result := make([]interface{}, len(elemUIDs))
	u.cache[id] = result // slice header shares the backing array: safe placeholder
	for i, eid := range elemUIDs {
		v, err := u.resolve(eid)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (u *unarchiver) decodeDate(dict map[string]interface{}) (interface{}, error) {
	val, err := u.decodeField(dict, "NS.time")
	if err != nil {
		return nil, err
	}
	secs, ok := val.(float64)
	if !ok {
		return nil, newError(SchemaViolation, "NS.time is not a float")
	}
	return DateFromOffset(secs), nil
}

func (u *unarchiver) decodeUUID(dict map[string]interface{}) (interface{}, error) {
	val, err := u.decodeField(dict, "NS.uuidbytes")
	if err != nil {
		return nil, err
	}
	b, ok := val.([]byte)
	if !ok {
		return nil, newError(SchemaViolation, "NS.uuidbytes is not a data value")
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return nil, newError(SchemaViolation, "NS.uuidbytes is not 16 bytes")
	}
	return id, nil
}

func (u *unarchiver) decodeCustom(id UID, dict map[string]interface{}, ci *classInfo) (interface{}, error) {
	ptr := reflect.New(ci.typ)
	u.cache[id] = ptr.Interface() // pointer is a stable placeholder: cycles resolve to it
	dec := &ObjectDecoder{record: dict, u: u}
	if ci.isDataclass {
		if err := decodeDataclass(ptr, dec, ci); err != nil {
			return nil, err
		}
	} else {
		adapter, ok := ptr.Interface().(Adapter)
		if !ok {
			return nil, newError(SchemaViolation, fmt.Sprintf("registered type for %q does not implement Adapter", ci.name))
		}
		if err := adapter.DecodeArchive(dec); err != nil {
			return nil, err
		}
	}
	return ptr.Interface(), nil
}

// ObjectDecoder is the view a registered Adapter's DecodeArchive method
// uses to pull field values out of the archive record for the object
// currently being decoded.
type ObjectDecoder struct {
	record map[string]interface{}
	u      *unarchiver
}

// Decode resolves the archive field named key: a UID-valued field is
// followed to its referent, an inlined primitive is returned directly,
// and a field absent from the record decodes to nil.
func (d *ObjectDecoder) Decode(key string) (interface{}, error) {
	return d.u.decodeField(d.record, key)
}

// Has reports whether the archive record for the object being decoded
// contains key, independent of what its value decodes to.
func (d *ObjectDecoder) Has(key string) bool {
	_, ok := d.record[key]
	return ok
}
