package plist

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// point is a hand-written Adapter, grounded the way a caller with its own
// encode/decode logic (rather than a plain field-mapped struct) would use
// the registry.
type point struct {
	X, Y int64
}

func (p *point) EncodeArchive(enc *ObjectEncoder) error {
	if err := enc.Encode("x", p.X); err != nil {
		return err
	}
	return enc.Encode("y", p.Y)
}

func (p *point) DecodeArchive(dec *ObjectDecoder) error {
	x, err := dec.Decode("x")
	if err != nil {
		return err
	}
	y, err := dec.Decode("y")
	if err != nil {
		return err
	}
	p.X, _ = x.(int64)
	p.Y, _ = y.(int64)
	return nil
}

// node is a self-referential Adapter, used to exercise cycle-safe decode.
type node struct {
	Name string
	Next *node
}

func (n *node) EncodeArchive(enc *ObjectEncoder) error {
	if err := enc.Encode("name", n.Name); err != nil {
		return err
	}
	return enc.Encode("next", n.Next)
}

func (n *node) DecodeArchive(dec *ObjectDecoder) error {
	name, err := dec.Decode("name")
	if err != nil {
		return err
	}
	n.Name, _ = name.(string)
	next, err := dec.Decode("next")
	if err != nil {
		return err
	}
	if next != nil {
		n.Next, _ = next.(*node)
	}
	return nil
}

func init() {
	Register("TestPoint", (*point)(nil))
	Register("TestNode", (*node)(nil))
}

func TestArchiveSimpleDictRoundTrip(t *testing.T) {
	v := map[string]interface{}{
		"name": "Ada",
		"age":  int64(36),
		"tags": []interface{}{"math", "computing"},
	}
	data, err := Archive(v)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("round trip: diff (-want +got):\n%s", diff)
	}
}

func TestArchiveNullSentinel(t *testing.T) {
	data, err := Archive(nil)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if got != nil {
		t.Errorf("Unarchive(Archive(nil)) = %#v, want nil", got)
	}
}

func TestArchiveRegisteredClassRoundTrip(t *testing.T) {
	p := &point{X: 3, Y: 4}
	data, err := Archive(p)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	gp, ok := got.(*point)
	if !ok {
		t.Fatalf("Unarchive returned %T, want *point", got)
	}
	if *gp != *p {
		t.Errorf("round trip: got %+v, want %+v", gp, p)
	}
}

func TestArchiveUnknownClassError(t *testing.T) {
	// A plain Go value never produces an unregistered-class record, so the
	// archive is constructed by hand to exercise the decode-side error path.
	top := map[string]interface{}{
		"$archiver": "NSKeyedArchiver",
		"$version":  int64(100000),
		"$objects": []interface{}{
			"$null",
			map[string]interface{}{"$class": UID(2)},
			map[string]interface{}{"$classname": "NSFancyUnsupportedThing", "$classes": []interface{}{"NSFancyUnsupportedThing"}},
		},
		"$top": map[string]interface{}{"root": UID(1)},
	}
	data, err := Generate(top)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	_, err = Unarchive(data)
	name, ok := IsUnsupportedClass(err)
	if !ok || name != "NSFancyUnsupportedThing" {
		t.Fatalf("Unarchive: err = %v, want UnsupportedClass(NSFancyUnsupportedThing)", err)
	}
}

func TestArchiveSharedObjectIdentity(t *testing.T) {
	shared := []interface{}{"shared"}
	v := []interface{}{shared, shared}
	data, err := Archive(v)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	gotArr, ok := got.([]interface{})
	if !ok || len(gotArr) != 2 {
		t.Fatalf("Unarchive returned %#v, want a 2-element slice", got)
	}
	a, aok := gotArr[0].([]interface{})
	b, bok := gotArr[1].([]interface{})
	if !aok || !bok {
		t.Fatalf("elements are %T, %T, want []interface{}", gotArr[0], gotArr[1])
	}
	if reflect.ValueOf(a).Pointer() != reflect.ValueOf(b).Pointer() {
		t.Error("shared slice was archived twice: decoded elements do not share identity")
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("shared slice diverged after round trip: %s", diff)
	}
}

func TestArchiveCyclicGraph(t *testing.T) {
	a := &node{Name: "a"}
	b := &node{Name: "b"}
	a.Next = b
	b.Next = a // cycle

	data, err := Archive(a)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	ga, ok := got.(*node)
	if !ok {
		t.Fatalf("Unarchive returned %T, want *node", got)
	}
	if ga.Name != "a" || ga.Next == nil || ga.Next.Name != "b" {
		t.Fatalf("decoded graph = %+v", ga)
	}
	if ga.Next.Next != ga {
		t.Errorf("cycle not preserved: ga.Next.Next = %p, want %p (ga itself)", ga.Next.Next, ga)
	}
}

func TestArchiveMultipleRoots(t *testing.T) {
	data, err := ArchiveMultiple(map[string]interface{}{
		"first":  int64(1),
		"second": "two",
	})
	if err != nil {
		t.Fatalf("ArchiveMultiple: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	m, ok := got.(map[string]interface{})
	if !ok {
		t.Fatalf("Unarchive returned %T, want map[string]interface{}", got)
	}
	if m["first"] != int64(1) || m["second"] != "two" {
		t.Errorf("Unarchive = %#v", m)
	}
}

func TestArchiveUUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	data, err := Archive(id)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	gotID, ok := got.(uuid.UUID)
	if !ok || gotID != id {
		t.Errorf("Unarchive returned %#v, want %v", got, id)
	}
}

func TestUnarchiveIntoStruct(t *testing.T) {
	w := &wrapperForArchive{Values: []int64{1, 2, 3}}
	data, err := Archive(w)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	var out wrapperForArchive
	if err := UnarchiveInto(data, &out); err != nil {
		t.Fatalf("UnarchiveInto: %v", err)
	}
	if diff := cmp.Diff(w.Values, out.Values); diff != "" {
		t.Errorf("UnarchiveInto: diff (-want +got):\n%s", diff)
	}
}

type wrapperForArchive struct {
	Values []int64
}

func init() {
	RegisterDataclass("TestWrapperForArchive", reflect.TypeOf(wrapperForArchive{}))
}
