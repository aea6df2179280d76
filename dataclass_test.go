package plist

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type contact struct {
	Name    string `plist:"NS.name"`
	Age     int64  `plist:"NS.age"`
	private string
}

func init() {
	RegisterDataclass("TestContact", reflect.TypeOf(contact{}))
}

func TestDataclassRoundTrip(t *testing.T) {
	c := &contact{Name: "Grace Hopper", Age: 85}
	data, err := Archive(c)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	gc, ok := got.(*contact)
	if !ok {
		t.Fatalf("Unarchive returned %T, want *contact", got)
	}
	if diff := cmp.Diff(c, gc, cmp.AllowUnexported(contact{})); diff != "" {
		t.Errorf("round trip: diff (-want +got):\n%s", diff)
	}
}

func TestDataclassMissingFieldDecodesToZeroValue(t *testing.T) {
	top := map[string]interface{}{
		"$archiver": "NSKeyedArchiver",
		"$version":  int64(100000),
		"$objects": []interface{}{
			"$null",
			map[string]interface{}{"$class": UID(2), "NS.name": UID(3)},
			map[string]interface{}{"$classname": "TestContact", "$classes": []interface{}{"TestContact", "NSObject"}},
			"Alan Turing",
		},
		"$top": map[string]interface{}{"root": UID(1)},
	}
	data, err := Generate(top)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	gc, ok := got.(*contact)
	if !ok {
		t.Fatalf("Unarchive returned %T, want *contact", got)
	}
	if gc.Name != "Alan Turing" || gc.Age != 0 {
		t.Errorf("decoded %+v, want Name=Alan Turing Age=0", gc)
	}
}

type strictDataclass struct {
	Known string `plist:"known"`
}

type lenientDataclass struct {
	Known string `plist:"known"`
}

func init() {
	RegisterDataclass("TestStrictDataclass", reflect.TypeOf(strictDataclass{}))
	RegisterDataclass("TestLenientDataclass", reflect.TypeOf(lenientDataclass{}), IgnoreUnmappedFields())
}

func archiveWithExtraField(className string) ([]byte, error) {
	return Generate(map[string]interface{}{
		"$archiver": "NSKeyedArchiver",
		"$version":  int64(100000),
		"$objects": []interface{}{
			"$null",
			map[string]interface{}{
				"$class":  UID(2),
				"known":   UID(3),
				"unknown": UID(4),
			},
			map[string]interface{}{"$classname": className, "$classes": []interface{}{className, "NSObject"}},
			"expected",
			"surprise",
		},
		"$top": map[string]interface{}{"root": UID(1)},
	})
}

func TestDataclassRejectsUnmappedFieldByDefault(t *testing.T) {
	data, err := archiveWithExtraField("TestStrictDataclass")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	_, err = Unarchive(data)
	if !IsKind(err, SchemaViolation) {
		t.Fatalf("Unarchive: err = %v, want SchemaViolation", err)
	}
}

func TestDataclassIgnoreUnmappedFieldsOption(t *testing.T) {
	data, err := archiveWithExtraField("TestLenientDataclass")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	lc, ok := got.(*lenientDataclass)
	if !ok {
		t.Fatalf("Unarchive returned %T, want *lenientDataclass", got)
	}
	if lc.Known != "expected" {
		t.Errorf("decoded Known = %q, want %q", lc.Known, "expected")
	}
}

func TestDataclassNestedSlice(t *testing.T) {
	type bag struct {
		Items []string `plist:"items"`
	}
	RegisterDataclass("TestBag", reflect.TypeOf(bag{}))
	b := &bag{Items: []string{"a", "b", "c"}}
	data, err := Archive(b)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	gb, ok := got.(*bag)
	if !ok {
		t.Fatalf("Unarchive returned %T, want *bag", got)
	}
	if diff := cmp.Diff(b.Items, gb.Items); diff != "" {
		t.Errorf("round trip: diff (-want +got):\n%s", diff)
	}
}
