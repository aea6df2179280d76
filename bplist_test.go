package plist

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func roundTrip(t *testing.T, v interface{}) interface{} {
	t.Helper()
	data, err := Generate(v)
	if err != nil {
		t.Fatalf("Generate(%#v): %v", v, err)
	}
	if !strings.HasPrefix(string(data), bpMagic) {
		t.Fatalf("Generate output missing %q magic", bpMagic)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return got
}

func TestRoundTripScalars(t *testing.T) {
	cases := []interface{}{
		nil,
		true,
		false,
		int64(0),
		"",
		"hello, world",
		[]byte{},
		[]byte{0x01, 0x02, 0x03},
		3.14159,
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		if diff := cmp.Diff(v, got); diff != "" {
			t.Errorf("round trip of %#v: diff (-want +got):\n%s", v, diff)
		}
	}
}

func TestIntegerBoundaries(t *testing.T) {
	values := []int64{
		-1 << 63, -1, 0, 127, 128, 255, 256, 65535, 65536,
		1<<31 - 1, 1<<63 - 1,
	}
	for _, v := range values {
		got := roundTrip(t, v)
		gi, ok := got.(int64)
		if !ok || gi != v {
			t.Errorf("int64(%d) round-tripped to %#v", v, got)
		}
	}
}

func TestNegativeIntegerAlwaysEightBytes(t *testing.T) {
	data, err := Generate(int64(-1))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Object region starts right after the 8-byte magic; the sole object
	// (-1) is the first and only entry, so it begins at offset 8.
	marker := data[bpHeaderSize]
	if marker != 0x13 {
		t.Fatalf("marker = %#x, want 0x13 (int, width 8)", marker)
	}
	payload := data[bpHeaderSize+1 : bpHeaderSize+9]
	for _, b := range payload {
		if b != 0xFF {
			t.Fatalf("payload = % x, want eight 0xFF bytes (two's complement -1)", payload)
		}
	}
}

func TestStringDiscipline(t *testing.T) {
	cases := []string{
		"",
		strings.Repeat("a", 14), // inline length, still ASCII
		strings.Repeat("a", 15), // extended length, still ASCII
		"café",             // one non-ASCII code point forces UTF-16BE
		"\U0001F600",            // surrogate pair, counts as 2 code points
	}
	for _, s := range cases {
		got := roundTrip(t, s)
		if got != s {
			t.Errorf("string %q round-tripped to %q", s, got)
		}
	}
}

func TestCollectionSizeBoundary(t *testing.T) {
	for _, n := range []int{14, 15} {
		arr := make([]interface{}, n)
		for i := range arr {
			arr[i] = int64(i)
		}
		got := roundTrip(t, arr)
		if diff := cmp.Diff(arr, got); diff != "" {
			t.Errorf("array of length %d: diff (-want +got):\n%s", n, diff)
		}

		dict := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			dict[strings.Repeat("k", i+1)] = int64(i)
		}
		got = roundTrip(t, dict)
		if diff := cmp.Diff(dict, got); diff != "" {
			t.Errorf("dict of length %d: diff (-want +got):\n%s", n, diff)
		}
	}
}

func TestDateBoundaries(t *testing.T) {
	cases := []time.Time{
		time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC), // Cocoa epoch
		time.Unix(0, 0).UTC(),                       // Unix epoch
		time.Date(2101, 1, 1, 0, 0, 0, 0, time.UTC),  // +100 years
	}
	for _, c := range cases {
		d := NewDate(c)
		got := roundTrip(t, d)
		gotDate, ok := got.(Date)
		if !ok {
			t.Fatalf("round trip of %v returned %T, want Date", c, got)
		}
		if !gotDate.Time().Equal(c) {
			t.Errorf("date %v round-tripped to %v", c, gotDate.Time())
		}
	}
}

func TestNonStringKeyDictUsesOrderedDict(t *testing.T) {
	d := &OrderedDict{
		Keys:   []interface{}{int64(1), int64(2)},
		Values: []interface{}{"one", "two"},
	}
	got := roundTrip(t, d)
	gotDict, ok := got.(*OrderedDict)
	if !ok {
		t.Fatalf("round trip returned %T, want *OrderedDict", got)
	}
	if diff := cmp.Diff(d, gotDict); diff != "" {
		t.Errorf("OrderedDict round trip: diff (-want +got):\n%s", diff)
	}
}

func TestUIDRoundTrip(t *testing.T) {
	for _, u := range []UID{0, 1, 255, 256, 65536, 1 << 40} {
		got := roundTrip(t, u)
		if got != u {
			t.Errorf("UID(%d) round-tripped to %#v", u, got)
		}
	}
}

func TestRefSizeRetryOnLargeObjectCount(t *testing.T) {
	const n = 70000 // exceeds the 65536 values a 2-byte ref_size can index
	arr := make([]interface{}, n)
	for i := range arr {
		arr[i] = int64(i)
	}
	data, err := Generate(arr)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	trailer := data[len(data)-bpTrailerSize:]
	if refSize := trailer[7]; refSize != 4 {
		t.Errorf("ref_size = %d, want 4 after retry", refSize)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	gotArr, ok := got.([]interface{})
	if !ok || len(gotArr) != n {
		t.Fatalf("round trip produced %d elements, want %d", len(gotArr), n)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	// Padded past header+trailer size so the magic check, not the length
	// check, is what rejects it.
	_, err := Parse([]byte("not a bplist file at all" + strings.Repeat(" ", 40)))
	if !IsKind(err, InputMalformed) {
		t.Fatalf("Parse of garbage input: err = %v, want InputMalformed", err)
	}
}

func TestParseRejectsTruncatedInput(t *testing.T) {
	data, err := Generate("hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	_, err = Parse(data[:bpHeaderSize])
	if !IsKind(err, InputMalformed) {
		t.Fatalf("Parse of header-only input: err = %v, want InputMalformed", err)
	}
}
