package plist

import "unicode/utf16"

var errRefSizeTooSmall = newError(Overflow, "ref_size too small for object count")

// Generate serializes v (one of the boundary representations documented on
// Parse) into a complete bplist00 byte stream.
func Generate(v interface{}) ([]byte, error) {
	bv, err := fromInterface(v)
	if err != nil {
		return nil, err
	}
	return generateBplist(bv)
}

func generateBplist(v bplistValue) ([]byte, error) {
	out, err := runGenerate(v, 2)
	if err == errRefSizeTooSmall {
		out, err = runGenerate(v, 4)
		if err == errRefSizeTooSmall {
			return nil, newError(Overflow, "object count exceeds representable ref_size")
		}
	}
	return out, err
}

// internedNode is one entry in the flattened object list the generator
// builds before emitting any bytes. For containers, the reference ids of
// its children are recorded directly as they are interned, so emission
// never needs to search for a child's id (bplistArray, a slice, is not a
// comparable Go type, so identity cannot be recovered later by equality).
type internedNode struct {
	value       bplistValue
	arrayRefs   []int
	dictKeyRefs []int
	dictValRefs []int
}

type genState struct {
	refSize int
	nodes   []*internedNode
	dictIDs map[*bplistDict]int // pointer-identity dedup for shared dicts
	offsets []int
	buf     []byte
}

// runGenerate flattens v into an object list (deduplicating shared
// *bplistDict pointers — the only bplistValue a caller could plausibly
// share across a tree, since arrays and scalars are always copied through
// fromInterface), then emits each object depth-first in a second pass,
// back-filling array/dict reference slots from the ids recorded during
// interning.
func runGenerate(root bplistValue, refSize int) ([]byte, error) {
	gs := &genState{refSize: refSize, dictIDs: make(map[*bplistDict]int)}
	gs.buf = append(gs.buf, []byte(bpMagic)...)

	rootID, err := gs.intern(root)
	if err != nil {
		return nil, err
	}

	gs.offsets = make([]int, len(gs.nodes))
	for i, node := range gs.nodes {
		gs.offsets[i] = len(gs.buf)
		if err := gs.emit(node); err != nil {
			return nil, err
		}
	}

	offsetTableStart := len(gs.buf)
	offsetSize := 1
	if len(gs.offsets) > 0 {
		offsetSize = widthFor241(gs.offsets[len(gs.offsets)-1])
	}
	for _, off := range gs.offsets {
		gs.buf = putUintWidth(gs.buf, uint64(off), offsetSize)
	}

	gs.buf = append(gs.buf, make([]byte, 6)...) // reserved + sort version
	gs.buf = append(gs.buf, byte(offsetSize), byte(gs.refSize))
	gs.buf = putUintWidth(gs.buf, uint64(len(gs.nodes)), 8)
	gs.buf = putUintWidth(gs.buf, uint64(rootID), 8)
	gs.buf = putUintWidth(gs.buf, uint64(offsetTableStart), 8)

	return gs.buf, nil
}

// widthFor241 picks the smallest of {1,2,4} that holds v; unlike widthFor
// (used for integer/UID object payloads, which may need 8 bytes), offset
// table entries never need 8 bytes per §4.3's width-choice rule.
func widthFor241(v int) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

// intern registers v and recursively interns its children, returning its
// object id. Containers record their children's ids on the spot.
func (gs *genState) intern(v bplistValue) (int, error) {
	if p, ok := v.(*bplistDict); ok {
		if id, ok := gs.dictIDs[p]; ok {
			return id, nil
		}
	}

	id := len(gs.nodes)
	if uint64(id) >= refCapacity(gs.refSize) {
		return 0, errRefSizeTooSmall
	}
	node := &internedNode{value: v}
	gs.nodes = append(gs.nodes, node)
	if p, ok := v.(*bplistDict); ok {
		gs.dictIDs[p] = id
	}

	switch t := v.(type) {
	case bplistArray:
		node.arrayRefs = make([]int, len(t))
		for i, e := range t {
			cid, err := gs.intern(e)
			if err != nil {
				return 0, err
			}
			node.arrayRefs[i] = cid
		}
	case *bplistDict:
		node.dictKeyRefs = make([]int, len(t.keys))
		for i, k := range t.keys {
			cid, err := gs.intern(k)
			if err != nil {
				return 0, err
			}
			node.dictKeyRefs[i] = cid
		}
		node.dictValRefs = make([]int, len(t.values))
		for i, val := range t.values {
			cid, err := gs.intern(val)
			if err != nil {
				return 0, err
			}
			node.dictValRefs[i] = cid
		}
	}
	return id, nil
}

func refCapacity(refSize int) uint64 {
	if refSize >= 8 {
		return 1<<64 - 1
	}
	return uint64(1) << (8 * refSize)
}

func (gs *genState) emit(node *internedNode) error {
	switch t := node.value.(type) {
	case nil:
		gs.buf = append(gs.buf, 0x00)
		return nil
	case bplistBool:
		if bool(t) {
			gs.buf = append(gs.buf, 0x09)
		} else {
			gs.buf = append(gs.buf, 0x08)
		}
		return nil
	case bplistInt:
		return gs.emitInt(int64(t))
	case bplistReal:
		gs.buf = append(gs.buf, 0x23)
		gs.buf = putFloat64(gs.buf, t.value)
		return nil
	case bplistDate:
		gs.buf = append(gs.buf, 0x33)
		gs.buf = putFloat64(gs.buf, float64(t))
		return nil
	case bplistData:
		return gs.emitLengthTagged(0x4, len(t), []byte(t))
	case bplistString:
		return gs.emitString(string(t))
	case bplistUID:
		return gs.emitUID(UID(t))
	case bplistArray:
		return gs.emitArray(node)
	case *bplistDict:
		return gs.emitDict(node)
	default:
		return newError(UnsupportedType, "cannot emit value")
	}
}

// emitInt writes an int object. Negative values are always emitted in the
// 8-byte two's-complement form (Cocoa-compatible); non-negative values use
// the smallest of {1,2,4,8} bytes that holds them.
func (gs *genState) emitInt(v int64) error {
	if v < 0 {
		gs.buf = append(gs.buf, 0x13)
		gs.buf = putUintWidth(gs.buf, uint64(v), 8)
		return nil
	}
	width := widthFor(uint64(v))
	var low byte
	switch width {
	case 1:
		low = 0x0
	case 2:
		low = 0x1
	case 4:
		low = 0x2
	case 8:
		low = 0x3
	}
	gs.buf = append(gs.buf, 0x10|low)
	gs.buf = putUintWidth(gs.buf, uint64(v), width)
	return nil
}

func (gs *genState) emitUID(u UID) error {
	width := widthFor(uint64(u))
	gs.buf = append(gs.buf, 0x80|byte(width-1))
	gs.buf = putUintWidth(gs.buf, uint64(u), width)
	return nil
}

// emitString chooses ASCII (marker 0x5) when every code point is < 0x80,
// otherwise UTF-16BE (marker 0x6), with the length field counting code
// points (surrogate pairs count as 2), per §4.3's string discipline.
func (gs *genState) emitString(s string) error {
	ascii := true
	for _, r := range s {
		if r >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return gs.emitLengthTagged(0x5, len(s), []byte(s))
	}
	units := utf16.Encode([]rune(s))
	payload := make([]byte, len(units)*2)
	for i, u := range units {
		payload[2*i] = byte(u >> 8)
		payload[2*i+1] = byte(u)
	}
	return gs.emitLengthTagged(0x6, len(units), payload)
}

func (gs *genState) emitLengthTagged(highNibble byte, count int, payload []byte) error {
	if count < 0x0F {
		gs.buf = append(gs.buf, highNibble<<4|byte(count))
	} else {
		gs.buf = append(gs.buf, highNibble<<4|0x0F)
		if err := gs.emitInt(int64(count)); err != nil {
			return err
		}
	}
	gs.buf = append(gs.buf, payload...)
	return nil
}

func (gs *genState) emitArray(node *internedNode) error {
	if err := gs.emitCountTag(0xA, len(node.arrayRefs)); err != nil {
		return err
	}
	for _, ref := range node.arrayRefs {
		gs.buf = putUintWidth(gs.buf, uint64(ref), gs.refSize)
	}
	return nil
}

func (gs *genState) emitDict(node *internedNode) error {
	if err := gs.emitCountTag(0xD, len(node.dictKeyRefs)); err != nil {
		return err
	}
	for _, ref := range node.dictKeyRefs {
		gs.buf = putUintWidth(gs.buf, uint64(ref), gs.refSize)
	}
	for _, ref := range node.dictValRefs {
		gs.buf = putUintWidth(gs.buf, uint64(ref), gs.refSize)
	}
	return nil
}

func (gs *genState) emitCountTag(highNibble byte, count int) error {
	if count < 0x0F {
		gs.buf = append(gs.buf, highNibble<<4|byte(count))
		return nil
	}
	gs.buf = append(gs.buf, highNibble<<4|0x0F)
	return gs.emitInt(int64(count))
}
