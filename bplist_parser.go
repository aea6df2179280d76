package plist

import "bytes"

const (
	bpMagic       = "bplist00"
	bpTrailerSize = 32
	bpHeaderSize  = 8
)

// Parse decodes a bplist00 byte stream and returns its top value as one of
// the boundary representations documented on package plist: bool, int64,
// float64, Date, []byte, string, UID, []interface{}, map[string]interface{}
// (or *OrderedDict when a dict has a non-string key).
func Parse(data []byte) (interface{}, error) {
	v, err := parseBplist(data)
	if err != nil {
		return nil, err
	}
	return toInterface(v), nil
}

type bplistTrailer struct {
	offsetSize  int
	refSize     int
	numObjects  int
	topObject   int
	offsetTable int
}

type parseState struct {
	data    []byte
	trailer bplistTrailer
	offsets []int
}

func parseBplist(data []byte) (bplistValue, error) {
	if len(data) < bpHeaderSize+bpTrailerSize {
		return nil, newError(InputMalformed, "input shorter than header+trailer")
	}
	if !bytes.HasPrefix(data, []byte(bpMagic)) {
		return nil, newError(InputMalformed, "missing bplist00 magic")
	}

	trailerBytes := data[len(data)-bpTrailerSize:]
	offsetSize := int(trailerBytes[6])
	refSize := int(trailerBytes[7])
	if !isValidWidth(offsetSize) || !isValidWidth(refSize) {
		return nil, newError(InputMalformed, "offset_size or ref_size not in {1,2,4,8}")
	}
	numObjects := int(getUint(trailerBytes[8:16]))
	topObject := int(getUint(trailerBytes[16:24]))
	offsetTableOffset := int(getUint(trailerBytes[24:32]))

	objectRegionEnd := len(data) - bpTrailerSize
	if offsetTableOffset < bpHeaderSize || offsetTableOffset > objectRegionEnd {
		return nil, errAtOffset(InputMalformed, offsetTableOffset, "offset table outside object region")
	}
	tableBytes := numObjects * offsetSize
	if tableBytes < 0 || offsetTableOffset+tableBytes > objectRegionEnd {
		return nil, errAtOffset(InputMalformed, offsetTableOffset, "offset table runs past object region")
	}

	ps := &parseState{
		data: data,
		trailer: bplistTrailer{
			offsetSize:  offsetSize,
			refSize:     refSize,
			numObjects:  numObjects,
			topObject:   topObject,
			offsetTable: offsetTableOffset,
		},
	}

	ps.offsets = make([]int, numObjects)
	for i := 0; i < numObjects; i++ {
		base := offsetTableOffset + i*offsetSize
		off := int(getUint(data[base : base+offsetSize]))
		if off < bpHeaderSize || off >= objectRegionEnd {
			return nil, errAtIndex(IndexOutOfRange, i, "object offset outside object region")
		}
		ps.offsets[i] = off
	}

	if topObject < 0 || topObject >= numObjects {
		return nil, errAtIndex(IndexOutOfRange, topObject, "top object index out of range")
	}
	return ps.object(topObject)
}

func isValidWidth(w int) bool {
	return w == 1 || w == 2 || w == 4 || w == 8
}

// object decodes the object stored at the given $objects index.
func (ps *parseState) object(index int) (bplistValue, error) {
	if index < 0 || index >= len(ps.offsets) {
		return nil, errAtIndex(IndexOutOfRange, index, "object index out of range")
	}
	off := ps.offsets[index]
	return ps.objectAt(off)
}

func (ps *parseState) objectAt(off int) (bplistValue, error) {
	regionEnd := len(ps.data) - bpTrailerSize
	if off < 0 || off >= regionEnd {
		return nil, errAtOffset(InputMalformed, off, "object offset outside object region")
	}
	marker := ps.data[off]
	high := marker >> 4
	low := marker & 0x0F

	switch high {
	case 0x0:
		switch low {
		case 0x00:
			return nil, nil
		case 0x08:
			return bplistBool(false), nil
		case 0x09:
			return bplistBool(true), nil
		case 0x0F:
			return nil, nil // fill byte, nothing to decode
		default:
			return nil, errAtOffset(InputMalformed, off, "unknown primitive marker")
		}
	case 0x1:
		return ps.readInt(off, low)
	case 0x2:
		return ps.readReal(off, low)
	case 0x3:
		return ps.readDate(off, low)
	case 0x4:
		return ps.readData(off, low)
	case 0x5:
		return ps.readASCIIString(off, low)
	case 0x6:
		return ps.readUTF16String(off, low)
	case 0x8:
		return ps.readUID(off, low)
	case 0xA:
		return ps.readArray(off, low)
	case 0xD:
		return ps.readDict(off, low)
	default:
		return nil, errAtOffset(InputMalformed, off, "unknown object marker")
	}
}

func (ps *parseState) bytesAt(start, n int) ([]byte, error) {
	regionEnd := len(ps.data) - bpTrailerSize
	if n < 0 || start < 0 || start+n > regionEnd {
		return nil, errAtOffset(InputMalformed, start, "read runs past object region")
	}
	return ps.data[start : start+n], nil
}

func (ps *parseState) readInt(off int, low byte) (bplistValue, error) {
	width := 1 << low
	if width != 1 && width != 2 && width != 4 && width != 8 {
		return nil, errAtOffset(InputMalformed, off, "unsupported int width")
	}
	b, err := ps.bytesAt(off+1, width)
	if err != nil {
		return nil, err
	}
	// Widths 1, 2, 4 are unsigned-widened to signed 64; width 8 is a
	// signed two's-complement 64-bit value. Casting the raw unsigned
	// bits to int64 handles both: for the narrower widths the value is
	// already non-negative, and for width 8 the cast reinterprets the
	// two's-complement bit pattern directly.
	return bplistInt(int64(getUint(b))), nil
}

func (ps *parseState) readReal(off int, low byte) (bplistValue, error) {
	width := 1 << low
	b, err := ps.bytesAt(off+1, width)
	if err != nil {
		return nil, err
	}
	switch width {
	case 4:
		return bplistReal{value: getFloat32(b), wide: false}, nil
	case 8:
		return bplistReal{value: getFloat64(b), wide: true}, nil
	default:
		return nil, errAtOffset(InputMalformed, off, "unsupported float width")
	}
}

func (ps *parseState) readDate(off int, low byte) (bplistValue, error) {
	if low != 0x03 {
		return nil, errAtOffset(InputMalformed, off, "unsupported date encoding")
	}
	b, err := ps.bytesAt(off+1, 8)
	if err != nil {
		return nil, err
	}
	return bplistDate(getFloat64(b)), nil
}

// extendedLength reads the low-nibble length, or (when low == 0x0F) the
// extended length that follows: an int marker giving a power-of-two width
// and that many big-endian bytes holding the real count. It returns the
// count and the number of bytes the length encoding itself occupied
// (0 for the inline case).
func (ps *parseState) extendedLength(off int, low byte) (count int, consumed int, err error) {
	if low != 0x0F {
		return int(low), 0, nil
	}
	lenMarker, err := ps.bytesAt(off+1, 1)
	if err != nil {
		return 0, 0, err
	}
	if lenMarker[0]>>4 != 0x1 {
		return 0, 0, errAtOffset(InputMalformed, off, "extended length marker is not an int")
	}
	width := 1 << (lenMarker[0] & 0x0F)
	if width != 1 && width != 2 && width != 4 && width != 8 {
		return 0, 0, errAtOffset(InputMalformed, off, "unsupported extended length width")
	}
	b, err := ps.bytesAt(off+2, width)
	if err != nil {
		return 0, 0, err
	}
	u := getUint(b)
	if u > 1<<32 {
		return 0, 0, errAtOffset(Overflow, off, "extended length too large")
	}
	return int(u), 1 + width, nil
}

func (ps *parseState) readData(off int, low byte) (bplistValue, error) {
	count, consumed, err := ps.extendedLength(off, low)
	if err != nil {
		return nil, err
	}
	b, err := ps.bytesAt(off+1+consumed, count)
	if err != nil {
		return nil, err
	}
	out := make([]byte, count)
	copy(out, b)
	return bplistData(out), nil
}

func (ps *parseState) readASCIIString(off int, low byte) (bplistValue, error) {
	count, consumed, err := ps.extendedLength(off, low)
	if err != nil {
		return nil, err
	}
	b, err := ps.bytesAt(off+1+consumed, count)
	if err != nil {
		return nil, err
	}
	return bplistString(string(b)), nil
}

func (ps *parseState) readUTF16String(off int, low byte) (bplistValue, error) {
	count, consumed, err := ps.extendedLength(off, low)
	if err != nil {
		return nil, err
	}
	b, err := ps.bytesAt(off+1+consumed, count*2)
	if err != nil {
		return nil, err
	}
	units := make([]uint16, count)
	for i := 0; i < count; i++ {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return bplistString(string(utf16Decode(units))), nil
}

func (ps *parseState) readUID(off int, low byte) (bplistValue, error) {
	width := int(low) + 1
	b, err := ps.bytesAt(off+1, width)
	if err != nil {
		return nil, err
	}
	return bplistUID(UID(getUint(b))), nil
}

func (ps *parseState) readArray(off int, low byte) (bplistValue, error) {
	count, consumed, err := ps.extendedLength(off, low)
	if err != nil {
		return nil, err
	}
	refSize := ps.trailer.refSize
	start := off + 1 + consumed
	refsBytes, err := ps.bytesAt(start, count*refSize)
	if err != nil {
		return nil, err
	}
	out := make(bplistArray, count)
	for i := 0; i < count; i++ {
		ref := int(getUint(refsBytes[i*refSize : (i+1)*refSize]))
		v, err := ps.object(ref)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ps *parseState) readDict(off int, low byte) (bplistValue, error) {
	count, consumed, err := ps.extendedLength(off, low)
	if err != nil {
		return nil, err
	}
	refSize := ps.trailer.refSize
	keyStart := off + 1 + consumed
	valStart := keyStart + count*refSize
	keyBytes, err := ps.bytesAt(keyStart, count*refSize)
	if err != nil {
		return nil, err
	}
	valBytes, err := ps.bytesAt(valStart, count*refSize)
	if err != nil {
		return nil, err
	}
	d := &bplistDict{keys: make([]bplistValue, count), values: make([]bplistValue, count)}
	for i := 0; i < count; i++ {
		kref := int(getUint(keyBytes[i*refSize : (i+1)*refSize]))
		k, err := ps.object(kref)
		if err != nil {
			return nil, err
		}
		vref := int(getUint(valBytes[i*refSize : (i+1)*refSize]))
		v, err := ps.object(vref)
		if err != nil {
			return nil, err
		}
		d.keys[i] = k
		d.values[i] = v
	}
	return d, nil
}

func utf16Decode(units []uint16) []rune {
	var out []rune
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			u2 := units[i+1]
			if u2 >= 0xDC00 && u2 <= 0xDFFF {
				r := (rune(u)-0xD800)<<10 | (rune(u2) - 0xDC00)
				out = append(out, r+0x10000)
				i++
				continue
			}
		}
		out = append(out, rune(u))
	}
	return out
}
