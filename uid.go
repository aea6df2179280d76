package plist

import "fmt"

// UID is a non-negative integer used as an index into an archive's
// $objects table. It is a distinct type from int64/uint64 so that the
// codec never confuses an ordinary integer with a reference, even though
// both are stored on the wire as fixed-width big-endian integers.
type UID uint64

func (u UID) String() string {
	return fmt.Sprintf("UID(%d)", uint64(u))
}
