// Package plist reads and writes Apple's binary property list format
// (bplist00) and the NSKeyedArchiver object-graph encoding layered on top
// of it.
//
// The bplist codec is exposed through Parse and Generate, which operate on
// plain Go values (bool, int64, float64, Date, []byte, string, UID,
// []interface{}, map[string]interface{}). The keyed-archive layer is
// exposed through Archive and Unarchive, which walk a richer Go object
// graph — including instances of types registered with Register or
// RegisterDataclass — and the $class-tagged dictionaries an NSKeyedArchiver
// plist is built from.
package plist
