package plist

import "time"

// cocoaEpochOffset is the number of seconds between the Unix epoch
// (1970-01-01 UTC) and the Cocoa epoch (2001-01-01 UTC). bplist date
// objects store seconds relative to the Cocoa epoch.
const cocoaEpochOffset = 978307200.0

// Date is a bplist date value: a point in time, distinguished from an
// ordinary float64 so the codec never confuses the two even though both
// are stored on the wire as an IEEE-754 binary64.
type Date time.Time

// NewDate wraps t as a Date.
func NewDate(t time.Time) Date {
	return Date(t)
}

// Time returns the wrapped time.Time, in UTC.
func (d Date) Time() time.Time {
	return time.Time(d).UTC()
}

// Offset returns the number of seconds since the Cocoa epoch
// (2001-01-01 00:00:00 UTC), the on-wire representation of a bplist date.
func (d Date) Offset() float64 {
	return float64(time.Time(d).UTC().UnixNano())/1e9 - cocoaEpochOffset
}

// DateFromOffset builds a Date from seconds-since-Cocoa-epoch, the inverse
// of Offset.
func DateFromOffset(seconds float64) Date {
	unix := seconds + cocoaEpochOffset
	whole := int64(unix)
	frac := unix - float64(whole)
	return Date(time.Unix(whole, int64(frac*1e9)).UTC())
}

func (d Date) String() string {
	return d.Time().String()
}
