package types

import (
	"time"
)

// ShiftTime converts t into the shifted timestamp format: unix seconds in the
// high bits and microseconds in the low 20 bits.
func ShiftTime(t time.Time) int64 {
	timestamp := t.UnixNano() / 1000
	usec := timestamp % 1000000
	sec := timestamp / 1000000
	return (sec << 20) + usec
}

// UnshiftTime converts a shifted timestamp back into a time.
func UnshiftTime(value int64) time.Time {
	usec := value & 0xFFFFF
	sec := value >> 20
	return time.Unix(sec, usec*1000)
}
