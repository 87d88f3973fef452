// Package sequence formats per-content-type instance codes.
package sequence

import "fmt"

// Width is the zero-padded digit width of a sequence code.
const Width = 4

// Format renders a sequence number as an instance code, e.g. ("OFF", 1)
// yields "OFF0001". Numbers past 9999 widen naturally instead of wrapping.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, Width, n)
}
