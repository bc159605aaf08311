package serialmux

import "strings"

// CleanLine strips line-ending and framing noise from a raw serial line.
// Receivers often emit partial garbage on power-up; anything before the
// first '$' or '!' sentence start is discarded. Lines with no sentence
// start are returned trimmed, so non-NMEA devices still see their data.
func CleanLine(raw string) string {
	line := strings.TrimSpace(raw)
	if i := strings.IndexAny(line, "$!"); i > 0 {
		line = line[i:]
	}
	return line
}
