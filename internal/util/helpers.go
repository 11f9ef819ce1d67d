package util

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Timestamped prefixes name with the current time, e.g. 20241105_101500__result.csv
func Timestamped(name string) string {
	return TimestampedAt(time.Now(), name)
}

func TimestampedAt(t time.Time, name string) string {
	return fmt.Sprintf("%s__%s", t.Format("20060102_150405"), name)
}

// TruncateRunes — безопасное усечение по рунам
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}

// Preview collapses whitespace and cuts s to n runes, marking the cut with "...".
func Preview(s string, n int) string {
	flat := strings.Join(strings.Fields(s), " ")
	cut := TruncateRunes(flat, n)
	if cut != flat {
		return cut + "..."
	}
	return cut
}
