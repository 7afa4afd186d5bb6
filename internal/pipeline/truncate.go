package pipeline

import "unicode/utf8"

// TruncationMarker is appended to text cut by Truncate.
const TruncationMarker = "..."

// Truncate keeps the first max runes of s and appends TruncationMarker.
// Text at or under the bound is returned unchanged; max <= 0 disables the bound.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + TruncationMarker
}
