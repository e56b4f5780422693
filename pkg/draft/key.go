package draft

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// Key derives the draft's storage key from its content and ordered URL list.
// The key is a 32-bit rolling hash (hash*31 + code unit) wrapped to signed
// 32-bit with the magnitude rendered as decimal. The hash is not
// cryptographic, a collision means last-writer-wins on the storage slot.
// Empty input maps to "0".
func Key(content string, urls []string) string {
	var sb strings.Builder
	sb.WriteString(content)
	for _, u := range urls {
		sb.WriteString(u)
	}
	return hashString(sb.String())
}

func hashString(s string) string {
	var h int32
	for _, cu := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(cu)
	}
	// int64 before negation, math.MinInt32 has no int32 magnitude
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 10)
}
