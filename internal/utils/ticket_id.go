package utils

import (
	"strings"
	"unicode"
)

// PrefixFromName derives a ticket prefix from a document name: the first four
// letters, upper-cased ("auth-service" -> "AUTH"). Falls back to "TKT".
func PrefixFromName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if b.Len() == 4 {
			break
		}
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "TKT"
	}
	return b.String()
}
