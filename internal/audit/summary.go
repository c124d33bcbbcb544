package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxArgBytes is the longest string argument kept verbatim in a summary.
const MaxArgBytes = 200

// SummarizeArgs renders arguments as sorted key=value pairs, truncating long
// strings to MaxArgBytes followed by "...(<n> bytes)".
func SummarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+summarizeValue(args[k]))
	}
	return strings.Join(parts, " ")
}

func summarizeValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(Truncate(value))
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return strconv.Quote(Truncate(fmt.Sprint(value)))
		}
		return Truncate(string(encoded))
	}
}

// Truncate shortens s to at most MaxArgBytes without splitting a rune.
func Truncate(s string) string {
	if len(s) <= MaxArgBytes {
		return s
	}
	cut := MaxArgBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("...(%d bytes)", len(s))
}
