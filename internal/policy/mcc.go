package policy

import (
	"strconv"
	"strings"
)

// ParseMCCList parses free-text merchant category codes separated by commas
// or whitespace. Tokens that are not non-negative integers are dropped and
// returned separately so callers can surface them; they never fail the list.
// Duplicates keep their first position.
func ParseMCCList(text string) (codes []int, dropped []string) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	seen := make(map[int]bool)
	codes = []int{}
	for _, tok := range fields {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			dropped = append(dropped, tok)
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		codes = append(codes, n)
	}
	return codes, dropped
}

// FormatMCCList renders codes the way the editor displays them.
func FormatMCCList(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}
