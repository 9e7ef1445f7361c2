package discount

import "strings"

// NormalizeCode trims and uppercases a discount code.
// Two inputs that differ only by case or surrounding whitespace normalize equal.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if NormalizeCode(c) == code {
			return true
		}
	}
	return false
}
