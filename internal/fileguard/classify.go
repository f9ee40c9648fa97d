package fileguard

import (
	"strings"
	"unicode"

	"github.com/ppiankov/tracegate/internal/model"
)

var (
	highKeywords   = []string{"hr", "employee", "salary", "payroll", "pii", "ssn", "passport"}
	hrKeywords     = []string{"hr", "employee"}
	piiKeywords    = []string{"pii", "ssn", "passport"}
	mediumKeywords = []string{"siem", "incident", "security"}
)

// Classify derives sensitivity and tags from a file path. Keywords match
// path tokens (split on anything that is not a letter or digit) by prefix,
// so "employees.csv" hits "employee" while "chrome" does not hit "hr".
func Classify(path string) (model.Sensitivity, []string) {
	tokens := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tags := []string{}
	if hasKeyword(tokens, highKeywords) {
		if hasKeyword(tokens, hrKeywords) {
			tags = append(tags, "HR")
		}
		if hasKeyword(tokens, piiKeywords) {
			tags = append(tags, "PII")
		}
		return model.SensHigh, tags
	}
	if hasKeyword(tokens, mediumKeywords) {
		return model.SensMedium, append(tags, "security")
	}
	return model.SensLow, tags
}

func hasKeyword(tokens, keywords []string) bool {
	for _, t := range tokens {
		for _, k := range keywords {
			if t == k || (len(k) > 2 && strings.HasPrefix(t, k)) {
				return true
			}
		}
	}
	return false
}
