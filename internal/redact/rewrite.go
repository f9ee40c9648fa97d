package redact

import "regexp"

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\-\s]{7,}\d`)
)

// RewriteOutputText masks email-shaped and phone-shaped substrings, then each
// caller pattern in order. A caller pattern that is not a valid regex is
// masked as a literal string.
func RewriteOutputText(text string, patterns []string) string {
	out := emailRe.ReplaceAllLiteralString(text, Mask)
	out = phoneRe.ReplaceAllLiteralString(out, Mask)
	return MaskPatterns(out, patterns)
}

// MaskPatterns masks only the caller patterns in text, with the same literal
// fallback as RewriteOutputText.
func MaskPatterns(text string, patterns []string) string {
	out := text
	for _, re := range compilePatterns(patterns) {
		out = re.ReplaceAllLiteralString(out, Mask)
	}
	return out
}

// MaskStrings applies MaskPatterns to every string leaf in maps and slices.
// The input is not modified.
func MaskStrings(obj any, patterns []string) any {
	res := compilePatterns(patterns)
	if len(res) == 0 {
		return obj
	}
	return maskLeaves(obj, res)
}

func maskLeaves(obj any, res []*regexp.Regexp) any {
	switch v := obj.(type) {
	case string:
		for _, re := range res {
			v = re.ReplaceAllLiteralString(v, Mask)
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = maskLeaves(val, res)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskLeaves(item, res)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			out[i] = maskLeaves(item, res).(map[string]any)
		}
		return out
	default:
		if g, ok := genericize(obj); ok {
			return maskLeaves(g, res)
		}
		return obj
	}
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			re = regexp.MustCompile(regexp.QuoteMeta(p))
		}
		out = append(out, re)
	}
	return out
}
