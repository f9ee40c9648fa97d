package cmdguard

import (
	"regexp"
	"strings"

	"github.com/ppiankov/tracegate/internal/redact"
)

// secretPatterns match credential values in command output, not variable names.
var secretPatterns = []*regexp.Regexp{
	// Groq keys
	regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`),
	// Anthropic before OpenAI so the longer prefix wins
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	// AWS access key ids
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	// long hex tokens
	regexp.MustCompile(`\b[a-f0-9]{64,}\b`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]{20,}`),
}

// ScanOutput masks leaked secrets in output. The second return value is the
// number of secrets found.
func ScanOutput(output string) (string, int) {
	count := 0
	result := output
	for _, re := range secretPatterns {
		matches := re.FindAllString(result, -1)
		if len(matches) > 0 {
			count += len(matches)
			result = re.ReplaceAllLiteralString(result, redact.Mask)
		}
	}
	return result, count
}

// envKeyValuePattern matches KEY=VALUE lines for sensitive env names, as
// printed by set, export -p or declare -p.
var envKeyValuePattern = regexp.MustCompile(
	`(?im)^(?:declare -x |export )?` +
		`(GROQ_\w*|OPENAI_\w*|ANTHROPIC_\w*|AWS_SECRET\w*|API_KEY|API_SECRET|TRACEGATE_\w*)` +
		`[= ].*$`,
)

// ScanOutputFull runs secret pattern scanning and env line scanning.
func ScanOutputFull(output string) (string, int) {
	result, count := ScanOutput(output)

	envMatches := envKeyValuePattern.FindAllString(result, -1)
	if len(envMatches) > 0 {
		count += len(envMatches)
		result = envKeyValuePattern.ReplaceAllLiteralString(result, redact.Mask)
	}

	// collapse consecutive masked lines
	for strings.Contains(result, redact.Mask+"\n"+redact.Mask) {
		result = strings.ReplaceAll(result, redact.Mask+"\n"+redact.Mask, redact.Mask)
	}

	return result, count
}
