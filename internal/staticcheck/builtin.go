package staticcheck

import (
	"fmt"
	"strings"

	"github.com/programme-lv/exerciser/api"
)

// builtin runs the rules every exercise gets. Rules that tend to fire on
// many lines are reported once per file with the first offending line.
func builtin(name, content string) []api.Finding {
	if strings.TrimSpace(content) == "" {
		return []api.Finding{{
			File:     name,
			Rule:     RuleEmptyFile,
			Severity: api.SeverityWarning,
			Message:  "file is empty",
		}}
	}

	var (
		findings []api.Finding

		trailingFirst, trailingCount int
		longFirst, longCount         int
		tabFirst, spaceFirst         int
	)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		n := i + 1
		line = strings.TrimSuffix(line, "\r")

		if line != strings.TrimRight(line, " \t") {
			if trailingCount == 0 {
				trailingFirst = n
			}
			trailingCount++
		}
		if len([]rune(line)) > MaxLineLength {
			if longCount == 0 {
				longFirst = n
			}
			longCount++
		}
		if strings.HasPrefix(line, "\t") && tabFirst == 0 {
			tabFirst = n
		}
		if strings.HasPrefix(line, "  ") && spaceFirst == 0 && strings.TrimSpace(line) != "" {
			spaceFirst = n
		}
		if m := todoRe.FindString(line); m != "" {
			findings = append(findings, api.Finding{
				File:     name,
				Line:     n,
				Rule:     RuleTodoComment,
				Severity: api.SeverityInfo,
				Message:  fmt.Sprintf("unresolved %s left in the code", m),
			})
		}
	}

	if trailingCount > 0 {
		findings = append(findings, api.Finding{
			File:     name,
			Line:     trailingFirst,
			Rule:     RuleTrailingWhitespace,
			Severity: api.SeverityInfo,
			Message:  fmt.Sprintf("%d line(s) end with whitespace", trailingCount),
		})
	}
	if longCount > 0 {
		findings = append(findings, api.Finding{
			File:     name,
			Line:     longFirst,
			Rule:     RuleLineLength,
			Severity: api.SeverityWarning,
			Message:  fmt.Sprintf("%d line(s) are longer than %d characters", longCount, MaxLineLength),
		})
	}
	if tabFirst > 0 && spaceFirst > 0 {
		line := tabFirst
		if spaceFirst > tabFirst {
			line = spaceFirst
		}
		findings = append(findings, api.Finding{
			File:     name,
			Line:     line,
			Rule:     RuleMixedIndent,
			Severity: api.SeverityWarning,
			Message:  "indentation mixes tabs and spaces",
		})
	}
	return findings
}
