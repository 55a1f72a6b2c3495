// Package staticcheck looks at attempt sources without running them.
package staticcheck

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/exerciser/api"
	"github.com/puzpuzpuz/xsync/v3"
)

const MaxLineLength = 120

// Built-in rule ids.
const (
	RuleMissingEntry       = "missing-entry"
	RuleEmptyFile          = "empty-file"
	RuleTrailingWhitespace = "trailing-whitespace"
	RuleLineLength         = "line-length"
	RuleMixedIndent        = "mixed-indent"
	RuleTodoComment        = "todo-comment"
)

var todoRe = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)

type compiledRule struct {
	api.StaticRule
	re *regexp.Regexp
}

type ruleset struct {
	rules []compiledRule
}

// Analyzer caches compiled exercise rules by exercise id.
// Exercises are immutable, so an entry is only invalidated by Forget.
type Analyzer struct {
	cache *xsync.MapOf[string, *ruleset]
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{cache: xsync.NewMapOf[string, *ruleset]()}
}

// Forget drops the cached rules of a deleted exercise.
func (a *Analyzer) Forget(exerciseID string) {
	a.cache.Delete(exerciseID)
}

func (a *Analyzer) CachedRulesets() int {
	return a.cache.Size()
}

func (a *Analyzer) rulesFor(ex api.Exercise) *ruleset {
	compile := func() *ruleset {
		rs := &ruleset{}
		for _, r := range ex.StaticRules {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				// rejected when the exercise was created
				continue
			}
			rs.rules = append(rs.rules, compiledRule{StaticRule: r, re: re})
		}
		return rs
	}
	if ex.ID == "" {
		return compile()
	}
	rs, _ := a.cache.LoadOrCompute(ex.ID, compile)
	return rs
}

// Analyze returns findings sorted by file, line and rule.
func (a *Analyzer) Analyze(ex api.Exercise, entry string, files map[string]string) []api.Finding {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []api.Finding
	if _, ok := files[entry]; !ok && entry != "" {
		findings = append(findings, api.Finding{
			File:     entry,
			Rule:     RuleMissingEntry,
			Severity: api.SeverityError,
			Message:  fmt.Sprintf("entry file %s is missing", entry),
		})
	}

	for _, name := range names {
		content := files[name]
		if isBinary(content) {
			continue
		}
		findings = append(findings, builtin(name, content)...)
	}

	for _, r := range a.rulesFor(ex).rules {
		findings = append(findings, r.check(names, files)...)
	}

	sortFindings(findings)
	return findings
}

func (r compiledRule) matchesFile(name string) bool {
	if r.Files == "" {
		return true
	}
	if ok, _ := path.Match(r.Files, name); ok {
		return true
	}
	ok, _ := path.Match(r.Files, path.Base(name))
	return ok
}

func (r compiledRule) check(names []string, files map[string]string) []api.Finding {
	matching := mapset.NewThreadUnsafeSet[string]()
	var findings []api.Finding
	for _, name := range names {
		if !r.matchesFile(name) || isBinary(files[name]) {
			continue
		}
		line := firstMatchLine(r.re, files[name])
		if line == 0 {
			continue
		}
		matching.Add(name)
		if r.Forbid {
			findings = append(findings, api.Finding{
				File:     name,
				Line:     line,
				Rule:     r.ID,
				Severity: api.SeverityError,
				Message:  r.Message,
			})
		}
	}
	if !r.Forbid && matching.Cardinality() == 0 {
		file := r.Files
		if file == "" {
			file = "*"
		}
		findings = append(findings, api.Finding{
			File:     file,
			Rule:     r.ID,
			Severity: api.SeverityError,
			Message:  r.Message,
		})
	}
	return findings
}

func firstMatchLine(re *regexp.Regexp, content string) int {
	loc := re.FindStringIndex(content)
	if loc == nil {
		return 0
	}
	return strings.Count(content[:loc[0]], "\n") + 1
}

func isBinary(content string) bool {
	return strings.IndexByte(content, 0) >= 0
}

func sortFindings(f []api.Finding) {
	sort.SliceStable(f, func(i, j int) bool {
		if f[i].File != f[j].File {
			return f[i].File < f[j].File
		}
		if f[i].Line != f[j].Line {
			return f[i].Line < f[j].Line
		}
		return f[i].Rule < f[j].Rule
	})
}
