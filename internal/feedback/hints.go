package feedback

import (
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
)

const maxQuoted = 60

var (
	errorLineRe = regexp.MustCompile(`^([\w$]+\.)*\w*(Error|Exception)\b|^panic:|^fatal error:`)
	// lines runtimes print around the actual error
	bannerRe = regexp.MustCompile(`^(Node\.js v\d|Traceback \(most recent call last\)|\^+$|at )`)
)

// nextHint climbs the hint ladder of a failing test. The first failure
// starts at the category hint; every further consecutive failure moves one
// rung up. Rungs with nothing to say, or that would repeat a hint already
// given, are skipped. Past the top rung no hint is given.
func nextHint(run internal.TestRun, prev api.TestHistory) (*api.Hint, api.TestHistory) {
	given := mapset.NewThreadUnsafeSet[string](prev.HintsGiven...)

	hist := api.TestHistory{
		FailStreak: prev.FailStreak + 1,
		HintsGiven: append([]string(nil), prev.HintsGiven...),
	}

	start := api.HintCategory
	if prev.FailStreak > 0 {
		start = prev.HintLevel + 1
	}

	for level := start; level <= api.HintAuthor; level++ {
		text := hintAt(level, run)
		if text == "" || given.Contains(text) {
			continue
		}
		hist.HintLevel = level
		hist.HintsGiven = append(hist.HintsGiven, text)
		return &api.Hint{Level: level, Text: text}, hist
	}

	hist.HintLevel = api.HintAuthor
	return nil, hist
}

func hintAt(level int, run internal.TestRun) string {
	switch level {
	case api.HintCategory:
		return categoryHint(run)
	case api.HintObserved:
		return observedHint(run)
	case api.HintDiff:
		return diffHint(run)
	case api.HintAuthor:
		return strings.TrimSpace(run.Hint)
	}
	return ""
}

func isRequest(run internal.TestRun) bool {
	return run.Request
}

func categoryHint(run internal.TestRun) string {
	switch run.Verdict {
	case api.TimeLimitExceeded:
		if isRequest(run) {
			return "Your service did not answer in time. Make sure it listens on the port given in the PORT environment variable."
		}
		return "Your program did not finish in time. Look for infinite loops or for reading more input than there is."
	case api.RuntimeError:
		if isRequest(run) {
			return "Your service stopped running while it was being tested."
		}
		return "Your program crashed while running this test."
	case api.WrongAnswer:
		if run.ExpectedStatus != 0 && run.StatusCode != 0 && run.StatusCode != run.ExpectedStatus {
			return "Your service answered with an unexpected status code."
		}
		if isRequest(run) {
			return "Your service's response does not match what is expected."
		}
		return "Your program's output does not match what is expected."
	}
	return ""
}

func observedHint(run internal.TestRun) string {
	switch run.Verdict {
	case api.WrongAnswer:
		if isRequest(run) {
			return fmt.Sprintf("For %s your service answered %s.", run.Input, quote(run.Observed))
		}
		return fmt.Sprintf("For input %s your program printed %s.", quote(run.Input), quote(run.Observed))
	case api.TimeLimitExceeded:
		if isRequest(run) {
			return fmt.Sprintf("The request %s got no answer within the time limit.", run.Input)
		}
		return fmt.Sprintf("For input %s your program was still running when the time limit ran out.", quote(run.Input))
	case api.RuntimeError:
		if run.Detail != "" {
			return fmt.Sprintf("For %s the program %s.", describeInput(run), run.Detail)
		}
	}
	return ""
}

func describeInput(run internal.TestRun) string {
	if isRequest(run) {
		return run.Input
	}
	return "input " + quote(run.Input)
}

func diffHint(run internal.TestRun) string {
	switch run.Verdict {
	case api.WrongAnswer:
		if run.ExpectedStatus != 0 && run.StatusCode != run.ExpectedStatus {
			return fmt.Sprintf("Expected status %d but got %d.", run.ExpectedStatus, run.StatusCode)
		}
		return tokenDiff(run.Expected, run.Observed)
	case api.RuntimeError:
		if run.Run == nil {
			return ""
		}
		if line := errorLine(string(run.Run.Stderr)); line != "" {
			return "The error was: " + clipLine(line, 200)
		}
	}
	return ""
}

// tokenDiff describes the first token where observed departs from expected.
func tokenDiff(expected, observed string) string {
	exp := strings.Fields(expected)
	obs := strings.Fields(observed)
	for i := 0; i < len(exp) && i < len(obs); i++ {
		if exp[i] != obs[i] {
			return fmt.Sprintf("Token %d should be %s but is %s.", i+1, quote(exp[i]), quote(obs[i]))
		}
	}
	switch {
	case len(obs) < len(exp):
		if len(obs) == 0 {
			return fmt.Sprintf("Nothing was printed; the answer should start with %s.", quote(exp[0]))
		}
		return fmt.Sprintf("The output ends too early; %s should follow.", quote(exp[len(obs)]))
	case len(obs) > len(exp):
		return fmt.Sprintf("There is extra output starting with %s.", quote(obs[len(exp)]))
	}
	return ""
}

// errorLine picks the line of stderr that names the error, e.g.
// "ZeroDivisionError: division by zero". Without one it falls back to the
// first line that is not runtime boilerplate.
func errorLine(stderr string) string {
	var fallback string
	for _, l := range strings.Split(stderr, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if errorLineRe.MatchString(l) {
			return l
		}
		if fallback == "" && !bannerRe.MatchString(l) {
			fallback = l
		}
	}
	return fallback
}

func quote(s string) string {
	s = strings.TrimSpace(s)
	return fmt.Sprintf("%q", clipLine(s, maxQuoted))
}

func clipLine(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
