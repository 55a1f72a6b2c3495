package exercise

import (
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/langs"
)

const DefaultLanguage = "node"

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// normalize validates a creation request and turns it into an exercise without an id.
func normalize(req api.CreateExerciseRequest, registry *langs.Registry) (api.Exercise, error) {
	if strings.TrimSpace(req.Code) == "" {
		return api.Exercise{}, errs.Validation("code is empty")
	}
	if len(req.Tests) == 0 {
		return api.Exercise{}, errs.Validation("tests are empty")
	}

	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}
	if _, err := registry.Get(language); err != nil {
		return api.Exercise{}, errs.Validation("unknown language %q", language)
	}

	tests := make([]api.Test, 0, len(req.Tests))
	seen := make(map[string]bool, len(req.Tests))
	for i, t := range req.Tests {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return api.Exercise{}, errs.Validation("test %d has no name", i)
		}
		if seen[t.Name] {
			return api.Exercise{}, errs.Validation("duplicate test name %q", t.Name)
		}
		seen[t.Name] = true

		if t.Request != nil {
			r := *t.Request
			r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
			if r.Method == "" {
				r.Method = http.MethodGet
			}
			if !allowedMethods[r.Method] {
				return api.Exercise{}, errs.Validation("test %q: unsupported method %q", t.Name, r.Method)
			}
			if !strings.HasPrefix(r.Path, "/") {
				return api.Exercise{}, errs.Validation("test %q: request path must start with /", t.Name)
			}
			if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
				return api.Exercise{}, errs.Validation("test %q: invalid status %d", t.Name, r.Status)
			}
			if r.Headers != nil {
				h := make(map[string]string, len(r.Headers))
				for k, v := range r.Headers {
					h[k] = v
				}
				r.Headers = h
			}
			t.Request = &r
		}
		tests = append(tests, t)
	}

	rules := make([]api.StaticRule, 0, len(req.StaticRules))
	ruleIDs := make(map[string]bool, len(req.StaticRules))
	for i, r := range req.StaticRules {
		if r.Pattern == "" {
			return api.Exercise{}, errs.Validation("static rule %d has no pattern", i)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return api.Exercise{}, errs.Validation("static rule %d: %v", i, err)
		}
		if r.Files != "" {
			if _, err := path.Match(r.Files, ""); err != nil {
				return api.Exercise{}, errs.Validation("static rule %d: bad files glob %q", i, r.Files)
			}
		}
		if r.ID == "" {
			r.ID = "rule-" + strconv.Itoa(i+1)
		}
		if ruleIDs[r.ID] {
			return api.Exercise{}, errs.Validation("duplicate static rule id %q", r.ID)
		}
		ruleIDs[r.ID] = true
		if r.Message == "" {
			if r.Forbid {
				r.Message = "forbidden pattern " + r.Pattern + " found"
			} else {
				r.Message = "required pattern " + r.Pattern + " not found"
			}
		}
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		rules = nil
	}

	var limits api.Limits
	if req.Limits != nil {
		limits = *req.Limits
		if limits.CpuMs < 0 || limits.WallMs < 0 || limits.MemKiB < 0 {
			return api.Exercise{}, errs.Validation("limits must not be negative")
		}
	}

	return api.Exercise{
		Code:        req.Code,
		Tests:       tests,
		Assignment:  req.Assignment,
		Language:    language,
		StaticRules: rules,
		Limits:      limits,
	}, nil
}
