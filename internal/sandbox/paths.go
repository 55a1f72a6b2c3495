package sandbox

import (
	"path"
	"strings"

	"github.com/programme-lv/exerciser/internal/errs"
)

// CleanAttemptPath returns p in canonical slash form, or a validation error
// if p could leave the box directory.
func CleanAttemptPath(p string) (string, error) {
	if p == "" {
		return "", errs.Validation("empty file path")
	}
	if strings.ContainsRune(p, 0) {
		return "", errs.Validation("file path %q contains a NUL byte", p)
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", errs.Validation("file path %q is absolute", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", errs.Validation("file path %q escapes the working directory", p)
		}
	}
	clean := path.Clean(p)
	if clean == "." || clean == "" {
		return "", errs.Validation("file path %q names no file", p)
	}
	return clean, nil
}
