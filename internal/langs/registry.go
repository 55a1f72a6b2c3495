package langs

import (
	"errors"
	"sort"
	"sync"
)

var ErrLanguageNotFound = errors.New("language not found")

// Language describes how an attempt is checked and started inside a box.
type Language struct {
	ID        string
	Name      string
	CodeFname string

	// CompileCmd is a real compilation for compiled languages and a syntax
	// check for interpreted ones. Nil skips the step.
	CompileCmd    *string
	CompiledFname *string
	ExecCmd       string
}

type Registry struct {
	mu        sync.RWMutex
	languages map[string]Language
}

func NewRegistry() *Registry {
	r := &Registry{
		languages: make(map[string]Language),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) Register(lang Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[lang.ID] = lang
}

func (r *Registry) Get(id string) (Language, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.languages[id]
	if !ok {
		return Language{}, ErrLanguageNotFound
	}
	return lang, nil
}

// List returns the languages ordered by id.
func (r *Registry) List() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]Language, 0, len(r.languages))
	for _, l := range r.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs
}

func strPtr(s string) *string { return &s }

func (r *Registry) registerDefaults() {
	r.Register(Language{
		ID:         "sh",
		Name:       "POSIX shell",
		CodeFname:  "main.sh",
		CompileCmd: strPtr("sh -n main.sh"),
		ExecCmd:    "sh main.sh",
	})
	r.Register(Language{
		ID:         "python3",
		Name:       "Python 3",
		CodeFname:  "main.py",
		CompileCmd: strPtr("python3 -m py_compile main.py"),
		ExecCmd:    "python3 main.py",
	})
	r.Register(Language{
		ID:         "node",
		Name:       "Node.js",
		CodeFname:  "main.js",
		CompileCmd: strPtr("node --check main.js"),
		ExecCmd:    "node main.js",
	})
	r.Register(Language{
		ID:            "cpp17",
		Name:          "C++17",
		CodeFname:     "main.cpp",
		CompileCmd:    strPtr("g++ -std=c++17 -O2 -o main main.cpp"),
		CompiledFname: strPtr("main"),
		ExecCmd:       "./main",
	})
	r.Register(Language{
		ID:            "go",
		Name:          "Go",
		CodeFname:     "main.go",
		CompileCmd:    strPtr("go build -o main main.go"),
		CompiledFname: strPtr("main"),
		ExecCmd:       "./main",
	})
}
