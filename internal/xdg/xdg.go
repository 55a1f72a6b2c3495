package xdg

import (
	"os"
	"path/filepath"
)

// XDGDirs resolves XDG Base Directory paths for one application.
type XDGDirs struct {
	app        string
	dataHome   string
	cacheHome  string
	runtimeDir string
}

func NewXDGDirs(app string) *XDGDirs {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = os.TempDir()
		}
	}

	x := &XDGDirs{app: app}

	x.dataHome = absEnv("XDG_DATA_HOME")
	if x.dataHome == "" {
		x.dataHome = filepath.Join(homeDir, ".local", "share")
	}

	x.cacheHome = absEnv("XDG_CACHE_HOME")
	if x.cacheHome == "" {
		x.cacheHome = filepath.Join(homeDir, ".cache")
	}

	x.runtimeDir = absEnv("XDG_RUNTIME_DIR")
	if x.runtimeDir == "" {
		x.runtimeDir = filepath.Join(os.TempDir(), app+"-runtime-"+os.Getenv("USER"))
	}

	return x
}

// absEnv returns the variable only if it holds an absolute path; XDG
// treats relative values as unset.
func absEnv(key string) string {
	v := os.Getenv(key)
	if !filepath.IsAbs(v) {
		return ""
	}
	return v
}

// DataDir holds the exercise snapshot and usage logs.
func (x *XDGDirs) DataDir() string {
	return filepath.Join(x.dataHome, x.app)
}

// CacheDir holds sandbox boxes; nothing in it outlives a run.
func (x *XDGDirs) CacheDir() string {
	return filepath.Join(x.cacheHome, x.app)
}

func (x *XDGDirs) RuntimeDir() string {
	return x.runtimeDir
}
