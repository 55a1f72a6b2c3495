package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/programme-lv/exerciser/internal/xdg"
)

const appName = "exerciser"

type EnvConfig struct {
	Addr    string
	DataDir string
	LogDir  string
	BoxDir  string

	// Sandbox is "process" or "isolate".
	Sandbox       string
	MaxConcurrent int
	TestTimeout   time.Duration
	ReadyTimeout  time.Duration
	PortRange     string
	RateRPS       float64
	CorsOrigins   []string

	NatsURL     string
	NatsSubject string

	EventsSqsURL string
	AwsRegion    string

	LogLevel string
}

// ReadEnvConfig loads .env from the working directory if there is one and
// reads the configuration from the environment.
func ReadEnvConfig() (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*EnvConfig, error) {
	dirs := xdg.NewXDGDirs(appName)

	cfg := &EnvConfig{
		Addr:         getenv("EXERCISER_ADDR", ":8085"),
		DataDir:      getenv("EXERCISER_DATA_DIR", dirs.DataDir()),
		BoxDir:       getenv("EXERCISER_BOX_DIR", filepath.Join(dirs.CacheDir(), "boxes")),
		Sandbox:      getenv("EXERCISER_SANDBOX", "process"),
		PortRange:    getenv("EXERCISER_PORT_RANGE", "20000-20999"),
		NatsURL:      os.Getenv("NATS_URL"),
		NatsSubject:  getenv("NATS_SUBJECT", "exerciser.evaluate"),
		EventsSqsURL: os.Getenv("EVENTS_SQS_URL"),
		AwsRegion:    getenv("AWS_REGION", "eu-central-1"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}
	cfg.LogDir = getenv("EXERCISER_LOG_DIR", filepath.Join(cfg.DataDir, "logsWebpal"))

	var err error
	if cfg.MaxConcurrent, err = getInt("EXERCISER_MAX_CONCURRENT", 8); err != nil {
		return nil, err
	}
	if cfg.TestTimeout, err = getDuration("EXERCISER_TEST_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReadyTimeout, err = getDuration("EXERCISER_READY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateRPS, err = getFloat("EXERCISER_RATE_RPS", 20); err != nil {
		return nil, err
	}
	cfg.CorsOrigins = splitList(os.Getenv("EXERCISER_CORS_ORIGINS"))

	if cfg.Sandbox != "process" && cfg.Sandbox != "isolate" {
		return nil, fmt.Errorf("EXERCISER_SANDBOX must be process or isolate, got %q", cfg.Sandbox)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number, got %q", key, v)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
