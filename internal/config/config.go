package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/settings"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the bucketspy observer.
type Config struct {
	// CDP connection settings
	CDPAddress        string
	CDPPort           int
	EvalTimeoutMS     int
	FocusPollInterval time.Duration

	// Optional local browser launch
	LaunchBrowser     bool
	BrowserProfileDir string
	BrowserHeadless   bool

	// HTTP API and logging
	BindAddr         string
	PortAutoFallback bool
	PortCandidates   []string
	LogLevel         string
	LogFile          string

	// Capture engine
	MaxRequests int
	QueueSize   int
	BadgeColor  string

	// NotifyURL receives a push message per newly seen bucket. Empty disables.
	NotifyURL string

	// Persistence
	SettingsDB        string
	JournalDir        string
	JournalMaxFileMB  int
	JournalBufferSize int
	ConfigPath        string

	// SettingsDefaults seeds the settings store when SeedSettings is set.
	SettingsDefaults settings.Settings
	SeedSettings     bool
}

var badgeColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Load reads configuration from the optional YAML overlay, then environment
// variables and an optional .env file. Environment values win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        "127.0.0.1",
		CDPPort:           9220,
		EvalTimeoutMS:     2000,
		FocusPollInterval: time.Second,
		BrowserProfileDir: "./browser-profile",
		BindAddr:          "127.0.0.1:8190",
		PortAutoFallback:  true,
		PortCandidates:    []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"},
		LogLevel:          "info",
		LogFile:           "logs/bucketspy.log",
		MaxRequests:       500,
		QueueSize:         1024,
		BadgeColor:        "#1ba1e2",
		SettingsDB:        "./bucketspy.db",
		JournalMaxFileMB:  100,
		JournalBufferSize: 1000,
		ConfigPath:        getEnvOrDefault("BUCKETSPY_CONFIG", "./config/bucketspy.yaml"),
		SettingsDefaults:  settings.Defaults(),
	}

	overlay, err := LoadOverlay(cfg.ConfigPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("no config overlay", "path", cfg.ConfigPath)
	case err != nil:
		return nil, err
	default:
		overlay.apply(cfg)
	}

	cfg.CDPAddress = getEnvOrDefault("CHROMIUM_CDP_ADDRESS", cfg.CDPAddress)
	cfg.CDPPort = getEnvIntOrDefault("CHROMIUM_CDP_PORT", cfg.CDPPort)
	cfg.EvalTimeoutMS = getEnvIntOrDefault("BUCKETSPY_EVAL_TIMEOUT_MS", cfg.EvalTimeoutMS)
	cfg.FocusPollInterval = time.Duration(getEnvIntOrDefault("BUCKETSPY_FOCUS_POLL_MS", int(cfg.FocusPollInterval/time.Millisecond))) * time.Millisecond
	cfg.LaunchBrowser = getEnvBoolOrDefault("BUCKETSPY_LAUNCH_BROWSER", cfg.LaunchBrowser)
	cfg.BrowserProfileDir = getEnvOrDefault("BUCKETSPY_BROWSER_PROFILE_DIR", cfg.BrowserProfileDir)
	cfg.BrowserHeadless = getEnvBoolOrDefault("BUCKETSPY_BROWSER_HEADLESS", cfg.BrowserHeadless)
	cfg.NotifyURL = getEnvOrDefault("BUCKETSPY_NOTIFY_URL", cfg.NotifyURL)
	cfg.BindAddr = getEnvOrDefault("BUCKETSPY_BIND_ADDR", cfg.BindAddr)
	cfg.PortAutoFallback = getEnvBoolOrDefault("BUCKETSPY_PORT_AUTO_FALLBACK", cfg.PortAutoFallback)
	cfg.PortCandidates = getEnvListOrDefault("BUCKETSPY_PORT_CANDIDATES", cfg.PortCandidates)
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("BUCKETSPY_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = getEnvOrDefault("BUCKETSPY_LOG_FILE", cfg.LogFile)
	cfg.MaxRequests = getEnvIntOrDefault("BUCKETSPY_MAX_REQUESTS", cfg.MaxRequests)
	cfg.QueueSize = getEnvIntOrDefault("BUCKETSPY_QUEUE_SIZE", cfg.QueueSize)
	cfg.BadgeColor = getEnvOrDefault("BUCKETSPY_BADGE_COLOR", cfg.BadgeColor)
	cfg.SettingsDB = getEnvOrDefault("BUCKETSPY_SETTINGS_DB", cfg.SettingsDB)
	cfg.JournalDir = getEnvOrDefault("BUCKETSPY_JOURNAL_DIR", cfg.JournalDir)
	cfg.JournalMaxFileMB = getEnvIntOrDefault("BUCKETSPY_JOURNAL_MAX_FILE_MB", cfg.JournalMaxFileMB)
	cfg.JournalBufferSize = getEnvIntOrDefault("BUCKETSPY_JOURNAL_BUFFER_SIZE", cfg.JournalBufferSize)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine or HTTP server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		errs = append(errs, fmt.Errorf("CHROMIUM_CDP_PORT %d out of range", c.CDPPort))
	}
	if c.BindAddr == "" {
		errs = append(errs, errors.New("BUCKETSPY_BIND_ADDR must not be empty"))
	}
	if c.MaxRequests < 1 {
		errs = append(errs, fmt.Errorf("BUCKETSPY_MAX_REQUESTS must be positive, got %d", c.MaxRequests))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("BUCKETSPY_QUEUE_SIZE must be positive, got %d", c.QueueSize))
	}
	if !badgeColorRe.MatchString(c.BadgeColor) {
		errs = append(errs, fmt.Errorf("BUCKETSPY_BADGE_COLOR %q is not a #rrggbb colour", c.BadgeColor))
	}
	if c.SettingsDB == "" {
		errs = append(errs, errors.New("BUCKETSPY_SETTINGS_DB must not be empty"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("BUCKETSPY_LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.EvalTimeoutMS < 100 {
		c.EvalTimeoutMS = 100
	}
	if c.FocusPollInterval < 0 {
		c.FocusPollInterval = 0
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// EvalTimeout bounds a single in-tab evaluation.
func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
