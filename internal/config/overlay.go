package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/settings"
	"gopkg.in/yaml.v3"
)

// Overlay is the optional YAML file read before the environment. Unset
// fields leave the built-in default in place.
type Overlay struct {
	CDPAddress  *string `yaml:"cdp_address"`
	CDPPort     *int    `yaml:"cdp_port"`
	BindAddr    *string `yaml:"bind_addr"`
	LogLevel    *string `yaml:"log_level"`
	LogFile     *string `yaml:"log_file"`
	MaxRequests *int    `yaml:"max_requests"`
	QueueSize   *int    `yaml:"queue_size"`
	BadgeColor  *string `yaml:"badge_color"`
	FocusPollMS *int    `yaml:"focus_poll_ms"`
	SettingsDB  *string `yaml:"settings_db"`
	JournalDir  *string `yaml:"journal_dir"`
	NotifyURL   *string `yaml:"notify_url"`

	// Settings seeds keys that have never been written to the settings store.
	Settings *SettingsOverlay `yaml:"settings"`
}

type SettingsOverlay struct {
	IsEnabled *bool `yaml:"is_enabled"`
	ShowBadge *bool `yaml:"show_badge"`
}

// LoadOverlay reads a YAML overlay file. Returns an os.ErrNotExist-wrapped
// error if the file is absent (caller silently skips in that case).
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config overlay: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("config overlay %s: %w", path, err)
	}
	return &o, nil
}

func (o *Overlay) apply(cfg *Config) {
	setString(&cfg.CDPAddress, o.CDPAddress)
	setInt(&cfg.CDPPort, o.CDPPort)
	setString(&cfg.BindAddr, o.BindAddr)
	setString(&cfg.LogLevel, o.LogLevel)
	setString(&cfg.LogFile, o.LogFile)
	setInt(&cfg.MaxRequests, o.MaxRequests)
	setInt(&cfg.QueueSize, o.QueueSize)
	setString(&cfg.BadgeColor, o.BadgeColor)
	setString(&cfg.SettingsDB, o.SettingsDB)
	setString(&cfg.JournalDir, o.JournalDir)
	setString(&cfg.NotifyURL, o.NotifyURL)
	if o.FocusPollMS != nil {
		cfg.FocusPollInterval = time.Duration(*o.FocusPollMS) * time.Millisecond
	}
	if o.Settings != nil {
		d := settings.Defaults()
		if o.Settings.IsEnabled != nil {
			d.IsEnabled = *o.Settings.IsEnabled
		}
		if o.Settings.ShowBadge != nil {
			d.ShowBadge = *o.Settings.ShowBadge
		}
		cfg.SettingsDefaults = d
		cfg.SeedSettings = true
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
