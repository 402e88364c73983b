// Package settings holds the process-wide capture settings and the stores
// that persist them.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnknownKey   = errors.New("unknown setting")
	ErrInvalidValue = errors.New("invalid setting value")
)

// Keys understood by the settings store.
const (
	KeyIsEnabled = "isEnabled"
	KeyShowBadge = "showBadge"
)

// Settings are the persisted capture toggles. See Defaults for the values
// used when a key has never been written.
type Settings struct {
	IsEnabled bool `json:"is_enabled" yaml:"is_enabled"`
	ShowBadge bool `json:"show_badge" yaml:"show_badge"`
}

// Defaults returns the settings used for missing keys: capture enabled,
// badge shown.
func Defaults() Settings {
	return Settings{IsEnabled: true, ShowBadge: true}
}

// Change is a single key update delivered to subscribers.
type Change struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Store persists settings and notifies subscribers of changes.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Set(ctx context.Context, key string, value any) error
	Subscribe() (<-chan Change, func())
	Close() error
}

// With returns s with key set to value. Unknown keys and non-boolean values
// are rejected.
func (s Settings) With(key string, value any) (Settings, error) {
	b, err := toBool(value)
	if err != nil {
		return s, fmt.Errorf("setting %q: %w", key, err)
	}
	switch key {
	case KeyIsEnabled:
		s.IsEnabled = b
	case KeyShowBadge:
		s.ShowBadge = b
	default:
		return s, fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return s, nil
}

// Get returns the value stored under key.
func (s Settings) Get(key string) (bool, bool) {
	switch key {
	case KeyIsEnabled:
		return s.IsEnabled, true
	case KeyShowBadge:
		return s.ShowBadge, true
	}
	return false, false
}

// Validate checks that value is acceptable for key without applying it.
func Validate(key string, value any) error {
	_, err := Defaults().With(key, value)
	return err
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: invalid boolean %q", ErrInvalidValue, v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: expected boolean, got %T", ErrInvalidValue, value)
	}
}
