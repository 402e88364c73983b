package capture

import (
	"time"

	"github.com/dgnsrekt/bucketspy/internal/s3url"
	"github.com/dgnsrekt/bucketspy/internal/settings"
)

// State is everything the engine owns. It is treated as a value: transitions
// return a new State and never mutate the one they were given.
type State struct {
	Log        Log
	Settings   settings.Settings
	BadgeColor string
}

// NewState returns an empty state with default settings.
func NewState(capacity int, badgeColor string) State {
	return State{
		Log:        NewLog(capacity),
		Settings:   settings.Defaults(),
		BadgeColor: badgeColor,
	}
}

// Kind names an event type in the transition table.
type Kind string

const (
	KindRequestObserved    Kind = "request_observed"
	KindTabRemoved         Kind = "tab_removed"
	KindTabLoading         Kind = "tab_loading"
	KindTabActivated       Kind = "tab_activated"
	KindWindowFocusChanged Kind = "window_focus_changed"
	KindSettingChanged     Kind = "setting_changed"
	KindSettingsLoaded     Kind = "settings_loaded"
	KindClearRequests      Kind = "clear_requests"
	KindBadgeResolved      Kind = "badge_resolved"
)

// Event is an input to the engine.
type Event interface {
	Kind() Kind
}

// RequestObserved is an outbound request reported by the host. ID and At are
// stamped by the engine when empty.
type RequestObserved struct {
	ID     string
	URL    string
	Method string
	TabID  int
	Type   string
	At     time.Time
}

// TabRemoved reports a closed tab.
type TabRemoved struct{ TabID int }

// TabLoading reports that a tab started a top-level navigation.
type TabLoading struct{ TabID int }

// TabActivated reports that a tab became the active one.
type TabActivated struct{ TabID int }

// WindowFocusChanged reports a change of focused browser window.
type WindowFocusChanged struct{}

// SettingChanged carries a live settings update.
type SettingChanged struct {
	Key   string
	Value any
}

// SettingsLoaded replaces the whole settings value, used at startup.
type SettingsLoaded struct{ Settings settings.Settings }

// ClearRequests clears one tab's captures, or all of them when TabID is nil.
type ClearRequests struct{ TabID *int }

// BadgeResolved carries the result of an active-tab query.
type BadgeResolved struct {
	ActiveTab int
	Found     bool
}

func (RequestObserved) Kind() Kind    { return KindRequestObserved }
func (TabRemoved) Kind() Kind         { return KindTabRemoved }
func (TabLoading) Kind() Kind         { return KindTabLoading }
func (TabActivated) Kind() Kind       { return KindTabActivated }
func (WindowFocusChanged) Kind() Kind { return KindWindowFocusChanged }
func (SettingChanged) Kind() Kind     { return KindSettingChanged }
func (SettingsLoaded) Kind() Kind     { return KindSettingsLoaded }
func (ClearRequests) Kind() Kind      { return KindClearRequests }
func (BadgeResolved) Kind() Kind      { return KindBadgeResolved }

// Effect is a side-effect command produced by a transition and executed by
// the engine loop.
type Effect interface {
	effect()
}

// RecomputeBadge asks the engine to resolve the active tab and refresh the badge.
type RecomputeBadge struct{}

// SetBadge pushes a badge to the display sink.
type SetBadge struct{ Badge Badge }

// Captured announces a newly retained request to observers.
type Captured struct{ Request CapturedRequest }

func (RecomputeBadge) effect() {}
func (SetBadge) effect()       {}
func (Captured) effect()       {}

type transition func(State, Event) (State, []Effect)

var transitions = map[Kind]transition{
	KindRequestObserved:    onRequestObserved,
	KindTabRemoved:         onTabRemoved,
	KindTabLoading:         onTabLoading,
	KindTabActivated:       recomputeOnly,
	KindWindowFocusChanged: recomputeOnly,
	KindSettingChanged:     onSettingChanged,
	KindSettingsLoaded:     onSettingsLoaded,
	KindClearRequests:      onClearRequests,
	KindBadgeResolved:      onBadgeResolved,
}

// Apply runs the transition registered for ev. Unknown events leave the
// state untouched.
func Apply(s State, ev Event) (State, []Effect) {
	t, ok := transitions[ev.Kind()]
	if !ok {
		return s, nil
	}
	return t(s, ev)
}

func onRequestObserved(s State, ev Event) (State, []Effect) {
	e := ev.(RequestObserved)
	if !s.Settings.IsEnabled || !s3url.Match(e.URL) {
		return s, nil
	}

	r := CapturedRequest{
		ID:          e.ID,
		URL:         e.URL,
		Method:      e.Method,
		Timestamp:   e.At,
		TabID:       e.TabID,
		RequestType: e.Type,
	}
	s.Log = s.Log.Append(r)
	return s, []Effect{Captured{Request: r}, RecomputeBadge{}}
}

func onTabRemoved(s State, ev Event) (State, []Effect) {
	return clearTab(s, ev.(TabRemoved).TabID)
}

func onTabLoading(s State, ev Event) (State, []Effect) {
	return clearTab(s, ev.(TabLoading).TabID)
}

func clearTab(s State, tabID int) (State, []Effect) {
	next, removed := s.Log.RemoveTab(tabID)
	if removed == 0 {
		return s, nil
	}
	s.Log = next
	return s, []Effect{RecomputeBadge{}}
}

func recomputeOnly(s State, _ Event) (State, []Effect) {
	return s, []Effect{RecomputeBadge{}}
}

func onSettingChanged(s State, ev Event) (State, []Effect) {
	e := ev.(SettingChanged)
	next, err := s.Settings.With(e.Key, e.Value)
	if err != nil {
		return s, nil
	}
	s.Settings = next
	return s, []Effect{RecomputeBadge{}}
}

func onSettingsLoaded(s State, ev Event) (State, []Effect) {
	s.Settings = ev.(SettingsLoaded).Settings
	return s, []Effect{RecomputeBadge{}}
}

func onClearRequests(s State, ev Event) (State, []Effect) {
	e := ev.(ClearRequests)
	if e.TabID != nil {
		return clearTab(s, *e.TabID)
	}
	s.Log = s.Log.Clear()
	return s, []Effect{RecomputeBadge{}}
}

func onBadgeResolved(s State, ev Event) (State, []Effect) {
	e := ev.(BadgeResolved)
	return s, []Effect{SetBadge{Badge: ProjectBadge(s, e.ActiveTab, e.Found)}}
}
