package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/s3url"
	"github.com/dgnsrekt/bucketspy/internal/settings"
	"github.com/google/uuid"
)

// ErrStopped is returned when submitting to an engine whose loop has exited.
var ErrStopped = errors.New("capture engine stopped")

// ErrQueueFull is returned by TrySubmit when the event queue has no room.
var ErrQueueFull = errors.New("capture engine queue full")

// SettingsLoader reads the persisted settings at startup.
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// ActiveTabResolver asks the host which tab is currently active.
type ActiveTabResolver interface {
	ActiveTab(ctx context.Context) (tabID int, ok bool, err error)
}

// BadgeSink displays the badge.
type BadgeSink interface {
	SetBadge(ctx context.Context, b Badge) error
}

// Observer is notified of every newly retained capture.
type Observer interface {
	OnCapture(r CapturedRequest)
}

// Options configures an Engine.
type Options struct {
	Capacity     int
	QueueSize    int
	BadgeColor   string
	BadgeTimeout time.Duration
}

// Stats are cumulative engine counters.
type Stats struct {
	Observed uint64 `json:"observed"`
	Captured uint64 `json:"captured"`
	Evicted  uint64 `json:"evicted"`
	Dropped  uint64 `json:"dropped"`
	Retained int    `json:"retained"`
	Capacity int    `json:"capacity"`
	Version  uint64 `json:"version"`
	Enabled  bool   `json:"enabled"`
}

type envelope struct {
	ev   Event
	done chan struct{}
}

// Engine is the single writer of the capture state. Events are applied one
// at a time by Run; readers load the most recently published State.
type Engine struct {
	opts      Options
	loader    SettingsLoader
	tabs      ActiveTabResolver
	badge     BadgeSink
	observers []Observer

	events chan envelope
	done   chan struct{}

	// Owned by the Run goroutine.
	current       State
	badgeInFlight bool
	badgeAgain    bool

	published atomic.Pointer[State]
	observed  atomic.Uint64
	captured  atomic.Uint64
	dropped   atomic.Uint64

	now   func() time.Time
	newID func() string
}

// NewEngine builds an engine. Any of loader, tabs and badge may be nil.
func NewEngine(opts Options, loader SettingsLoader, tabs ActiveTabResolver, badge BadgeSink, observers ...Observer) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BadgeColor == "" {
		opts.BadgeColor = DefaultBadgeColor
	}
	if opts.BadgeTimeout <= 0 {
		opts.BadgeTimeout = 2 * time.Second
	}

	e := &Engine{
		opts:      opts,
		loader:    loader,
		tabs:      tabs,
		badge:     badge,
		observers: observers,
		events:    make(chan envelope, opts.QueueSize),
		done:      make(chan struct{}),
		current:   NewState(opts.Capacity, opts.BadgeColor),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newRequestID,
	}
	e.publish()
	return e
}

// Run loads settings and processes events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	e.apply(ctx, SettingsLoaded{Settings: e.loadSettings(ctx)})

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-e.events:
			e.apply(ctx, env.ev)
			if env.done != nil {
				close(env.done)
			}
		}
	}
}

func (e *Engine) loadSettings(ctx context.Context) settings.Settings {
	if e.loader == nil {
		return settings.Defaults()
	}
	s, err := e.loader.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load settings, using defaults", "error", err)
		return settings.Defaults()
	}
	slog.Info("Settings loaded", "is_enabled", s.IsEnabled, "show_badge", s.ShowBadge)
	return s
}

// Submit queues ev without waiting for it to be applied.
func (e *Engine) Submit(ctx context.Context, ev Event) error {
	return e.enqueue(ctx, envelope{ev: ev})
}

// TrySubmit queues ev if there is room and never blocks.
func (e *Engine) TrySubmit(ev Event) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.events <- envelope{ev: ev}:
		return nil
	default:
		e.dropped.Add(1)
		return ErrQueueFull
	}
}

// Do queues ev and waits until it has been applied.
func (e *Engine) Do(ctx context.Context, ev Event) error {
	env := envelope{ev: ev, done: make(chan struct{})}
	if err := e.enqueue(ctx, env); err != nil {
		return err
	}
	select {
	case <-env.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

func (e *Engine) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.events <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// HandleRequest reports an outbound request from the host.
func (e *Engine) HandleRequest(ctx context.Context, url, method string, tabID int, requestType string) error {
	return e.Submit(ctx, RequestObserved{URL: url, Method: method, TabID: tabID, Type: requestType, At: e.now()})
}

// ClearForTab removes every capture recorded for tabID.
func (e *Engine) ClearForTab(ctx context.Context, tabID int) error {
	return e.Do(ctx, ClearRequests{TabID: &tabID})
}

// ClearAll empties the capture log.
func (e *Engine) ClearAll(ctx context.Context) error {
	return e.Do(ctx, ClearRequests{})
}

// GetAll returns the retained captures, restricted to tabID when non-nil.
func (e *Engine) GetAll(tabID *int) []CapturedRequest {
	s := e.Snapshot()
	if tabID != nil {
		return s.Log.ForTab(*tabID)
	}
	return s.Log.Entries()
}

// Snapshot returns the most recently published state.
func (e *Engine) Snapshot() State {
	return *e.published.Load()
}

// Settings returns the live settings.
func (e *Engine) Settings() settings.Settings {
	return e.Snapshot().Settings
}

func (e *Engine) Stats() Stats {
	s := e.Snapshot()
	return Stats{
		Observed: e.observed.Load(),
		Captured: e.captured.Load(),
		Evicted:  s.Log.Evicted(),
		Dropped:  e.dropped.Load(),
		Retained: s.Log.Len(),
		Capacity: s.Log.Capacity(),
		Version:  s.Log.Version(),
		Enabled:  s.Settings.IsEnabled,
	}
}

func (e *Engine) apply(ctx context.Context, ev Event) {
	if ro, ok := ev.(RequestObserved); ok {
		e.observed.Add(1)
		ev = e.stamp(ro)
	}

	prev := e.current
	next, effects := Apply(e.current, ev)
	e.current = next
	if next.Log.Version() != prev.Log.Version() || next.Settings != prev.Settings {
		e.publish()
	}

	if _, ok := ev.(BadgeResolved); ok {
		e.badgeInFlight = false
	}
	for _, eff := range effects {
		e.execute(ctx, eff)
	}
	if !e.badgeInFlight && e.badgeAgain {
		e.badgeAgain = false
		e.resolveBadge(ctx)
	}
}

// stamp fills in the id and capture time of requests that will be retained.
func (e *Engine) stamp(ro RequestObserved) RequestObserved {
	if !e.current.Settings.IsEnabled || !s3url.Match(ro.URL) {
		return ro
	}
	if ro.ID == "" {
		ro.ID = e.newID()
	}
	if ro.At.IsZero() {
		ro.At = e.now()
	}
	return ro
}

func (e *Engine) execute(ctx context.Context, eff Effect) {
	switch x := eff.(type) {
	case Captured:
		e.captured.Add(1)
		slog.Debug("S3 request captured",
			"id", x.Request.ID,
			"method", x.Request.Method,
			"tab_id", x.Request.TabID,
			"url", x.Request.URL)
		for _, o := range e.observers {
			o.OnCapture(x.Request)
		}
	case RecomputeBadge:
		if e.badgeInFlight {
			e.badgeAgain = true
			return
		}
		e.resolveBadge(ctx)
	case SetBadge:
		if e.badge == nil {
			return
		}
		if err := e.badge.SetBadge(ctx, x.Badge); err != nil {
			slog.Debug("Failed to set badge", "error", err)
		}
	}
}

// resolveBadge queries the active tab off the loop. The answer comes back as
// a BadgeResolved event so the count reflects the log at that moment.
func (e *Engine) resolveBadge(ctx context.Context) {
	if e.tabs == nil {
		e.apply(ctx, BadgeResolved{})
		return
	}

	e.badgeInFlight = true
	go func() {
		qctx, cancel := context.WithTimeout(ctx, e.opts.BadgeTimeout)
		defer cancel()

		tabID, ok, err := e.tabs.ActiveTab(qctx)
		if err != nil {
			slog.Debug("Active tab lookup failed", "error", err)
			ok = false
		}
		if err := e.Submit(ctx, BadgeResolved{ActiveTab: tabID, Found: ok}); err != nil {
			slog.Debug("Dropped badge update", "error", err)
		}
	}()
}

func (e *Engine) publish() {
	s := e.current
	e.published.Store(&s)
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
