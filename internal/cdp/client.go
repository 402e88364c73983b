package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/dgnsrekt/bucketspy/internal/config"
)

// EventSink receives host events without blocking the CDP listener.
// *capture.Engine satisfies it.
type EventSink interface {
	TrySubmit(ev capture.Event) error
}

type focusState struct {
	Visible bool `json:"visible"`
	Focused bool `json:"focused"`
}

// Client observes every page target of a Chromium instance over CDP and
// forwards request and tab lifecycle events to an EventSink.
type Client struct {
	cfg         *config.Config
	sink        EventSink
	tabRegistry *TabRegistry

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	tabs   map[target.ID]*TabContext
	tabsMu sync.RWMutex

	lastActive int
	lastFound  bool

	probeFocus func(ctx context.Context, tab *TabContext) (focusState, error)

	done chan struct{}
	wg   sync.WaitGroup
}

type TabContext struct {
	ID     target.ID
	TabID  int
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, sink EventSink, tabRegistry *TabRegistry) *Client {
	return &Client{
		cfg:         cfg,
		sink:        sink,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*TabContext),
		done:        make(chan struct{}),
		probeFocus:  evaluateFocus,
	}
}

// SetSink replaces the event sink. It must be called before Connect.
func (c *Client) SetSink(sink EventSink) {
	c.sink = sink
}

// Connect attaches to the browser, starts target discovery and attaches to
// every existing page.
func (c *Client) Connect(ctx context.Context) error {
	cdpURL := c.cfg.GetCDPURL()
	slog.Info("Connecting to Chromium", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		c.browserCancel()
		c.allocCancel()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	chromedp.ListenBrowser(c.browserCtx, c.onBrowserEvent)

	browser := chromedp.FromContext(c.browserCtx).Browser
	if err := target.SetDiscoverTargets(true).Do(cdpproto.WithExecutor(c.browserCtx, browser)); err != nil {
		c.browserCancel()
		c.allocCancel()
		return fmt.Errorf("failed to enable target discovery: %w", err)
	}

	slog.Info("Found browser targets", "count", len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Error("Failed to attach to tab", "target_id", t.TargetID, "url", truncateURL(t.URL), "error", err)
		}
	}

	if c.cfg.FocusPollInterval > 0 {
		c.wg.Add(1)
		go c.focusLoop()
	}

	slog.Info("Attached to tabs", "count", c.GetTabCount())
	return nil
}

func (c *Client) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo.Type != "page" {
			return
		}
		// Attaching issues CDP commands, which must not run on the listener goroutine.
		go func(id target.ID, url string) {
			if err := c.attachToTab(id, url); err != nil {
				slog.Warn("Failed to attach to new tab", "target_id", id, "error", err)
			}
		}(e.TargetInfo.TargetID, e.TargetInfo.URL)
	case *target.EventTargetDestroyed:
		c.detachTab(e.TargetID)
	}
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	c.tabsMu.Lock()
	if _, ok := c.tabs[targetID]; ok {
		c.tabsMu.Unlock()
		return nil
	}
	tabID := c.tabRegistry.Register(targetID, url)
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(targetID))
	tab := &TabContext{ID: targetID, TabID: tabID, ctx: tabCtx, cancel: tabCancel}
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	chromedp.ListenTarget(tabCtx, c.createEventHandler(targetID, tabID))

	if err := chromedp.Run(tabCtx, network.Enable(), page.Enable()); err != nil {
		c.tabsMu.Lock()
		delete(c.tabs, targetID)
		c.tabsMu.Unlock()
		tabCancel()
		c.tabRegistry.Remove(targetID)
		return fmt.Errorf("failed to enable network/page domains: %w", err)
	}

	slog.Info("Attached to tab", "target_id", targetID, "tab_id", tabID, "url", truncateURL(url))
	return nil
}

func (c *Client) detachTab(targetID target.ID) {
	c.tabsMu.Lock()
	tab, ok := c.tabs[targetID]
	delete(c.tabs, targetID)
	c.tabsMu.Unlock()
	if !ok {
		return
	}

	tab.cancel()
	c.tabRegistry.Remove(targetID)
	slog.Info("Tab closed", "target_id", targetID, "tab_id", tab.TabID)
	c.emit(capture.TabRemoved{TabID: tab.TabID})
}

func (c *Client) createEventHandler(targetID target.ID, tabID int) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				c.tabRegistry.Register(targetID, e.Frame.URL)
				slog.Debug("Tab navigated", "tab_id", tabID, "url", truncateURL(e.Frame.URL))
			}
		case *network.EventRequestWillBeSent:
			if isNavigationStart(targetID, e) {
				c.emit(capture.TabLoading{TabID: tabID})
			}
			at := time.Now().UTC()
			if e.WallTime != nil {
				at = e.WallTime.Time().UTC()
			}
			c.emit(capture.RequestObserved{
				URL:    e.Request.URL,
				Method: e.Request.Method,
				TabID:  tabID,
				Type:   string(e.Type),
				At:     at,
			})
		}
	}
}

// isNavigationStart reports whether e is the first document request of a
// top-level navigation. A page target's main frame shares the target's id.
func isNavigationStart(targetID target.ID, e *network.EventRequestWillBeSent) bool {
	return e.Type == network.ResourceTypeDocument &&
		string(e.FrameID) == string(targetID) &&
		e.RedirectResponse == nil
}

// emit runs on chromedp listener goroutines, so a full engine queue drops
// the event instead of stalling the tab's event dispatch.
func (c *Client) emit(ev capture.Event) {
	if err := c.sink.TrySubmit(ev); err != nil {
		slog.Warn("Dropped host event", "kind", ev.Kind(), "error", err)
	}
}

// ActiveTab returns the tab whose document has focus, falling back to the
// lowest-numbered visible tab. ctx bounds the whole lookup.
func (c *Client) ActiveTab(ctx context.Context) (int, bool, error) {
	c.tabsMu.RLock()
	tabs := make([]*TabContext, 0, len(c.tabs))
	for _, t := range c.tabs {
		tabs = append(tabs, t)
	}
	c.tabsMu.RUnlock()
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].TabID < tabs[j].TabID })

	visible := 0
	for _, t := range tabs {
		if ctx.Err() != nil {
			break
		}
		// Evaluations run in the tab's context and must also end with ctx.
		evalCtx, cancel := context.WithTimeout(t.ctx, c.cfg.EvalTimeout())
		stop := context.AfterFunc(ctx, cancel)
		st, err := c.probeFocus(evalCtx, t)
		stop()
		cancel()
		if err != nil {
			slog.Debug("Tab focus probe failed", "tab_id", t.TabID, "error", err)
			continue
		}
		if st.Focused {
			return t.TabID, true, nil
		}
		if st.Visible && visible == 0 {
			visible = t.TabID
		}
	}
	if visible != 0 {
		return visible, true, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

func evaluateFocus(ctx context.Context, _ *TabContext) (focusState, error) {
	var st focusState
	err := chromedp.Run(ctx, chromedp.Evaluate(
		`({visible: document.visibilityState === "visible", focused: document.hasFocus()})`, &st))
	return st, err
}

// focusLoop stands in for the activation and window-focus notifications CDP
// does not provide.
func (c *Client) focusLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.FocusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.pollFocus()
		case <-c.done:
			return
		}
	}
}

func (c *Client) pollFocus() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FocusPollInterval)
	defer cancel()

	tabID, found, err := c.ActiveTab(ctx)
	if err != nil {
		return
	}
	if found == c.lastFound && tabID == c.lastActive {
		return
	}
	c.lastActive, c.lastFound = tabID, found

	if found {
		c.emit(capture.TabActivated{TabID: tabID})
	} else {
		c.emit(capture.WindowFocusChanged{})
	}
}

func (c *Client) Close() error {
	close(c.done)
	c.wg.Wait()

	c.tabsMu.Lock()
	for _, t := range c.tabs {
		t.cancel()
	}
	c.tabs = make(map[target.ID]*TabContext)
	c.tabsMu.Unlock()

	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}

	slog.Info("CDP client closed")
	return nil
}

func (c *Client) GetTabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
