package popup

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/popup-offer/internal/obs"
)

// State is the popup visibility.
type State int

const (
	// Hidden is the initial state.
	Hidden State = iota
	// Visible means the dialog is shown and the host scroll is locked.
	Visible
)

func (s State) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Visible:
		return "visible"
	default:
		return "unknown"
	}
}

// EscapeKey is the key name that dismisses the popup.
const EscapeKey = "Escape"

// ScrollLock toggles scrolling on the host document.
type ScrollLock interface {
	Lock()
	Unlock()
}

// NopScrollLock ignores scroll toggles.
type NopScrollLock struct{}

// Lock implements ScrollLock.
func (NopScrollLock) Lock() {}

// Unlock implements ScrollLock.
func (NopScrollLock) Unlock() {}

// Options configure a Controller.
type Options struct {
	// Config is merged over DefaultConfig, so unset fields keep their defaults.
	Config  ConfigPatch
	Content Content
	Store   CookieStore
	Scroll  ScrollLock
	Logger  zerolog.Logger
}

// Snapshot is a point-in-time view used for rendering.
type Snapshot struct {
	State      State   `json:"-"`
	Visible    bool    `json:"visible"`
	Suppressed bool    `json:"suppressed"`
	DelayMs    int64   `json:"delayMs"`
	Config     Config  `json:"config"`
	Content    Content `json:"content"`
}

// Controller owns popup visibility, the suppression cookie and the mutable
// config and content. Consumers share one controller by reference; nothing
// else mutates the state.
type Controller struct {
	mu         sync.Mutex
	state      State
	config     Config
	content    Content
	suppressed bool
	store      CookieStore
	scroll     ScrollLock
	locked     bool
	logger     zerolog.Logger
	listeners  map[int]func(State)
	nextID     int
}

// NewController builds a hidden controller and reads the suppression cookie
// fresh when cookies are enabled.
func NewController(opts Options) *Controller {
	cfg := DefaultConfig().Merge(opts.Config)
	content := opts.Content
	if content == (Content{}) {
		content = DefaultContent()
	}
	if content.AmountCents <= 0 {
		opts.Logger.Warn().Int64("amount", content.AmountCents).Msg("popup_amount_invalid_using_default")
		content.AmountCents = DefaultContent().AmountCents
	}
	scroll := opts.Scroll
	if scroll == nil {
		scroll = NopScrollLock{}
	}
	c := &Controller{
		state:     Hidden,
		config:    cfg,
		content:   content,
		store:     opts.Store,
		scroll:    scroll,
		logger:    opts.Logger,
		listeners: map[int]func(State){},
	}
	if cfg.CookiesEnabled {
		c.suppressed = c.readSuppressed()
	}
	return c
}

// Show makes the popup visible. Suppression never blocks an explicit show;
// it only cancels the host's automatic trigger.
func (c *Controller) Show() {
	c.transition(Visible, "show")
}

// Hide makes the popup hidden and, when cookies are enabled, writes the
// suppression cookie once per call, even if the popup was already hidden.
func (c *Controller) Hide() {
	c.mu.Lock()
	cfg := c.config
	c.mu.Unlock()

	c.transition(Hidden, "hide")
	if cfg.CookiesEnabled {
		c.writeSuppressed(cfg)
	}
}

// Reopen clears the suppression cookie and shows the popup.
func (c *Controller) Reopen() {
	c.mu.Lock()
	name := c.config.CookieName
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Delete(name); err != nil {
			c.logger.Debug().Err(err).Str("cookie", name).Msg("popup_cookie_delete_skipped")
		}
	}
	c.mu.Lock()
	c.suppressed = false
	c.mu.Unlock()
	c.transition(Visible, "reopen")
}

// HandlePointerDown dismisses the popup when a pointer event lands outside it.
func (c *Controller) HandlePointerDown(insidePopup bool) {
	if insidePopup || !c.Visible() {
		return
	}
	c.Hide()
}

// HandleKey dismisses the popup on Escape.
func (c *Controller) HandleKey(key string) {
	if key != EscapeKey || !c.Visible() {
		return
	}
	c.Hide()
}

// HandleCloseButton dismisses the popup from its close control.
func (c *Controller) HandleCloseButton() {
	if !c.Visible() {
		return
	}
	c.Hide()
}

// UpdateConfig merges the patch over the current config. Visibility is untouched.
func (c *Controller) UpdateConfig(p ConfigPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = c.config.Merge(p)
}

// UpdateContent merges the patch over the current content.
func (c *Controller) UpdateContent(p ContentPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = c.content.Merge(p)
}

// Config returns the current config.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Content returns the current content.
func (c *Controller) Content() Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// State returns the current visibility.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Visible reports whether the popup is shown.
func (c *Controller) Visible() bool {
	return c.State() == Visible
}

// Suppressed reports whether the suppression cookie was set when the
// controller was created.
func (c *Controller) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressed
}

// ShouldAutoShow reports whether the host's delayed auto-show should fire.
func (c *Controller) ShouldAutoShow() bool {
	return !c.Suppressed()
}

// Snapshot captures the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:      c.state,
		Visible:    c.state == Visible,
		Suppressed: c.suppressed,
		DelayMs:    c.config.DelayMillis(),
		Config:     c.config,
		Content:    c.content,
	}
}

// Subscribe registers fn to be called after every transition.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close releases the scroll lock and drops listeners.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// always clear, even if the lock was never taken
	c.scroll.Unlock()
	c.locked = false
	c.listeners = map[int]func(State){}
}

// transition is a no-op when the popup is already in next.
func (c *Controller) transition(next State, action string) {
	c.mu.Lock()
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	switch {
	case next == Visible && !c.locked:
		c.scroll.Lock()
		c.locked = true
	case next == Hidden && c.locked:
		c.scroll.Unlock()
		c.locked = false
	}
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if obs.PopupTransitionTotal != nil {
		obs.PopupTransitionTotal.WithLabelValues(action).Inc()
	}
	c.logger.Debug().Str("from", prev.String()).Str("to", next.String()).Str("action", action).Msg("popup_transition")
	for _, fn := range listeners {
		fn(next)
	}
}

func (c *Controller) readSuppressed() bool {
	if c.store == nil {
		return false
	}
	value, ok, err := c.store.Get(c.config.CookieName)
	if err != nil {
		c.logger.Debug().Err(err).Str("cookie", c.config.CookieName).Msg("popup_cookie_read_skipped")
		return false
	}
	return ok && value == SuppressedValue
}

func (c *Controller) writeSuppressed(cfg Config) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(cfg.CookieName, SuppressedValue, cfg.CookieDurationDays); err != nil {
		c.logger.Debug().Err(err).Str("cookie", cfg.CookieName).Msg("popup_cookie_write_skipped")
	}
}
