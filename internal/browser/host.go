// Package browser hosts the canvas web app in a headless Chrome page and
// exposes its in-page window.mathCanvas API to the rest of the system:
// rendering visual directives, verifying rendered SVG, measuring DOM
// elements, and capturing screenshots.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"mathcanvas/internal/logging"
	"mathcanvas/internal/pipeline"
)

// ErrNotStarted is returned when a page operation is attempted before the
// host has connected to Chrome.
var ErrNotStarted = errors.New("browser host not started")

// ErrElementNotFound is returned when a measured or captured selector
// matches nothing on the page.
var ErrElementNotFound = errors.New("element not found")

// Config holds browser configuration.
type Config struct {
	AppURL              string   `json:"app_url"`
	DebuggerURL         string   `json:"debugger_url"`
	Launch              []string `json:"launch"`
	Headless            bool     `json:"headless"`
	ViewportWidth       int      `json:"viewport_width"`
	ViewportHeight      int      `json:"viewport_height"`
	NavigationTimeoutMs int      `json:"navigation_timeout_ms"`
	AttemptTimeoutMs    int      `json:"attempt_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1280,
		ViewportHeight:      800,
		NavigationTimeoutMs: 30000,
		AttemptTimeoutMs:    2000,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1280
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 800
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// AttemptTimeout bounds a single render or verify call against the page.
func (c Config) AttemptTimeout() time.Duration {
	if c.AttemptTimeoutMs == 0 {
		return 2 * time.Second
	}
	return time.Duration(c.AttemptTimeoutMs) * time.Millisecond
}

// Rect is a measured element bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Host owns the Chrome instance and the single canvas page. Every page call
// is serialized through one mutex: the canvas is a shared rendering surface
// and overlapping render-then-capture sequences against it would race.
type Host struct {
	cfg        Config
	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

// NewHost creates a page host. Call Start before using it.
func NewHost(cfg Config) *Host {
	return &Host{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one, then opens the
// canvas app page.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	// If we already have a browser, verify it's still alive.
	if h.browser != nil {
		if _, err := h.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection detected, reconnecting")
		_ = h.browser.Close()
		h.browser = nil
		h.page = nil
		h.controlURL = ""
	}

	controlURL := h.cfg.DebuggerURL
	if controlURL == "" && len(h.cfg.Launch) > 0 {
		bin := h.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(h.cfg.Headless)
		for _, rawFlag := range h.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Retry without the extra flags before giving up.
			fallback := launcher.New().Bin(bin).Headless(h.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(h.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create canvas page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             h.cfg.GetViewportWidth(),
		Height:            h.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	if h.cfg.AppURL != "" {
		nav := page.Timeout(h.cfg.NavigationTimeout())
		if err := nav.Navigate(h.cfg.AppURL); err != nil {
			_ = browser.Close()
			return fmt.Errorf("navigate to canvas app %s: %w", h.cfg.AppURL, err)
		}
		if err := nav.WaitLoad(); err != nil {
			logging.BrowserWarn("canvas app load wait: %v", err)
		}
	}

	h.browser = browser
	h.page = page
	h.controlURL = controlURL
	logging.Browser("canvas page ready at %s", h.cfg.AppURL)
	return nil
}

// ControlURL returns the WebSocket debugger URL.
func (h *Host) ControlURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controlURL
}

// IsConnected returns whether the browser is connected.
func (h *Host) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.browser != nil
}

// Shutdown closes the canvas page and the browser.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.page != nil {
		_ = h.page.Close()
		h.page = nil
	}
	var err error
	if h.browser != nil {
		err = h.browser.Close()
		h.browser = nil
	}
	h.controlURL = ""
	return err
}

// attemptPage returns the page bound to ctx and the attempt timeout. Caller
// must hold h.mu.
func (h *Host) attemptPage(ctx context.Context) (*rod.Page, error) {
	if h.page == nil {
		return nil, ErrNotStarted
	}
	return h.page.Context(ctx).Timeout(h.cfg.AttemptTimeout()), nil
}

// eval runs an in-page function and decodes its JSON result into out.
func (h *Host) eval(ctx context.Context, js string, args []interface{}, out interface{}) error {
	page, err := h.attemptPage(ctx)
	if err != nil {
		return err
	}
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return err
	}
	if res == nil {
		return errors.New("empty response from page")
	}
	// A null result is decoded as the zero value; callers that care
	// distinguish it themselves.
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal page response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode page response: %w", err)
	}
	return nil
}

// Render invokes the in-page render API for a directive kind and body,
// implementing pipeline.Renderer. A missing or broken in-page API is a
// mechanism fault and returns an error; the API reporting ok=false is a
// retryable generation failure.
func (h *Host) Render(ctx context.Context, kind pipeline.Kind, body string, opts pipeline.Options) (pipeline.RenderResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryBrowser, fmt.Sprintf("render %s", kind))
	defer timer.StopWithThreshold(h.cfg.AttemptTimeout())

	var resp struct {
		Available bool   `json:"available"`
		OK        bool   `json:"ok"`
		SVG       string `json:"svg"`
	}
	err := h.eval(ctx, `
	(kind, body, options) => {
		const api = window.mathCanvas;
		if (!api || typeof api.render !== 'function') {
			return { available: false };
		}
		const res = api.render(kind, body, options) || {};
		return { available: true, ok: !!res.ok, svg: res.svg || '' };
	}
	`, []interface{}{string(kind), body, opts}, &resp)
	if err != nil {
		return pipeline.RenderResult{}, fmt.Errorf("render call: %w", err)
	}
	if !resp.Available {
		return pipeline.RenderResult{}, errors.New("mathCanvas render API not available on page")
	}
	if !resp.OK {
		return pipeline.RenderResult{OK: false}, nil
	}
	return pipeline.RenderResult{OK: true, Artifact: resp.SVG}, nil
}

// Verify invokes the in-page verification API against a rendered artifact,
// implementing pipeline.Verifier. The mechanism reporting its own failure
// (success=false) is surfaced as an error, never as a failed verification.
func (h *Host) Verify(ctx context.Context, kind pipeline.Kind, artifact string) (pipeline.VerifyResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var resp struct {
		Available bool     `json:"available"`
		Success   bool     `json:"success"`
		Passed    bool     `json:"passed"`
		Errors    []string `json:"errors"`
	}
	err := h.eval(ctx, `
	(kind, svg) => {
		const api = window.mathCanvas;
		if (!api || typeof api.verify !== 'function') {
			return { available: false };
		}
		const res = api.verify(kind, svg) || {};
		const results = res.results || {};
		return {
			available: true,
			success: !!res.success,
			passed: !!results.passed,
			errors: results.errors || []
		};
	}
	`, []interface{}{string(kind), artifact}, &resp)
	if err != nil {
		return pipeline.VerifyResult{}, fmt.Errorf("verify call: %w", err)
	}
	if !resp.Available {
		return pipeline.VerifyResult{}, errors.New("mathCanvas verify API not available on page")
	}
	if !resp.Success {
		return pipeline.VerifyResult{}, errors.New("verification mechanism reported failure")
	}
	return pipeline.VerifyResult{Passed: resp.Passed, Errors: resp.Errors}, nil
}

// LoadContent replaces the canvas page content, preferring the in-page
// loadContent API and falling back to the content container.
func (h *Host) LoadContent(ctx context.Context, html string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var loaded bool
	err := h.eval(ctx, `
	(html) => {
		const api = window.mathCanvas;
		if (api && typeof api.loadContent === 'function') {
			api.loadContent(html);
			return true;
		}
		const target = document.getElementById('content') || document.body;
		target.innerHTML = html;
		return true;
	}
	`, []interface{}{html}, &loaded)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	return nil
}

// MeasureElement returns the bounding box of the first element matching the
// selector.
func (h *Host) MeasureElement(ctx context.Context, selector string) (Rect, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var resp *Rect
	err := h.eval(ctx, `
	(selector) => {
		const el = document.querySelector(selector);
		if (!el) return null;
		const rect = el.getBoundingClientRect();
		return { x: rect.x, y: rect.y, width: rect.width, height: rect.height };
	}
	`, []interface{}{selector}, &resp)
	if err != nil {
		return Rect{}, fmt.Errorf("measure %q: %w", selector, err)
	}
	if resp == nil {
		return Rect{}, fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}
	return *resp, nil
}

// Screenshot captures a PNG of the page, full-page or viewport only.
func (h *Host) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.page == nil {
		return nil, ErrNotStarted
	}
	return h.page.Context(ctx).Screenshot(fullPage, nil)
}

// ScreenshotElement captures a PNG of the first element matching the
// selector.
func (h *Host) ScreenshotElement(ctx context.Context, selector string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.page == nil {
		return nil, ErrNotStarted
	}
	el, err := h.page.Context(ctx).Timeout(h.cfg.AttemptTimeout()).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrElementNotFound, selector, err)
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}
