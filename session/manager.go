package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/chromedp/chromedp"

	"auction-scraper/config"
	"auction-scraper/utils"
)

// challengeMarkers are substrings that identify an anti-bot interstitial in
// the page title, body, or URL.
var challengeMarkers = []string{"just a moment", "cf-chl", "__cf_chl", "verify you are human"}

// Handle is one live browser session: an exec allocator plus a single tab.
// At most one Handle is in flight per Manager, and it is exclusively owned
// by the adapter currently executing.
type Handle struct {
	Tab    context.Context
	cancel []context.CancelFunc
}

// Manager owns the browser session lifecycle: creation with stealth flags
// and a rotating user agent, rotation after a request-count threshold or an
// explicit detection signal, and guaranteed teardown.
type Manager struct {
	cfg    *config.Config
	logger *utils.Logger

	handle   *Handle
	requests int

	// launch and teardown are swappable so lifecycle logic is testable
	// without a running Chrome.
	launch   func() (*Handle, error)
	teardown func(*Handle) error

	acquires int
	releases int
}

// NewManager creates a session manager for browser-driven adapters.
func NewManager(cfg *config.Config, logger *utils.Logger) *Manager {
	m := &Manager{cfg: cfg, logger: logger}
	m.launch = m.launchChrome
	m.teardown = teardownChrome
	return m
}

// Acquire creates a fresh browser session. It is idempotent: any previous
// handle is torn down first, so repeated calls never leak a browser process.
func (m *Manager) Acquire() (*Handle, error) {
	m.Release()

	h, err := m.launch()
	if err != nil {
		return nil, fmt.Errorf("session: acquire: %w", err)
	}

	m.handle = h
	m.requests = 0
	m.acquires++
	return h, nil
}

// Current returns the live handle, acquiring one if none exists.
func (m *Manager) Current() (*Handle, error) {
	if m.handle != nil {
		return m.handle, nil
	}
	return m.Acquire()
}

// TrackRequest counts one detail-fetch against the rotation threshold and
// rotates the session when the threshold is reached. Returns the handle to
// use for the request.
func (m *Manager) TrackRequest() (*Handle, error) {
	if m.handle != nil && m.cfg.SessionRotationLimit > 0 && m.requests >= m.cfg.SessionRotationLimit {
		m.logger.Info("[session] Rotation limit reached (%d requests) — rotating", m.requests)
		if err := m.Rotate(); err != nil {
			return nil, err
		}
	}

	h, err := m.Current()
	if err != nil {
		return nil, err
	}
	m.requests++
	return h, nil
}

// Rotate tears down the current session and establishes a new one. Called on
// the request-count threshold or an explicit detection signal.
func (m *Manager) Rotate() error {
	_, err := m.Acquire()
	if err != nil {
		return fmt.Errorf("session: rotate: %w", err)
	}
	m.logger.Info("[session] Session rotated")
	return nil
}

// MarkDetected signals that the source appears to have flagged this session;
// the next request will run on a fresh one.
func (m *Manager) MarkDetected() {
	m.logger.Warn("[session] Detection suspected — scheduling rotation")
	m.requests = m.cfg.SessionRotationLimit
}

// Release tears down the current handle if any. Teardown failures are
// logged, never propagated: they must not block process exit.
func (m *Manager) Release() {
	if m.handle == nil {
		return
	}
	if err := m.teardown(m.handle); err != nil {
		m.logger.Warn("[session] Teardown error (ignored): %v", err)
	}
	m.handle = nil
	m.releases++
}

// Counts reports how many acquire and release cycles have run. Used by
// rotation accounting and tests.
func (m *Manager) Counts() (acquires, releases int) {
	return m.acquires, m.releases
}

// AwaitChallengeResolution polls the page for known challenge markers until
// they clear or the timeout elapses. Resolution is best-effort: on timeout
// the pipeline proceeds anyway rather than stalling.
func (m *Manager) AwaitChallengeResolution(tab context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	detected := false

	for time.Now().Before(deadline) {
		var title, location string
		checkCtx, cancel := context.WithTimeout(tab, 5*time.Second)
		err := chromedp.Run(checkCtx,
			chromedp.Title(&title),
			chromedp.Location(&location),
		)
		cancel()
		if err != nil {
			return false
		}

		if !hasChallengeMarker(title) && !hasChallengeMarker(location) {
			if detected {
				m.logger.Info("[session] Challenge resolved")
				time.Sleep(2 * time.Second)
			}
			return true
		}

		if !detected {
			m.logger.Warn("[session] Challenge page detected — waiting for resolution")
			detected = true
		}
		time.Sleep(time.Second)
	}

	m.logger.Warn("[session] Challenge wait timed out — proceeding anyway")
	return false
}

func hasChallengeMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// launchChrome starts a stealth-configured Chrome and opens one tab.
func (m *Manager) launchChrome() (*Handle, error) {
	ua := browser.Computer()
	if ua == "" {
		ua = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
	)
	if bin := findChromeBinary(m.cfg.ChromeBin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	// Materialize the browser process now so failures surface here, not on
	// the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	m.logger.Info("[session] Browser session started (ua: %.50s…)", ua)
	return &Handle{
		Tab:    tabCtx,
		cancel: []context.CancelFunc{cancelTab, cancelAlloc},
	}, nil
}

func teardownChrome(h *Handle) error {
	_ = chromedp.Cancel(h.Tab)
	for _, cancel := range h.cancel {
		cancel()
	}
	return nil
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
