// Package browser owns the single Chrome session a run drives. All
// remote interaction is sequential through one page; the session object
// is passed explicitly to each collaborator, never held in a global.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/jtara/storygraph-sync/internal/logger"
)

// DefaultStepTimeout bounds individual waits for elements/navigation.
const DefaultStepTimeout = 30 * time.Second

// userAgent masks the HeadlessChrome token, which both sites treat as a
// bot signal.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Options configures the browser session.
type Options struct {
	// Headless runs Chrome without a visible window.
	Headless bool
	// UserDataDir persists cookies/session per profile between runs.
	// Empty means a throwaway temp profile.
	UserDataDir string
	// StepTimeout bounds each Run call; zero means DefaultStepTimeout.
	StepTimeout time.Duration
}

// Session wraps the chromedp allocator and browser contexts for one run.
type Session struct {
	ctx         context.Context
	cancels     []context.CancelFunc
	stepTimeout time.Duration
	tmpDataDir  string
	log         *logger.Logger
}

// NewSession launches Chrome. The caller must Close the session.
func NewSession(parent context.Context, opts Options, log *logger.Logger) (*Session, error) {
	dataDir := opts.UserDataDir
	tmpDataDir := ""
	if dataDir == "" {
		tmp, err := os.MkdirTemp("", "storygraph-sync-profile-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create browser profile directory: %w", err)
		}
		dataDir = tmp
		tmpDataDir = tmp
	} else if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create browser profile directory %q: %w", dataDir, err)
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.UserDataDir(dataDir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-default-browser-check", true),
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	stepTimeout := opts.StepTimeout
	if stepTimeout == 0 {
		stepTimeout = DefaultStepTimeout
	}

	s := &Session{
		ctx:         browserCtx,
		cancels:     []context.CancelFunc{cancelBrowser, cancelAlloc},
		stepTimeout: stepTimeout,
		tmpDataDir:  tmpDataDir,
		log:         log,
	}

	// Start the browser up front so a missing Chrome binary fails the
	// run immediately instead of on the first navigation.
	if err := chromedp.Run(browserCtx, emulation.SetUserAgentOverride(userAgent)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Debug("Browser session started", map[string]interface{}{
		"headless":      opts.Headless,
		"user_data_dir": dataDir,
	})

	return s, nil
}

// Run executes chromedp actions under the session's step timeout. A
// deadline expiry is returned as a *TimeoutError so callers can treat
// it as a recoverable per-step failure.
func (s *Session) Run(step string, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.stepTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Step: step, Err: err}
		}
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// RunWithTimeout is Run with an explicit per-call bound, for steps whose
// natural wait differs from the session default.
func (s *Session) RunWithTimeout(step string, timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(ctx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Step: step, Err: err}
		}
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// Sleep pauses for UI transitions that expose no waitable element.
func (s *Session) Sleep(d time.Duration) {
	select {
	case <-s.ctx.Done():
	case <-time.After(d):
	}
}

// Close tears down the browser and any throwaway profile directory.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	if s.tmpDataDir != "" {
		_ = os.RemoveAll(s.tmpDataDir)
	}
}
