// Package storygraph drives the StoryGraph web UI: login, search, and
// the mutation surface (status, progress, read dates) used by the
// reconciler. It owns selectors and DOM mechanics only; sequencing,
// retries and escalation live in the sync package.
package storygraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jtara/storygraph-sync/internal/browser"
	"github.com/jtara/storygraph-sync/internal/logger"
)

const (
	baseURL   = "https://app.thestorygraph.com"
	signInURL = baseURL + "/users/sign_in"
	browseURL = baseURL + "/browse"
)

// ErrProgressFormUnavailable means the progress-editing surface is not
// exposed on the current book page. StoryGraph only shows it for
// in-progress items, so the reconciler escalates by forcing the status
// first.
var ErrProgressFormUnavailable = errors.New("progress editing surface not available")

// Credentials is the StoryGraph login pair for one profile.
type Credentials struct {
	Email    string
	Password string
}

// Client is the browser-backed StoryGraph collaborator.
type Client struct {
	session    *browser.Session
	maxResults int
	log        *logger.Logger
}

// NewClient wires a client onto an existing browser session.
func NewClient(session *browser.Session, maxResults int, log *logger.Logger) *Client {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Client{
		session:    session,
		maxResults: maxResults,
		log:        log,
	}
}

// EnsureAuthenticated confirms a logged-in StoryGraph session, logging
// in with the credentials when the sign-in form is presented. A profile
// whose browser user-data dir still holds a valid session skips the
// form entirely.
func (c *Client) EnsureAuthenticated(creds Credentials) error {
	if err := c.session.Run("storygraph sign-in page",
		chromedp.Navigate(signInURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to open StoryGraph sign-in page: %w", err)
	}

	var loginFormPresent bool
	if err := c.session.Run("storygraph login detection",
		chromedp.Evaluate(`document.querySelector('form#new_user input[name="user[email]"]') !== null`, &loginFormPresent),
	); err != nil {
		return fmt.Errorf("failed to detect StoryGraph login state: %w", err)
	}

	if !loginFormPresent {
		c.log.Info("Existing StoryGraph session detected, skipping login", nil)
		return nil
	}

	if creds.Email == "" || creds.Password == "" {
		return &browser.AuthenticationError{
			Service:     "StoryGraph",
			Reason:      "no stored session and no credentials supplied",
			Remediation: "set STORYGRAPH_EMAIL and STORYGRAPH_PASSWORD (or storygraph.email/password in the config file)",
		}
	}

	c.log.Info("Login required, submitting StoryGraph credentials", map[string]interface{}{
		"email": creds.Email,
	})

	if err := c.session.Run("storygraph login",
		chromedp.WaitVisible(`input[name="user[email]"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="user[email]"]`, creds.Email, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="user[password]"]`, creds.Password, chromedp.ByQuery),
		chromedp.Click(`form#new_user input[type="submit"], form#new_user button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return &browser.AuthenticationError{
			Service:     "StoryGraph",
			Reason:      err.Error(),
			Remediation: "verify STORYGRAPH_EMAIL and STORYGRAPH_PASSWORD, then retry",
		}
	}

	// Login failed if StoryGraph bounced us back to the form.
	var stillOnForm bool
	if err := c.session.Run("storygraph login verification",
		chromedp.Evaluate(`document.querySelector('form#new_user') !== null`, &stillOnForm),
	); err != nil {
		return fmt.Errorf("failed to verify StoryGraph login: %w", err)
	}
	if stillOnForm {
		return &browser.AuthenticationError{
			Service:     "StoryGraph",
			Reason:      "credentials rejected",
			Remediation: "verify STORYGRAPH_EMAIL and STORYGRAPH_PASSWORD, then retry",
		}
	}

	c.log.Info("StoryGraph login successful", nil)
	return nil
}

// settle gives StoryGraph's frontend a beat to apply a mutation before
// the next read; several of its transitions expose nothing waitable.
func (c *Client) settle() {
	c.session.Sleep(1 * time.Second)
}
