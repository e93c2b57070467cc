package storygraph

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jtara/storygraph-sync/internal/models"
)

// NavigateToBook opens a matched book's page and waits for the preview
// pane that anchors every later mutation.
func (c *Client) NavigateToBook(book models.SearchResult) error {
	if err := c.session.Run("storygraph book navigation",
		chromedp.Navigate(book.URL),
		chromedp.WaitVisible(`#storygraph-preview-pane-desktop`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to open book page for %q: %w", book.Title, err)
	}

	c.log.Info("Book page loaded", map[string]interface{}{
		"title":  book.Title,
		"author": book.Author,
	})
	return nil
}

// SetStatus sets the reading status through the status dropdown. When
// the requested status is not among the offered options the precondition
// is assumed to already hold and the call is an idempotent no-op;
// StoryGraph hides the current status from its own dropdown.
func (c *Client) SetStatus(status string) error {
	status = strings.ToLower(strings.TrimSpace(status))

	if err := c.session.Run("storygraph status dropdown",
		chromedp.Click(`button.expand-dropdown-button`, chromedp.ByQuery),
		chromedp.WaitVisible(`div.read-status-dropdown-content`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to open status dropdown: %w", err)
	}

	var options []string
	if err := c.session.Run("storygraph status options",
		chromedp.Evaluate(`
			Array.from(document.querySelectorAll('div.read-status-dropdown-content button'))
				.map(b => b.innerText.trim().toLowerCase())
		`, &options),
	); err != nil {
		return fmt.Errorf("failed to list status options: %w", err)
	}

	c.log.Debug("Status options available", map[string]interface{}{
		"options": options,
	})

	for _, option := range options {
		if option == status {
			clickJS := fmt.Sprintf(`
				(() => {
					for (const b of document.querySelectorAll('div.read-status-dropdown-content button')) {
						if (b.innerText.trim().toLowerCase() === %q) { b.click(); return true; }
					}
					return false;
				})()
			`, status)
			var clicked bool
			if err := c.session.Run("storygraph status click",
				chromedp.Evaluate(clickJS, &clicked),
			); err != nil || !clicked {
				return fmt.Errorf("failed to select status %q: %v", status, err)
			}
			c.settle()
			c.log.Info("Reading status set", map[string]interface{}{
				"status": status,
			})
			return nil
		}
	}

	c.log.Info("Status option not offered, assuming already set", map[string]interface{}{
		"status": status,
	})
	return nil
}

// OpenProgressForm clicks the edit-progress affordance and waits for the
// tracking form. Returns ErrProgressFormUnavailable when the affordance
// is absent, which the reconciler treats as its escalation trigger.
func (c *Client) OpenProgressForm() error {
	var hasButton bool
	if err := c.session.Run("storygraph progress button detection",
		chromedp.Evaluate(`document.querySelector('button.edit-progress, div.progress-bar.edit-progress') !== null`, &hasButton),
	); err != nil {
		return fmt.Errorf("failed to look for progress button: %w", err)
	}
	if !hasButton {
		return ErrProgressFormUnavailable
	}

	if err := c.session.RunWithTimeout("storygraph progress form", 10*time.Second,
		chromedp.Click(`button.edit-progress, div.progress-bar.edit-progress`, chromedp.ByQuery),
		chromedp.WaitVisible(`div.progress-tracking-form input.read-status-progress-number`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("progress form did not appear: %w", err)
	}

	return nil
}

// SubmitProgress fills the open progress form with a percentage and
// saves it. Audio-timed forms (minutes input) are switched to
// percentage first: the source-of-truth unit is always percentage.
func (c *Client) SubmitProgress(percent int) error {
	var audioTimed bool
	if err := c.session.Run("storygraph progress mode detection",
		chromedp.Evaluate(`
			(() => {
				const form = document.querySelector('div.progress-tracking-form');
				if (!form) return false;
				const minutes = form.querySelector('input.read-status-progress-minutes');
				return minutes !== null && minutes.offsetParent !== null;
			})()
		`, &audioTimed),
	); err != nil {
		return fmt.Errorf("failed to inspect progress form: %w", err)
	}

	if audioTimed {
		c.log.Info("Audio-timed progress form detected, switching to percentage", nil)
		if err := c.session.Run("storygraph progress mode switch",
			chromedp.SetValue(`div.progress-tracking-form select.read-status-progress-type`, "percentage", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("failed to switch progress form to percentage: %w", err)
		}
		c.session.Sleep(500 * time.Millisecond)
	}

	if err := c.session.Run("storygraph progress submit",
		chromedp.SetValue(`div.progress-tracking-form input.read-status-progress-number`, strconv.Itoa(percent), chromedp.ByQuery),
		chromedp.Click(`div.progress-tracking-form input.progress-tracker-update-button`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to submit progress value: %w", err)
	}

	// The form closing signals the save went through; a hang here is
	// logged but left for verification to catch.
	if err := c.session.RunWithTimeout("storygraph progress form close", 5*time.Second,
		chromedp.WaitNotVisible(`div.progress-tracking-form input.read-status-progress-number`, chromedp.ByQuery),
	); err != nil {
		c.log.Warn("Progress form did not close after save", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.settle()
	return nil
}

// ReadProgress extracts the displayed progress percentage from the
// progress bar. The second return is false when no percentage is shown.
func (c *Client) ReadProgress() (int, bool, error) {
	var raw string
	if err := c.session.Run("storygraph progress readback",
		chromedp.Evaluate(`
			(() => {
				for (const span of document.querySelectorAll('div.progress-bar span')) {
					const text = span.innerText.trim();
					if (text.includes('%')) return text;
				}
				return '';
			})()
		`, &raw),
	); err != nil {
		return 0, false, fmt.Errorf("failed to read progress bar: %w", err)
	}

	raw = strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	if raw == "" {
		return 0, false, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, nil
	}
	return value, true, nil
}
