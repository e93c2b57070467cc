// Package goodreads scrapes the read shelf and per-review reading
// timelines from the Goodreads web UI.
package goodreads

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jtara/storygraph-sync/internal/browser"
	"github.com/jtara/storygraph-sync/internal/logger"
	"github.com/jtara/storygraph-sync/internal/models"
)

// readShelfURL forces sorting by date read, most recent first, so state
// seeding by cutoff walks books in a stable order.
const readShelfURL = "https://www.goodreads.com/review/list?shelf=read&sort=date_read&order=d"

// Credentials is the Goodreads login pair for one profile.
type Credentials struct {
	Email    string
	Password string
}

// Scraper is the browser-backed Goodreads collaborator.
type Scraper struct {
	session *browser.Session
	log     *logger.Logger
}

// NewScraper wires a scraper onto an existing browser session.
func NewScraper(session *browser.Session, log *logger.Logger) *Scraper {
	return &Scraper{session: session, log: log}
}

// EnsureAuthenticated confirms a logged-in Goodreads session, signing in
// with email/password when needed. A persisted browser profile normally
// short-circuits this.
func (s *Scraper) EnsureAuthenticated(creds Credentials) error {
	if err := s.session.Run("goodreads home",
		chromedp.Navigate("https://www.goodreads.com/"),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to open Goodreads: %w", err)
	}

	var loggedIn bool
	if err := s.session.Run("goodreads login detection",
		chromedp.Evaluate(`document.querySelector('.siteHeader__topLevelItem--profile') !== null`, &loggedIn),
	); err != nil {
		return fmt.Errorf("failed to detect Goodreads login state: %w", err)
	}
	if loggedIn {
		s.log.Info("Existing Goodreads session detected, skipping login", nil)
		return nil
	}

	if creds.Email == "" || creds.Password == "" {
		return &browser.AuthenticationError{
			Service:     "Goodreads",
			Reason:      "no stored session and no credentials supplied",
			Remediation: "set GOODREADS_EMAIL and GOODREADS_PASSWORD (or goodreads.email/password in the config file)",
		}
	}

	s.log.Info("Login required, submitting Goodreads credentials", map[string]interface{}{
		"email": creds.Email,
	})

	// The email/password form hides behind the Amazon SSO options and
	// lives on a redirected sign-in page.
	if err := s.session.Run("goodreads login",
		chromedp.Navigate("https://www.goodreads.com/user/sign_in"),
		chromedp.WaitVisible(`//button[contains(., "Sign in with email")]`, chromedp.BySearch),
		chromedp.Click(`//button[contains(., "Sign in with email")]`, chromedp.BySearch),
		chromedp.WaitVisible(`input[name="email"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="email"]`, creds.Email, chromedp.ByQuery),
		chromedp.WaitVisible(`input[name="password"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, creds.Password, chromedp.ByQuery),
		chromedp.Click(`//input[@type="submit" and (@name="signIn" or @id="signInSubmit")]`, chromedp.BySearch),
		chromedp.WaitVisible(`.siteHeader__topLevelItem--profile`, chromedp.ByQuery),
	); err != nil {
		return &browser.AuthenticationError{
			Service:     "Goodreads",
			Reason:      err.Error(),
			Remediation: "verify GOODREADS_EMAIL and GOODREADS_PASSWORD, then retry",
		}
	}

	s.log.Info("Goodreads login successful", nil)
	return nil
}

// extractShelfJS pulls review ID, title, author and book URL out of
// every shelf row.
const extractShelfJS = `
(() => {
	const books = [];
	for (const row of document.querySelectorAll('tr.bookalike.review')) {
		const reviewAttr = row.getAttribute('id');
		if (!reviewAttr) continue;
		const reviewId = reviewAttr.replace('review_', '');
		const titleLink = row.querySelector('td.field.title a');
		if (!titleLink) continue;
		const href = titleLink.getAttribute('href');
		if (!href || !href.includes('/book/show/')) continue;
		const bookId = href.split('/book/show/')[1].split('-')[0];
		const authorLink = row.querySelector('td.field.author a');
		books.push({
			id: bookId,
			review_id: reviewId,
			title: titleLink.innerText.trim(),
			author: authorLink ? authorLink.innerText.trim() : '',
			url: 'https://www.goodreads.com' + href,
		});
	}
	return books;
})()`

type rawShelfRow struct {
	ID       string `json:"id"`
	ReviewID string `json:"review_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	URL      string `json:"url"`
}

// ReadBooks scrapes the read shelf, sorted by date read descending.
// The returned records carry the review ID (the idempotence key of the
// read flow) in their ID field; dates are filled in later by
// ReviewDetails.
func (s *Scraper) ReadBooks() ([]models.BookRecord, error) {
	if err := s.session.Run("goodreads read shelf",
		chromedp.Navigate(readShelfURL),
		chromedp.WaitVisible(`tr.bookalike.review`, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to load Goodreads read shelf: %w", err)
	}

	var rows []rawShelfRow
	if err := s.session.Run("goodreads shelf extraction",
		chromedp.Evaluate(extractShelfJS, &rows),
	); err != nil {
		return nil, fmt.Errorf("failed to extract read shelf rows: %w", err)
	}

	books := make([]models.BookRecord, 0, len(rows))
	for _, row := range rows {
		record, err := models.NewBookRecord(row.ReviewID, row.Title, row.Author)
		if err != nil {
			s.log.Warn("Dropping shelf row without title", map[string]interface{}{
				"review_id": row.ReviewID,
			})
			continue
		}
		record.URL = row.URL
		record.Status = "read"
		books = append(books, record)
	}

	s.log.Info("Read shelf scraped", map[string]interface{}{
		"count": len(books),
	})
	return books, nil
}

// timelineDateRe matches Goodreads' long-form dates inside the reading
// timeline, e.g. "January 11, 2026".
var timelineDateRe = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}`)

// ReviewDetails loads one review page and extracts the started/finished
// dates from the reading timeline. A missing timeline is not an error:
// the record comes back with empty dates and the caller decides.
func (s *Scraper) ReviewDetails(record models.BookRecord) (models.BookRecord, error) {
	reviewURL := fmt.Sprintf("https://www.goodreads.com/review/show/%s", record.ID)

	if err := s.session.Run("goodreads review page",
		chromedp.Navigate(reviewURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return record, fmt.Errorf("failed to open review %s: %w", record.ID, err)
	}

	// The timeline lazy-loads; nudge the page and give it a beat.
	if err := s.session.Run("goodreads review scroll",
		chromedp.Evaluate(`window.scrollBy(0, 2000); true`, nil),
	); err != nil {
		return record, fmt.Errorf("failed to scroll review %s: %w", record.ID, err)
	}
	s.session.Sleep(1500 * time.Millisecond)

	if err := s.session.RunWithTimeout("goodreads reading timeline", 20*time.Second,
		chromedp.WaitVisible(`.readingTimeline__row`, chromedp.ByQuery),
	); err != nil {
		s.log.Warn("Reading timeline not visible, skipping dates", map[string]interface{}{
			"review_id": record.ID,
			"url":       reviewURL,
		})
		return record, nil
	}

	var rows []string
	if err := s.session.Run("goodreads timeline extraction",
		chromedp.Evaluate(`
			Array.from(document.querySelectorAll('.readingTimeline__row'))
				.map(r => r.innerText.trim())
		`, &rows),
	); err != nil {
		return record, fmt.Errorf("failed to extract reading timeline for review %s: %w", record.ID, err)
	}

	for _, text := range rows {
		switch {
		case strings.Contains(text, "Started Reading"):
			if d := extractTimelineDate(text); d != "" {
				record.DateStarted = d
			}
		case strings.Contains(text, "Finished Reading"):
			if d := extractTimelineDate(text); d != "" {
				record.DateFinished = d
			}
		}
	}

	return record, nil
}

// extractTimelineDate converts "January 11, 2026" to "2026-01-11".
// Returns "" when no date is present.
func extractTimelineDate(text string) string {
	match := timelineDateRe.FindString(text)
	if match == "" {
		return ""
	}
	t, err := time.Parse("January 2, 2006", match)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
