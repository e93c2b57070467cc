package storygraph

import (
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
)

// SetReadDates opens the read-instance editor on the current book page
// and fills start and/or finish dates (ISO "2006-01-02"; empty means
// leave untouched). The caller treats a failure here as best-effort:
// a book whose status write succeeded is still considered applied.
func (c *Client) SetReadDates(startDate, finishDate string) error {
	if startDate == "" && finishDate == "" {
		return nil
	}

	// React transition after the status change; the edit link is
	// re-rendered and there is nothing earlier to wait on.
	c.settle()

	if err := c.session.RunWithTimeout("storygraph read-dates editor", 20*time.Second,
		chromedp.Click(`a[href*='/edit-read-instance-from-book']`, chromedp.ByQuery),
		chromedp.WaitVisible(`form.edit_read_instance`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to open read dates editor: %w", err)
	}

	c.log.Debug("Read dates editor open", nil)

	if startDate != "" {
		day, month, year, err := splitISODate(startDate)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", startDate, err)
		}
		if err := c.session.Run("storygraph start date",
			chromedp.SetValue(`form.edit_read_instance select[name='read_instance[start_day]']`, day, chromedp.ByQuery),
			chromedp.SetValue(`form.edit_read_instance select[name='read_instance[start_month]']`, month, chromedp.ByQuery),
			chromedp.SetValue(`form.edit_read_instance select[name='read_instance[start_year]']`, year, chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("failed to set start date: %w", err)
		}
	}

	if finishDate != "" {
		day, month, year, err := splitISODate(finishDate)
		if err != nil {
			return fmt.Errorf("invalid finish date %q: %w", finishDate, err)
		}
		if err := c.session.Run("storygraph finish date",
			chromedp.SetValue(`form.edit_read_instance select[name='read_instance[day]']`, day, chromedp.ByQuery),
			chromedp.SetValue(`form.edit_read_instance select[name='read_instance[month]']`, month, chromedp.ByQuery),
			chromedp.SetValue(`form.edit_read_instance select[name='read_instance[year]']`, year, chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("failed to set finish date: %w", err)
		}
	}

	if err := c.session.Run("storygraph read-dates save",
		chromedp.Click(`form.edit_read_instance input[type='submit'][value='Update']`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to save read dates: %w", err)
	}

	c.log.Info("Read dates saved", map[string]interface{}{
		"start":  startDate,
		"finish": finishDate,
	})
	return nil
}

// splitISODate breaks "2026-01-18" into the unpadded day, month and
// year strings the date selects expect ("18", "1", "2026").
func splitISODate(iso string) (day, month, year string, err error) {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return "", "", "", err
	}
	return strconv.Itoa(t.Day()), strconv.Itoa(int(t.Month())), strconv.Itoa(t.Year()), nil
}
