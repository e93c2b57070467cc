package storygraph

import (
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jtara/storygraph-sync/internal/models"
)

// rawResult mirrors the JSON shape produced by the extraction script.
type rawResult struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// extractResultsJS walks the result panes and returns the top entries,
// deduplicated by (title, author, url). StoryGraph renders desktop and
// mobile panes for the same book, so duplicates are the norm.
const extractResultsJS = `
(max => {
	const seen = new Set();
	const results = [];
	for (const pane of document.querySelectorAll('div.book-pane-content')) {
		const titleLink = pane.querySelector('h3 a[href^="/books/"]');
		if (!titleLink) continue;
		const href = titleLink.getAttribute('href');
		if (!href) continue;
		const title = titleLink.innerText.trim();
		const authorLink = pane.querySelector('h3 a[href^="/authors/"]');
		const author = authorLink ? authorLink.innerText.trim() : '';
		const url = 'https://app.thestorygraph.com' + href;
		const key = title + '|' + author + '|' + url;
		if (seen.has(key)) continue;
		seen.add(key);
		results.push({title, author, url});
		if (results.length >= max) break;
	}
	return results;
})`

// Search runs one query through StoryGraph's browse search and returns
// up to the configured number of unique results in the remote's own
// relevance order.
func (c *Client) Search(query string) ([]models.SearchResult, error) {
	c.log.Info("Searching StoryGraph", map[string]interface{}{
		"query": query,
	})

	if err := c.session.Run("storygraph search",
		chromedp.Navigate(browseURL),
		chromedp.WaitVisible(`input[type=search]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[type=search]`, query+kb.Enter, chromedp.ByQuery),
		chromedp.WaitVisible(`#search-results-for`, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("search for %q failed: %w", query, err)
	}

	// Guard against a stale heading left over from a previous query.
	var headingText string
	if err := c.session.Run("storygraph search heading",
		chromedp.Text(`#search-results-for`, &headingText, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to read search results heading: %w", err)
	}

	var raw []rawResult
	if err := c.session.Run("storygraph result extraction",
		chromedp.Evaluate(fmt.Sprintf("%s(%d)", extractResultsJS, c.maxResults), &raw),
	); err != nil {
		return nil, fmt.Errorf("failed to extract search results for %q: %w", query, err)
	}

	results := make([]models.SearchResult, 0, len(raw))
	for _, r := range raw {
		result, err := models.NewSearchResult(query, r.Title, r.Author, r.URL)
		if err != nil {
			c.log.Debug("Dropping malformed search result", map[string]interface{}{
				"query": query,
				"error": err.Error(),
			})
			continue
		}
		results = append(results, result)
	}

	c.log.Debug("Search results extracted", map[string]interface{}{
		"query":   query,
		"heading": headingText,
		"count":   len(results),
	})

	return results, nil
}
