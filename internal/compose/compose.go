// Package compose drafts articles from web pages.
package compose

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"feedsync/internal/api"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	maxExcerpt     = 280
)

// Scraper defines the interface for downloading web pages.
// This allows us to mock the "Download" step in tests.
type Scraper interface {
	Scrape(pageURL string, timeout time.Duration) (*readability.Article, error)
}

// DefaultScraper is the real implementation that uses the internet
type DefaultScraper struct{}

func (s *DefaultScraper) Scrape(pageURL string, timeout time.Duration) (*readability.Article, error) {
	art, err := readability.FromURL(pageURL, timeout)
	return &art, err
}

type Composer struct {
	scraper Scraper
	logger  *zap.Logger
	timeout time.Duration
}

// New creates a composer that downloads pages with the DefaultScraper.
func New(logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		scraper: &DefaultScraper{},
		logger:  logger,
		timeout: defaultTimeout,
	}
}

// FromURL builds article params sharing the page at rawURL: its title, a
// short excerpt and the link itself.
func (c *Composer) FromURL(rawURL string) (api.ArticleParams, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return api.ArticleParams{}, &api.ValidationError{Field: "url", Message: "url must be an absolute http(s) url"}
	}

	logger := c.logger.With(zap.String("url", rawURL))
	logger.Debug("downloading")

	page, err := c.scraper.Scrape(rawURL, c.timeout)
	if err != nil {
		return api.ArticleParams{}, fmt.Errorf("scrape %s: %w", rawURL, err)
	}

	text := Text(page.Title, page.Excerpt, rawURL)
	logger.Debug("composed", zap.String("title", page.Title))
	return api.ArticleParams{Text: text}, nil
}

// Text joins the non-empty parts of a shared link, one per paragraph.
func Text(title, excerpt, link string) string {
	excerpt = strings.TrimSpace(excerpt)
	if r := []rune(excerpt); len(r) > maxExcerpt {
		excerpt = strings.TrimSpace(string(r[:maxExcerpt-3])) + "..."
	}

	var parts []string
	for _, p := range []string{strings.TrimSpace(title), excerpt, link} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}
