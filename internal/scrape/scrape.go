// Package scrape fetches a company website and extracts the metadata used to seed
// competitor discovery and prompt generation.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"visibility-backend/internal/visibility"
)

const (
	defaultTimeout  = 15 * time.Second
	maxBodyBytes    = 4 << 20
	maxSummaryRunes = 4000
	userAgent       = "visibility-backend/1.0 (+brand visibility analysis)"
)

var (
	ErrInvalidURL = errors.New("invalid company url")
	ErrFetch      = errors.New("fetch company website")

	excessiveLinesRE = regexp.MustCompile(`\n{3,}`)
)

// Scraper returns structured metadata for a company URL.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (visibility.CompanyMetadata, error)
}

// HTTPScraper fetches pages over HTTP.
type HTTPScraper struct {
	client    *http.Client
	converter *md.Converter
}

// NewHTTPScraper builds a scraper with the given request timeout.
func NewHTTPScraper(timeout time.Duration) *HTTPScraper {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTTPScraper{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		converter: converter,
	}
}

// NormalizeURL validates rawURL and adds an https scheme when none is given.
func NormalizeURL(rawURL string) (*url.URL, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil, ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Fragment = ""
	return u, nil
}

// Scrape implements Scraper.
func (s *HTTPScraper) Scrape(ctx context.Context, rawURL string) (visibility.CompanyMetadata, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return visibility.CompanyMetadata{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return visibility.CompanyMetadata{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return visibility.CompanyMetadata{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return visibility.CompanyMetadata{}, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return visibility.CompanyMetadata{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return s.Parse(body, u)
}

// Parse extracts metadata from an HTML document fetched from pageURL.
func (s *HTTPScraper) Parse(body []byte, pageURL *url.URL) (visibility.CompanyMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return visibility.CompanyMetadata{}, fmt.Errorf("parse html: %w", err)
	}

	meta := visibility.CompanyMetadata{
		Name:        firstNonEmpty(metaContent(doc, "og:site_name"), metaContent(doc, "application-name")),
		Description: firstNonEmpty(metaContent(doc, "description"), metaContent(doc, "og:description")),
		Keywords:    splitKeywords(metaContent(doc, "keywords")),
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	article, rerr := readability.FromReader(bytes.NewReader(body), pageURL)
	if rerr == nil {
		if title == "" {
			title = strings.TrimSpace(article.Title)
		}
		if meta.Description == "" {
			meta.Description = firstSentence(strings.TrimSpace(article.TextContent))
		}
	}
	if meta.Name == "" {
		meta.Name = nameFromTitle(title)
	}

	summary, err := s.summary(doc)
	if err == nil {
		meta.Summary = summary
	}
	if meta.Summary == "" && rerr == nil {
		meta.Summary = truncateRunes(strings.TrimSpace(article.TextContent), maxSummaryRunes)
	}
	return meta, nil
}

// summary renders the main content area as markdown.
func (s *HTTPScraper) summary(doc *goquery.Document) (string, error) {
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()
	sel := doc.Find("main").First()
	if sel.Length() == 0 {
		sel = doc.Find("article").First()
	}
	if sel.Length() == 0 {
		sel = doc.Find("body").First()
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", err
	}
	out, err := s.converter.ConvertString(html)
	if err != nil {
		return "", err
	}
	out = excessiveLinesRE.ReplaceAllString(strings.TrimSpace(out), "\n\n")
	return truncateRunes(out, maxSummaryRunes), nil
}

func metaContent(doc *goquery.Document, name string) string {
	sel := doc.Find(fmt.Sprintf(`meta[name=%q], meta[property=%q]`, name, name)).First()
	v, _ := sel.Attr("content")
	return strings.TrimSpace(v)
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
		if len(out) == 10 {
			break
		}
	}
	return out
}

func nameFromTitle(title string) string {
	for _, sep := range []string{" | ", " - ", " – ", " — ", ": "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?\n"); i > 0 {
		return strings.TrimSpace(text[:i+1])
	}
	return truncateRunes(text, 300)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ Scraper = (*HTTPScraper)(nil)
