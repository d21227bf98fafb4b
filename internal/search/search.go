// Package search queries the DuckDuckGo instant-answer API and fetches
// short previews of web pages.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"golang.org/x/net/html"

	"github.com/edgard/neogem/internal/config"
	"github.com/edgard/neogem/internal/errs"
)

// ProviderName identifies DuckDuckGo in ProviderError values.
const ProviderName = "duckduckgo"

// maxPageBytes bounds how much of a previewed page is read.
const maxPageBytes = 1 << 20

// ErrBlockedAddress is returned when a previewed link resolves to a
// loopback, private, link-local or otherwise non-public address.
var ErrBlockedAddress = errors.New("address is not publicly routable")

var urlPattern = regexp.MustCompile(`^(https?|ftp)://[^\s/$.?#].[^\s]*$`)

// IsURL reports whether s looks like a single absolute link.
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// Result is one related topic of a keyword search.
type Result struct {
	Text string
	URL  string
}

// Preview is the beginning of a fetched page.
type Preview struct {
	URL     string
	Title   string
	Content string
}

// Searcher is implemented by Client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
	Preview(ctx context.Context, link string) (*Preview, error)
}

// Client implements Searcher.
type Client struct {
	httpClient *http.Client
	// pageClient fetches user-supplied links.
	pageClient   *http.Client
	baseURL      string
	maxResults   int
	previewChars int
	userAgent    string
	log          *slog.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg config.SearchConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	pageClient := &http.Client{Timeout: cfg.Timeout}
	if !cfg.AllowPrivateHosts {
		pageClient.Transport = publicOnlyTransport()
	}
	return &Client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		pageClient:   pageClient,
		baseURL:      cfg.BaseURL,
		maxResults:   cfg.MaxResults,
		previewChars: cfg.PreviewChars,
		userAgent:    cfg.UserAgent,
		log:          log.With("component", "search"),
	}
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Search returns at most MaxResults related topics for query. Grouped
// topics are flattened in order.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search base URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	u.RawQuery = q.Encode()

	resp, err := c.get(ctx, c.httpClient, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errs.NewProviderError(ProviderName, resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	var payload ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errs.NewProviderError(ProviderName, resp.StatusCode, "", fmt.Errorf("invalid response: %w", err))
	}

	results := flattenTopics(payload.RelatedTopics)
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}

	c.log.DebugContext(ctx, "Search completed", "query", query, "results", len(results))
	return results, nil
}

func flattenTopics(topics []ddgTopic) []Result {
	return lo.FlatMap(topics, func(t ddgTopic, _ int) []Result {
		if len(t.Topics) > 0 {
			return flattenTopics(t.Topics)
		}
		if t.Text == "" || t.FirstURL == "" {
			return nil
		}
		return []Result{{Text: t.Text, URL: t.FirstURL}}
	})
}

// Preview fetches link and returns its title and first PreviewChars characters.
// Links resolving to non-public addresses fail with ErrBlockedAddress unless
// private hosts are allowed.
func (c *Client) Preview(ctx context.Context, link string) (*Preview, error) {
	resp, err := c.get(ctx, c.pageClient, link)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.NewProviderError(link, resp.StatusCode, "", nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", link, err)
	}

	page := string(body)
	return &Preview{
		URL:     link,
		Title:   pageTitle(page),
		Content: truncateRunes(page, c.previewChars),
	}, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.NewProviderError(req.URL.Host, 0, "", err)
	}
	return resp, nil
}

// publicOnlyTransport dials only public addresses. The check runs on the
// resolved address, so redirects and DNS answers pointing inward are caught too.
func publicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if !isPublicAddr(ip) {
				return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
			}
			return nil
		},
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would be dialed instead of the target and hide it from Control.
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func isPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() &&
		!ip.IsPrivate() &&
		!sharedAddressSpace.Contains(ip)
}

// pageTitle returns the text of the first <title> element, or "".
func pageTitle(page string) string {
	z := html.NewTokenizer(strings.NewReader(page))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = string(name) == "title"
		case html.TextToken:
			if inTitle {
				return strings.Join(strings.Fields(string(z.Text())), " ")
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// FormatResults renders a keyword search reply.
func FormatResults(query string, results []Result) string {
	lines := lo.Map(results, func(r Result, _ int) string {
		return fmt.Sprintf("- %s (%s)", r.Text, r.URL)
	})
	return fmt.Sprintf("Search results for: %s\n\n%s", query, strings.Join(lines, "\n"))
}

// FormatPreview renders a link preview reply.
func FormatPreview(p *Preview) string {
	if p.Title != "" {
		return fmt.Sprintf("Preview of %s:\n%s\n\n%s", p.URL, p.Title, p.Content)
	}
	return fmt.Sprintf("Preview of %s:\n\n%s", p.URL, p.Content)
}
