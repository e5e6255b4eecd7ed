package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/dealmungchi/dealcrawler/pkg/errors"
)

// HTTP header configurations
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Safari/605.1.15",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.naver.com/",
		"https://www.daum.net/",
	}

	rateLimitStatuses = []int{http.StatusTooManyRequests, 430}
)

// Fetcher downloads pages with browser-like headers and hands back UTF-8
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets a 10 second timeout client.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{client: client}
}

// FetchWithRandomHeaders sends an HTTP GET request with randomized headers,
// converts the response body to UTF-8 (if needed), and returns it as an io.Reader.
//
// Failures come back as *errors.CrawlerError tagged for provider. Transport
// failures and 5xx responses are transient; rate limiting, auth failures and
// other 4xx responses are permanent.
func (f *Fetcher) FetchWithRandomHeaders(ctx context.Context, provider, url string) (io.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewPermanent(errors.ErrorTypeConfiguration, provider, "failed to create request", err)
	}

	// Set browser-like headers
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", referers[rand.IntN(len(referers))])
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewNetwork(provider, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	if err := statusError(provider, url, resp); err != nil {
		return nil, err
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetwork(provider, "failed to read response body", err)
	}

	return toUTF8(bodyBytes, resp.Header.Get("Content-Type"))
}

func statusError(provider, url string, resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		return nil
	case slices.Contains(rateLimitStatuses, code):
		return errors.NewRateLimit(provider, parseRetryAfter(resp.Header.Get("Retry-After")))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.NewAuth(provider, fmt.Sprintf("fetch %s: status %d", url, code))
	case code == http.StatusNotFound || code == http.StatusGone:
		return errors.NewNotFound(provider, fmt.Sprintf("fetch %s: status %d", url, code))
	case code >= 500:
		return errors.NewNetwork(provider, fmt.Sprintf("fetch %s unexpected status code: %d", url, code), nil)
	default:
		return errors.NewPermanent(errors.ErrorTypeNetwork, provider, fmt.Sprintf("fetch %s unexpected status code: %d", url, code), nil)
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at).Round(time.Second)
	}
	return 0
}

// toUTF8 decodes body using the charset from the Content-Type header or the
// document itself.
func toUTF8(body []byte, contentType string) (io.Reader, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if strings.EqualFold(name, "utf-8") {
		return bytes.NewReader(body), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, encoding.NewDecoder().Reader(bytes.NewReader(body))); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}
	return &buf, nil
}
