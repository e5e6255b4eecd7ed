package crawler

import (
	"context"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/pkg/errors"
)

const maxContentRunes = 2000

// PageFetcher downloads a page and returns its UTF-8 body
type PageFetcher interface {
	FetchWithRandomHeaders(ctx context.Context, provider, url string) (io.Reader, error)
}

// IDExtractorFunc defines the function signature for extracting an ID from a URL
type IDExtractorFunc func(string) (string, error)

// CustomElementHandlerFunc defines a function to customize extraction logic for elements
type CustomElementHandlerFunc func(*goquery.Selection) string

// ElementRemoval defines elements to remove from a selection before extracting text
type ElementRemoval struct {
	Selector    string // Selector to find elements to remove
	ApplyToPath string // The path to apply this to (e.g., "title", "postedAt")
}

// Selectors contains CSS selectors for various elements in the page
type Selectors struct {
	DealList    string
	Title       string
	Link        string
	Price       string
	Thumbnail   string
	PostedAt    string
	Category    string
	Views       string
	Likes       string
	Comments    string
	SoldOut     string // matched against the row itself or any descendant
	NextPage    string // when set, HasMore requires a match
	PriceRegex  string
	ThumbRegex  string
	ClassFilter string
}

// DetailSelectors locate the body of a single post
type DetailSelectors struct {
	Content string
	Image   string
}

// SiteConfig describes how to read one board's list pages
type SiteConfig struct {
	Name    string
	BaseURL string
	ListURL string
	// PageParam is the query parameter carrying the page number. Empty means
	// the board has a single page.
	PageParam string
	// PageOffset is added to the 1-based page number (0-based boards use -1)
	PageOffset     int
	NewestFirst    bool
	Selectors      Selectors
	Detail         *DetailSelectors
	IDExtractor    IDExtractorFunc
	Handlers       map[string]CustomElementHandlerFunc
	RemoveElements []ElementRemoval
}

// HTMLAdapter is a selector-driven Adapter for board-style deal listings
type HTMLAdapter struct {
	cfg        SiteConfig
	fetcher    PageFetcher
	base       *url.URL
	priceRegex *regexp.Regexp
	thumbRegex *regexp.Regexp
}

// NewHTMLAdapter creates an adapter for cfg
func NewHTMLAdapter(cfg SiteConfig, fetcher PageFetcher) (*HTMLAdapter, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.NewConfiguration("invalid base URL for "+cfg.Name, err)
	}
	if _, err := url.Parse(cfg.ListURL); err != nil {
		return nil, errors.NewConfiguration("invalid list URL for "+cfg.Name, err)
	}

	a := &HTMLAdapter{cfg: cfg, fetcher: fetcher, base: base}
	if cfg.Selectors.PriceRegex != "" {
		if a.priceRegex, err = regexp.Compile(cfg.Selectors.PriceRegex); err != nil {
			return nil, errors.NewConfiguration("invalid price regex for "+cfg.Name, err)
		}
	}
	if cfg.Selectors.ThumbRegex != "" {
		if a.thumbRegex, err = regexp.Compile(cfg.Selectors.ThumbRegex); err != nil {
			return nil, errors.NewConfiguration("invalid thumbnail regex for "+cfg.Name, err)
		}
	}
	return a, nil
}

// Source wraps the adapter into a registrable Source
func (a *HTMLAdapter) Source() Source {
	src := Source{Name: a.cfg.Name, Adapter: a, NewestFirst: a.cfg.NewestFirst}
	if a.cfg.Detail != nil {
		src.Detail = a
	}
	return src
}

// PageURL returns the list URL for a 1-based page number
func (a *HTMLAdapter) PageURL(page int) string {
	if a.cfg.PageParam == "" {
		return a.cfg.ListURL
	}
	u, _ := url.Parse(a.cfg.ListURL)
	q := u.Query()
	q.Set(a.cfg.PageParam, strconv.Itoa(page+a.cfg.PageOffset))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage fetches and parses one list page
func (a *HTMLAdapter) FetchPage(ctx context.Context, page int) (Page, error) {
	if a.cfg.PageParam == "" && page > 1 {
		return Page{}, nil
	}

	body, err := a.fetcher.FetchWithRandomHeaders(ctx, a.cfg.Name, a.PageURL(page))
	if err != nil {
		return Page{}, err
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Page{}, errors.NewParsing(a.cfg.Name, "HTML parse error", err).WithPage(page)
	}

	var records []deal.RawRecord
	doc.Find(a.cfg.Selectors.DealList).Each(func(_ int, s *goquery.Selection) {
		if raw, ok := a.processRow(s); ok {
			records = append(records, raw)
		}
	})

	hasMore := a.cfg.PageParam != "" && len(records) > 0
	if hasMore && a.cfg.Selectors.NextPage != "" {
		hasMore = doc.Find(a.cfg.Selectors.NextPage).Length() > 0
	}
	return Page{Records: records, HasMore: hasMore}, nil
}

// FetchDetail opens the post behind raw and adds its content and, when the
// list row had none, an image.
func (a *HTMLAdapter) FetchDetail(ctx context.Context, raw deal.RawRecord) (deal.RawRecord, error) {
	link, _ := raw.Fields["originalUrl"].(string)
	if a.cfg.Detail == nil || link == "" {
		return raw, nil
	}

	body, err := a.fetcher.FetchWithRandomHeaders(ctx, a.cfg.Name, link)
	if err != nil {
		return raw, err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return raw, errors.NewParsing(a.cfg.Name, "detail HTML parse error", err)
	}

	out := raw.Clone()
	if a.cfg.Detail.Content != "" {
		content := cleanSpaces(doc.Find(a.cfg.Detail.Content).First().Text())
		if utf8.RuneCountInString(content) > maxContentRunes {
			content = string([]rune(content)[:maxContentRunes])
		}
		if content != "" {
			out.Fields["content"] = content
		}
	}
	if img, _ := out.Fields["imageUrl"].(string); img == "" && a.cfg.Detail.Image != "" {
		if src := imageSource(doc.Find(a.cfg.Detail.Image).First()); src != "" {
			out.Fields["imageUrl"] = a.ResolveURL(src)
		}
	}
	return out, nil
}

// processRow turns one list row into a record. Rows without a title or
// link are layout rows and are skipped. A row whose id cannot be extracted
// is still returned so the normalizer counts it as malformed.
func (a *HTMLAdapter) processRow(s *goquery.Selection) (deal.RawRecord, bool) {
	sel := a.cfg.Selectors
	if sel.ClassFilter != "" && s.HasClass(sel.ClassFilter) {
		return deal.RawRecord{}, false
	}

	title := a.title(s)
	if title == "" {
		return deal.RawRecord{}, false
	}

	link, exists := s.Find(sel.Link).First().Attr("href")
	if !exists || strings.TrimSpace(link) == "" {
		return deal.RawRecord{}, false
	}
	link = a.ResolveURL(strings.TrimSpace(link))

	var id string
	if a.cfg.IDExtractor != nil {
		if extracted, err := a.cfg.IDExtractor(link); err == nil {
			id = strings.TrimSpace(extracted)
		}
	}

	fields := map[string]any{
		"title":       title,
		"originalUrl": link,
	}

	price := a.processElement(s, "price", sel.Price)
	if price == "" && a.priceRegex != nil {
		fields["title"], price = a.ExtractPrice(title)
	}
	if price != "" {
		fields["price"] = price
	}
	if thumb := a.thumbnail(s); thumb != "" {
		fields["imageUrl"] = thumb
	}
	for key, selector := range map[string]string{
		"postedAt":     sel.PostedAt,
		"category":     sel.Category,
		"viewCount":    sel.Views,
		"likeCount":    sel.Likes,
		"commentCount": sel.Comments,
	} {
		if v := a.processElement(s, key, selector); v != "" {
			fields[key] = v
		}
	}
	if sel.SoldOut != "" && (s.Is(sel.SoldOut) || s.Find(sel.SoldOut).Length() > 0) {
		fields["soldOut"] = true
	}

	return deal.RawRecord{Source: a.cfg.Name, NativeID: id, Fields: fields}, true
}

func (a *HTMLAdapter) title(s *goquery.Selection) string {
	if handler, ok := a.cfg.Handlers["title"]; ok && handler != nil {
		return cleanSpaces(handler(s))
	}

	titleSel := s.Find(a.cfg.Selectors.Title).First()
	if titleSel.Length() == 0 {
		return ""
	}
	clean := a.cleanSelection(titleSel, "title")
	if attr, ok := clean.Attr("title"); ok && strings.TrimSpace(attr) != "" {
		return cleanSpaces(attr)
	}
	return cleanSpaces(clean.Text())
}

// processElement extracts text from an element using custom handlers or default method
func (a *HTMLAdapter) processElement(s *goquery.Selection, path, selector string) string {
	if handler, ok := a.cfg.Handlers[path]; ok && handler != nil {
		return cleanSpaces(handler(s))
	}
	if selector == "" {
		return ""
	}

	elementSel := s.Find(selector).First()
	if elementSel.Length() == 0 {
		return ""
	}
	return cleanSpaces(a.cleanSelection(elementSel, path).Text())
}

// cleanSelection removes configured elements from a copy of sel
func (a *HTMLAdapter) cleanSelection(sel *goquery.Selection, path string) *goquery.Selection {
	clone := sel.Clone()
	for _, removal := range a.cfg.RemoveElements {
		if removal.ApplyToPath == path {
			clone.Find(removal.Selector).Remove()
		}
	}
	return clone
}

func (a *HTMLAdapter) thumbnail(s *goquery.Selection) string {
	if a.cfg.Selectors.Thumbnail == "" {
		return ""
	}
	thumbSel := s.Find(a.cfg.Selectors.Thumbnail).First()
	if thumbSel.Length() == 0 {
		return ""
	}
	if src := imageSource(thumbSel); src != "" {
		return a.ResolveURL(src)
	}
	if style, ok := thumbSel.Attr("style"); ok && a.thumbRegex != nil {
		if m := a.thumbRegex.FindStringSubmatch(style); len(m) > 1 && m[1] != "" {
			return a.ResolveURL(m[1])
		}
	}
	return ""
}

// ExtractPrice removes the price matched by the site's price regex from the
// title and returns both parts.
func (a *HTMLAdapter) ExtractPrice(title string) (string, string) {
	if a.priceRegex == nil {
		return title, ""
	}
	m := a.priceRegex.FindStringSubmatchIndex(title)
	if m == nil {
		return title, ""
	}

	price := title[m[0]:m[1]]
	if len(m) >= 4 && m[2] >= 0 {
		price = title[m[2]:m[3]]
	}
	cleaned := strings.TrimSpace(title[:m[0]] + title[m[1]:])
	return cleaned, strings.TrimSpace(price)
}

// ResolveURL resolves href against the site's base URL
func (a *HTMLAdapter) ResolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return a.base.ResolveReference(ref).String()
}

func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func cleanSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
