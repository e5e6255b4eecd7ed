package crawler

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealmungchi/dealcrawler/config"
	"github.com/dealmungchi/dealcrawler/helpers"
	"github.com/dealmungchi/dealcrawler/services/cache"
)

// SiteConfigs returns the built-in board definitions with list URLs taken
// from sites
func SiteConfigs(sites config.Sites) []SiteConfig {
	return []SiteConfig{
		{
			Name:        "ppomppu",
			ListURL:     sites.PpomURL,
			BaseURL:     "https://www.ppomppu.co.kr/zboard/",
			PageParam:   "page",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:   "tr.baseList.bbs_new1",
				Title:      "div.baseList-cover a.baseList-title",
				Link:       "div.baseList-cover a.baseList-title",
				Thumbnail:  "a.baseList-thumb img",
				PostedAt:   "time.baseList-time",
				Category:   "small.baseList-small",
				Views:      "td.baseList-space.baseList-views",
				Comments:   "span.baseList-c",
				SoldOut:    "span.end2, a.end2",
				PriceRegex: `\(([0-9,]+원)[^)]*\)$`,
			},
			Detail: &DetailSelectors{
				Content: "td.board-contents",
				Image:   "td.board-contents img",
			},
			IDExtractor: func(link string) (string, error) {
				return helpers.QueryParam(link, "no")
			},
		},
		{
			Name:        "ppomppu_en",
			ListURL:     sites.PpomEnURL,
			BaseURL:     "https://www.ppomppu.co.kr/zboard/",
			PageParam:   "page",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:   "tr.baseList.bbs_new1",
				Title:      "div.baseList-cover a.baseList-title",
				Link:       "div.baseList-cover a.baseList-title",
				Thumbnail:  "a.baseList-thumb img",
				PostedAt:   "time.baseList-time",
				SoldOut:    "span.end2, a.end2",
				PriceRegex: `\$([\d,.]+)`,
			},
			IDExtractor: func(link string) (string, error) {
				return helpers.QueryParam(link, "no")
			},
		},
		{
			Name:        "ruliweb",
			ListURL:     sites.RuliwebURL,
			BaseURL:     "https://bbs.ruliweb.com",
			PageParam:   "page",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:   "tr.table_body.normal",
				Title:      "td.subject a.subject_link, div.title_wrapper a.subject_link",
				Link:       "td.subject a.subject_link, div.title_wrapper a.subject_link",
				Thumbnail:  "a.baseList-thumb img, a.thumbnail",
				PostedAt:   "div.article_info span.time",
				Likes:      "span.recomd",
				Comments:   "span.num_reply",
				PriceRegex: `\(([\d,]+)\)$`,
				ThumbRegex: `url\((?:['"]?)(.*?)(?:['"]?)\)`,
			},
			IDExtractor: func(link string) (string, error) {
				baseLink := strings.Split(link, "?")[0]
				return helpers.GetSplitPart(baseLink, "/", 7)
			},
		},
		{
			Name:        "clien",
			ListURL:     sites.ClienURL,
			BaseURL:     "https://www.clien.net",
			PageParam:   "po",
			PageOffset:  -1,
			NewestFirst: true,
			Selectors: Selectors{
				DealList:    "div.list_item.symph_row.jirum",
				Title:       "span.list_subject",
				Link:        "a[data-role='list-title-text']",
				Thumbnail:   "div.list_img a.list_thumbnail img",
				PostedAt:    "div.list_time span.time.popover span.timestamp",
				Views:       "div.list_hit span.hit",
				Likes:       "div.list_symph span",
				SoldOut:     "span.icon_info",
				PriceRegex:  `\(([0-9,]+원)\)$`,
				ClassFilter: "blocked",
			},
			Detail: &DetailSelectors{
				Content: "div.post_article",
				Image:   "div.post_article img",
			},
			IDExtractor: func(link string) (string, error) {
				baseLink := strings.Split(link, "?")[0]
				return helpers.GetSplitPart(baseLink, "/", 6)
			},
		},
		{
			Name:        "quasarzone",
			ListURL:     sites.QuasarURL,
			BaseURL:     "https://quasarzone.com",
			PageParam:   "page",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:  "div.market-type-list.market-info-type-list.relative table tbody tr",
				Title:     "div.market-info-list-cont p.tit a.subject-link span.ellipsis-with-reply-cnt",
				Link:      "div.market-info-list-cont p.tit a.subject-link",
				Thumbnail: "div.market-info-list div.thumb-wrap a.thumb img.maxImg",
				PostedAt:  "span.date",
				Price:     "div.market-info-sub p span span.text-orange",
				Category:  "div.market-info-sub p span.category",
				Comments:  "span.ctn-count",
				SoldOut:   "span.label.done",
			},
			Detail: &DetailSelectors{
				Content: "div.view-content",
				Image:   "div.view-content img",
			},
			IDExtractor: func(link string) (string, error) {
				return helpers.GetSplitPart(link, "/", 6)
			},
		},
		{
			Name:        "coolenjoy",
			ListURL:     sites.CoolandjoyURL,
			BaseURL:     "https://coolenjoy.net",
			PageParam:   "page",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:   "ul.na-table li",
				Title:      "a.na-subject",
				Link:       "a.na-subject",
				PostedAt:   "div.float-left.float-md-none.d-md-table-cell.nw-6.nw-md-auto.f-sm.font-weight-normal.py-md-2.pr-md-1",
				PriceRegex: `\(([0-9,]+원)\)$`,
			},
			RemoveElements: []ElementRemoval{
				{Selector: "i", ApplyToPath: "postedAt"},
				{Selector: "span", ApplyToPath: "postedAt"},
			},
			IDExtractor: func(link string) (string, error) {
				return helpers.GetSplitPart(link, "/", 5)
			},
		},
		{
			Name:        "fmkorea",
			ListURL:     sites.FMKoreaURL,
			BaseURL:     "https://www.fmkorea.com",
			PageParam:   "page",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:   "ul li.li",
				Title:      "h3.title a",
				Link:       "h3.title a",
				Thumbnail:  "a img.thumb",
				PostedAt:   "div span.regdate",
				Price:      "div.hotdeal_info span a",
				PriceRegex: `\(([0-9,]+원)\)$`,
			},
			IDExtractor: func(link string) (string, error) {
				return helpers.GetSplitPart(strings.Split(link, "?")[0], "/", 3)
			},
		},
		{
			Name:        "damoang",
			ListURL:     sites.DamoangURL,
			BaseURL:     "https://damoang.net",
			PageParam:   "page",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:   "section#bo_list ul.list-group.list-group-flush.border-bottom li:not(.hd-wrap):not(.da-atricle-row--notice)",
				Title:      "a.da-link-block.da-article-link.subject-ellipsis",
				Link:       "a.da-link-block.da-article-link.subject-ellipsis",
				PostedAt:   "span.orangered.da-list-date, div.wr-date.text-nowrap",
				PriceRegex: `\(([0-9,]+원)\)$`,
			},
			Handlers: map[string]CustomElementHandlerFunc{
				"postedAt": damoangPostedAt,
			},
			IDExtractor: func(link string) (string, error) {
				return helpers.GetSplitPart(strings.Split(link, "?")[0], "/", 4)
			},
		},
		{
			Name:        "arca",
			ListURL:     sites.ArcaURL,
			BaseURL:     "https://arca.live",
			PageParam:   "p",
			NewestFirst: true,
			Selectors: Selectors{
				DealList:    "div.list-table.hybrid div.vrow.hybrid",
				Title:       "div.vrow-inner div.vrow-top.deal a.title.hybrid-title",
				Link:        "div.vrow-inner div.vrow-top.deal a.title.hybrid-title",
				Thumbnail:   "a.title.preview-image div.vrow-preview img",
				PostedAt:    "span.col-time time",
				Price:       "span.deal-price",
				SoldOut:     "span.deal-close",
				ClassFilter: "notice",
			},
			RemoveElements: []ElementRemoval{
				{Selector: "span", ApplyToPath: "title"},
			},
			IDExtractor: func(link string) (string, error) {
				baseLink := strings.Split(link, "?")[0]
				return helpers.GetSplitPart(baseLink, "/", 5)
			},
		},
	}
}

// damoangPostedAt prefers the highlighted recent-post date and falls back
// to the plain date cell with its icons stripped.
func damoangPostedAt(s *goquery.Selection) string {
	if postedAt := strings.TrimSpace(s.Find("span.orangered.da-list-date").Text()); postedAt != "" {
		return postedAt
	}
	clone := s.Find("div.wr-date.text-nowrap").Clone()
	clone.Find("i").Remove()
	clone.Find("span").Remove()
	return strings.TrimSpace(clone.Text())
}

// RegistryOptions controls how the built-in sources are wrapped
type RegistryOptions struct {
	CacheSvc          cache.CacheService
	BlockTime         time.Duration
	RequestsPerSecond float64
}

// NewSiteRegistry builds a registry with every configured site, each wrapped
// in a Guard
func NewSiteRegistry(configs []SiteConfig, fetcher PageFetcher, opts RegistryOptions) (*Registry, error) {
	var sources []Source
	for _, cfg := range configs {
		adapter, err := NewHTMLAdapter(cfg, fetcher)
		if err != nil {
			return nil, err
		}
		sources = append(sources, GuardSource(adapter.Source(),
			WithBlockCache(opts.CacheSvc, opts.BlockTime),
			WithRateLimit(opts.RequestsPerSecond),
		))
	}
	return NewRegistry(sources...)
}
