package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

	// Price markers seen in Korean deal titles, most specific first.
	titlePricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{1,3}(?:,\d{3})*(?:\.\d+)?)\s*원`),
		regexp.MustCompile(`[￦₩]\s*(\d{1,3}(?:,\d{3})*(?:\.\d+)?)`),
		regexp.MustCompile(`\((\d{1,3}(?:,\d{3})*(?:\.\d+)?)\s*[/)]`),
		regexp.MustCompile(`\$\s*(\d{1,3}(?:,\d{3})*(?:\.\d+)?)`),
	}
)

// ParsePrice extracts the first number from a price string such as
// "13,900원", "￦13,900" or "$12.99". It reports false when the text holds
// no number.
func ParsePrice(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	negative := strings.HasPrefix(text, "-")

	m := numberPattern.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// PriceFromTitle looks for an explicitly marked price inside a title, e.g.
// "[쿠팡] 에어팟 프로 (189,000/무료)". Bare numbers are ignored so model
// numbers like "RTX 4090" are not mistaken for prices.
func PriceFromTitle(title string) (float64, bool) {
	for _, p := range titlePricePatterns {
		if m := p.FindStringSubmatch(title); m != nil {
			return ParsePrice(m[1])
		}
	}
	return 0, false
}
