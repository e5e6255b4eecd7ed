package normalize

import (
	"math"
	"regexp"
	"strings"

	"github.com/dealmungchi/dealcrawler/internal/deal"
)

// Rule scores text against one category
type Rule struct {
	Category   string
	Keywords   []string
	Patterns   []*regexp.Regexp
	Priority   float64
	Confidence float64
}

// Classification is the outcome of classifying a piece of text
type Classification struct {
	Category        string
	Confidence      float64
	MatchedKeywords []string
}

// Classifier picks the best scoring category for a deal title
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier. With no rules it uses DefaultRules.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the category whose rule yields the highest confidence,
// or deal.DefaultCategory when nothing matches.
func (c *Classifier) Classify(text string) Classification {
	text = strings.ToLower(text)
	best := Classification{Category: deal.DefaultCategory}

	for _, rule := range c.rules {
		result := evaluate(text, rule)
		if result.Confidence > best.Confidence {
			best = result
		}
	}
	return best
}

// evaluate scores one keyword per hit, two per pattern hit, plus a density
// bonus when several keywords hit. The score is weighted by priority and
// scaled into the rule's confidence.
func evaluate(text string, rule Rule) Classification {
	var score float64
	var matched []string

	for _, kw := range rule.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			score++
			matched = append(matched, kw)
		}
	}
	for _, p := range rule.Patterns {
		if p.MatchString(text) {
			score += 2
		}
	}
	if len(matched) > 1 {
		score += float64(len(matched)) * 0.5
	}

	final := score * rule.Priority / 10
	return Classification{
		Category:        rule.Category,
		Confidence:      math.Min(final/10, 1) * rule.Confidence,
		MatchedKeywords: matched,
	}
}

// DefaultRules returns the built-in Korean shopping categories.
// Single-syllable keywords are left out on purpose; they match inside
// unrelated words ("1개", "차량").
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: "가전/디지털",
			Keywords: []string{
				"가전", "전자", "디지털", "컴퓨터", "노트북", "데스크탑", "스마트폰", "갤럭시", "아이폰",
				"아이패드", "모니터", "키보드", "마우스", "헤드셋", "이어폰", "스피커", "프린터", "ssd",
				"냉장고", "세탁기", "건조기", "에어컨", "공기청정기", "가습기", "제습기", "전자레인지",
				"에어프라이어", "밥솥", "정수기", "드라이기", "면도기", "블루투스", "충전기", "보조배터리",
				"로봇청소기", "청소기", "커피머신", "그래픽카드",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)갤럭시|galaxy`),
				regexp.MustCompile(`(?i)아이폰|iphone`),
				regexp.MustCompile(`(?i)맥북|macbook`),
				regexp.MustCompile(`(?i)에어팟|airpods`),
				regexp.MustCompile(`(?i)\blg\b|삼성|애플|apple|소니|sony|필립스|philips`),
			},
			Priority:   9,
			Confidence: 0.9,
		},
		{
			Category: "화장품/미용",
			Keywords: []string{
				"화장품", "미용", "스킨케어", "메이크업", "향수", "헤어", "샴푸", "컨디셔너", "트리트먼트",
				"토너", "에센스", "세럼", "크림", "로션", "선크림", "파운데이션", "쿠션", "립스틱",
				"마스카라", "클렌징", "마스크팩", "핸드크림", "바디워시", "네일",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)로레알|l'oreal|메이블린|maybelline`),
				regexp.MustCompile(`(?i)스킨\s*케어|skin\s*care`),
				regexp.MustCompile(`(?i)바디\s*워시|body\s*wash`),
			},
			Priority:   8,
			Confidence: 0.85,
		},
		{
			Category: "생활용품/주방",
			Keywords: []string{
				"생활용품", "주방", "생활", "가구", "인테리어", "욕실", "청소", "수납", "냄비", "프라이팬",
				"그릇", "접시", "텀블러", "물병", "도시락", "밀폐용기", "글라스락", "도마", "키친타올",
				"지퍼백", "쓰레기봉투", "화장지", "휴지", "티슈", "물티슈", "세제", "섬유유연제", "수세미",
				"이불", "베개", "매트리스", "커튼", "수건", "치약", "칫솔",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)테팔|tefal`),
				regexp.MustCompile(`(?i)락앤락|lock&lock`),
				regexp.MustCompile(`(?i)크리넥스|kleenex`),
				regexp.MustCompile(`깨끗한나라`),
			},
			Priority:   7,
			Confidence: 0.8,
		},
		{
			Category: "의류/잡화",
			Keywords: []string{
				"의류", "상의", "하의", "원피스", "셔츠", "블라우스", "티셔츠", "바지", "청바지", "반바지",
				"스커트", "레깅스", "속옷", "자켓", "점퍼", "코트", "패딩", "후드", "신발", "운동화",
				"구두", "부츠", "샌들", "슬리퍼", "스니커즈", "가방", "백팩", "지갑", "목걸이", "시계",
				"모자", "벨트", "양말",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)나이키|nike`),
				regexp.MustCompile(`(?i)아디다스|adidas`),
				regexp.MustCompile(`(?i)유니클로|uniqlo`),
				regexp.MustCompile(`반팔|긴팔|민소매`),
			},
			Priority:   8,
			Confidence: 0.85,
		},
		{
			Category: "식품/건강",
			Keywords: []string{
				"식품", "음식", "먹거리", "간식", "과자", "초콜릿", "젤리", "라면", "파스타", "소고기",
				"돼지고기", "닭고기", "닭가슴살", "생선", "해산물", "새우", "과일", "우유", "치즈",
				"요거트", "계란", "커피", "음료수", "주스", "생수", "비타민", "영양제", "홍삼", "건강식품",
				"프로틴", "유산균", "오메가3",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)비타민|vitamin`),
				regexp.MustCompile(`(?i)프로틴|protein`),
				regexp.MustCompile(`(?i)오메가3|omega`),
				regexp.MustCompile(`홍삼|인삼`),
			},
			Priority:   6,
			Confidence: 0.75,
		},
		{
			Category: "유아/육아용품",
			Keywords: []string{
				"유아", "아기", "베이비", "신생아", "어린이", "키즈", "기저귀", "분유", "이유식", "젖병",
				"유모차", "카시트", "아기띠", "장난감", "하기스", "팸퍼스",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)베이비|baby`),
				regexp.MustCompile(`(?i)키즈|kids`),
				regexp.MustCompile(`유아|영유아`),
			},
			Priority:   9,
			Confidence: 0.9,
		},
		{
			Category: "스포츠/레저",
			Keywords: []string{
				"스포츠", "운동", "헬스", "피트니스", "요가", "필라테스", "등산", "캠핑", "낚시", "골프",
				"축구", "야구", "농구", "테니스", "배드민턴", "수영", "자전거", "킥보드", "덤벨", "텐트",
				"침낭", "등산화",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)스포츠|sports`),
				regexp.MustCompile(`(?i)헬스|fitness`),
				regexp.MustCompile(`(?i)캠핑|camping`),
				regexp.MustCompile(`(?i)골프|golf`),
			},
			Priority:   7,
			Confidence: 0.8,
		},
		{
			Category: "도서/문구",
			Keywords: []string{
				"도서", "소설", "에세이", "문구", "필기구", "볼펜", "연필", "지우개", "형광펜", "노트",
				"다이어리", "수첩", "포스트잇", "바인더", "계산기", "스테이플러",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`도서|문구`),
				regexp.MustCompile(`다이어리`),
			},
			Priority:   6,
			Confidence: 0.75,
		},
		{
			Category: "반려동물용품",
			Keywords: []string{
				"반려동물", "강아지", "고양이", "냥이", "사료", "배변패드", "하네스", "리드줄", "캣타워",
				"모래", "급식기", "급수기",
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)반려동물|\bpet\b`),
				regexp.MustCompile(`강아지|멍멍이`),
				regexp.MustCompile(`고양이|냥이`),
				regexp.MustCompile(`사료`),
			},
			Priority:   8,
			Confidence: 0.85,
		},
	}
}
