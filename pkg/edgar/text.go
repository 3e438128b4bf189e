package edgar

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// DefaultKeywords are the AI-related phrases counted in 10-K text.
var DefaultKeywords = []string{
	"artificial intelligence",
	"machine learning",
	"deep learning",
	"neural network",
	"natural language processing",
	"computer vision",
	"generative ai",
	"large language model",
	"chatgpt",
	"automation",
	"algorithmic",
	"predictive analytics",
	"data science",
	"ai-powered",
	"ai-driven",
	"intelligent automation",
}

// skipped elements never contribute visible text. ix:header holds the hidden
// inline XBRL facts in modern filings.
var skipped = map[string]bool{
	"script":    true,
	"style":     true,
	"noscript":  true,
	"head":      true,
	"ix:header": true,
}

// StripMarkup returns the visible text of an HTML document, lowercased, with
// whitespace collapsed to single spaces. Plain-text filings pass through the
// parser unchanged apart from the normalization.
func StripMarkup(doc []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return "", eris.Wrap(err, "edgar: parse document")
	}

	var sb strings.Builder
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			continue
		case html.ElementNode:
			if skipped[strings.ToLower(n.Data)] {
				continue
			}
		case html.CommentNode:
			continue
		}
		// push children in reverse so they pop in document order
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(sb.String()), " ")), nil
}

// Counts is the result of counting keywords in one document.
type Counts struct {
	Total     int
	Words     int
	ByKeyword map[string]int
}

// Intensity is keyword mentions per 10,000 words.
func (c Counts) Intensity() float64 {
	if c.Words == 0 {
		return 0
	}
	return float64(c.Total) / float64(c.Words) * 10000
}

// Counter counts whole-word, case-insensitive keyword occurrences.
type Counter struct {
	keywords []string
	patterns []*regexp.Regexp
}

// NewCounter compiles a counter for the given keywords. Duplicate and blank
// keywords are dropped.
func NewCounter(keywords []string) *Counter {
	seen := make(map[string]bool, len(keywords))
	c := &Counter{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		c.keywords = append(c.keywords, kw)
	}
	sort.Strings(c.keywords)
	for _, kw := range c.keywords {
		c.patterns = append(c.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
	}
	return c
}

// Keywords returns the normalized keyword list in sorted order.
func (c *Counter) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// Count counts keywords in already-stripped text. Overlapping phrases are
// counted independently, so "intelligent automation" also counts as "automation".
func (c *Counter) Count(text string) Counts {
	out := Counts{
		Words:     len(strings.Fields(text)),
		ByKeyword: make(map[string]int, len(c.keywords)),
	}
	for i, re := range c.patterns {
		n := len(re.FindAllStringIndex(text, -1))
		out.ByKeyword[c.keywords[i]] = n
		out.Total += n
	}
	return out
}
