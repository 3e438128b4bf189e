package edgar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	doc := `<html><head><title>10-K</title><style>.a{color:red}</style></head>
<body>
<p>We build <b>AI-Powered</b>   tools.</p>
<script>var x = "machine learning";</script>
<!-- deep learning -->
<div>Intelligent
	Automation</div>
</body></html>`

	got, err := StripMarkup([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "we build ai-powered tools. intelligent automation", got)
}

func TestStripMarkup_PlainText(t *testing.T) {
	t.Parallel()

	got, err := StripMarkup([]byte("ANNUAL REPORT\n\n  Machine Learning"))
	require.NoError(t, err)
	assert.Equal(t, "annual report machine learning", got)
}

func TestCounter_Count(t *testing.T) {
	t.Parallel()

	c := NewCounter(DefaultKeywords)
	got := c.Count("we build ai-powered tools. intelligent automation and more automation, not automations")

	assert.Equal(t, 1, got.ByKeyword["ai-powered"])
	assert.Equal(t, 1, got.ByKeyword["intelligent automation"])
	assert.Equal(t, 2, got.ByKeyword["automation"])
	assert.Equal(t, 0, got.ByKeyword["machine learning"])
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, 11, got.Words)
	assert.InDelta(t, 4.0/11*10000, got.Intensity(), 1e-9)
}

func TestCounter_DedupesKeywords(t *testing.T) {
	t.Parallel()

	c := NewCounter([]string{"Machine Learning", "machine learning", " ", "chatgpt"})
	assert.Equal(t, []string{"chatgpt", "machine learning"}, c.Keywords())

	got := c.Count("ChatGPT and MACHINE LEARNING")
	assert.Equal(t, 2, got.Total)
}

func TestCounts_IntensityEmpty(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Counts{}.Intensity())
}
