package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"short tokens dropped", "build a UI for the app", []string{"build"}},
		{"punctuation stripped", "Refactor: the (parser), please!", []string{"parser", "please", "refactor"}},
		{"duplicates collapsed", "test test TEST tests", []string{"test", "tests"}},
		{"empty", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.text))
		})
	}
}

func TestExpandKeywords(t *testing.T) {
	rules, err := LoadDefault()
	require.NoError(t, err)

	// a synonym activates its parent
	got := rules.ExpandKeywords([]string{"responsive"})
	assert.Contains(t, got, "browser")
	assert.Contains(t, got, "screenshot")

	// a parent activates its synonyms
	got = rules.ExpandKeywords([]string{"research"})
	for _, want := range []string{"research", "search", "extract", "crawl", "investigate"} {
		assert.Contains(t, got, want)
	}

	// unrelated keywords pass through unchanged
	assert.Equal(t, []string{"zebra"}, rules.ExpandKeywords([]string{"zebra"}))
}

func TestWeights(t *testing.T) {
	rules, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, 10.0, rules.Weight("ui-focused", "browser_navigate"))
	assert.Equal(t, 0.0, rules.Weight("ui-focused", "docker_build"))
	assert.Equal(t, 0.0, rules.Weight("no-such-strategy", "browser_navigate"))
	assert.Equal(t, 10.0, rules.MaxWeight("research-focused"))
}

func TestQualityScoreCapped(t *testing.T) {
	rules, err := Load([]byte(`
quality_keywords = ["a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a11", "a12"]
`))
	require.NoError(t, err)

	assert.Equal(t, 0.0, rules.QualityScore("nothing here"))
	assert.Equal(t, 2.0, rules.QualityScore("A1 and a2"))
	assert.Equal(t, float64(MaxQualityScore), rules.QualityScore("a1 a2 a3 a4 a5 a6 a7 a8 a9 a10 a11 a12"))
}

func TestTriggeredTools(t *testing.T) {
	rules, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, []string{"get_pattern_recommendations"}, rules.TriggeredTools("apply the repository pattern"))
	assert.Empty(t, rules.TriggeredTools("nothing to see"))
}

func TestLoadRejectsNegativeWeights(t *testing.T) {
	_, err := Load([]byte(`
[strategies.x]
tool = -1
`))
	assert.Error(t, err)

	_, err = Load([]byte(`not = [valid`))
	assert.Error(t, err)
}
