package rzx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectionNames(sel Selection) []string {
	names := make([]string, 0, len(sel.Entries))
	for _, e := range sel.Entries {
		names = append(names, e.Name)
	}
	return names
}

func TestSelect_Literal(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	sel, err := arc.Select([]string{"docs/guide.txt", "readme.txt"}, MatchLiteral)
	require.NoError(t, err)

	// pattern order, not archive order.
	assert.Equal(t, []string{"docs/guide.txt", "readme.txt"}, selectionNames(sel))
	assert.Empty(t, sel.Misses)
}

func TestSelect_LiteralMiss(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	sel, err := arc.Select([]string{"readme.txt", "missing.txt"}, MatchLiteral)
	require.NoError(t, err)

	assert.Equal(t, []string{"readme.txt"}, selectionNames(sel))
	assert.Equal(t, []string{"missing.txt"}, sel.Misses)
}

func TestSelect_Glob(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	tests := []struct {
		name     string
		pattern  string
		expected []string
	}{
		// a single star does not cross slashes.
		{name: "top level only", pattern: "*.txt", expected: []string{"readme.txt", "notes.txt"}},
		{name: "recursive", pattern: "**/*.txt", expected: []string{"readme.txt", "notes.txt", "docs/guide.txt", "docs/deep/layout.txt"}},
		{name: "one directory deep", pattern: "docs/*.txt", expected: []string{"docs/guide.txt"}},
		{name: "everything under docs", pattern: "docs/**", expected: []string{"docs/", "docs/guide.txt", "docs/deep/layout.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := arc.Select([]string{tt.pattern}, MatchGlob)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, selectionNames(sel))
		})
	}
}

func TestSelect_GlobInvalidPattern(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	_, err := arc.Select([]string{"[unclosed"}, MatchGlob)
	assert.Error(t, err)
}

func TestSelect_Regexp(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	sel, err := arc.Select([]string{`^docs/.*\.txt$`}, MatchRegexp)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/guide.txt", "docs/deep/layout.txt"}, selectionNames(sel))
}

func TestSelect_RegexpInvalidPattern(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	_, err := arc.Select([]string{`(`}, MatchRegexp)
	assert.Error(t, err)
}

func TestSelect_Dedupe(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	// overlapping patterns still select each entry once.
	sel, err := arc.Select([]string{"**/*.txt", "readme.txt"}, MatchGlob)
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.txt", "notes.txt", "docs/guide.txt", "docs/deep/layout.txt"}, selectionNames(sel))
}

func TestSelect_NoMatch(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	_, err := arc.Select([]string{"*.csv", "*.json"}, MatchGlob)

	var nme *NoMatchError
	require.ErrorAs(t, err, &nme)
	assert.Equal(t, []string{"*.csv", "*.json"}, nme.Patterns)
}

func TestSelect_EmptyPatterns(t *testing.T) {
	arc := openTestArchive(t, buildArchive(t, defaultTestFiles, ""))

	sel, err := arc.Select(nil, MatchGlob)
	require.NoError(t, err)
	assert.Empty(t, sel.Entries)
	assert.Empty(t, sel.Misses)
}
