package rzx

import (
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchMode determines how selection patterns are matched against entry
// paths.
type MatchMode int

const (
	// MatchLiteral matches exact paths; each pattern selects zero or one
	// entry.
	MatchLiteral MatchMode = iota
	// MatchGlob matches shell-style wildcards against full paths. `*` and
	// `?` do not cross `/`; `**` matches recursively.
	MatchGlob
	// MatchRegexp matches regular expressions against full paths,
	// un-anchored unless the pattern anchors itself.
	MatchRegexp
)

// Selection is the resolved subset of an archive's entries.
type Selection struct {
	// Entries are the selected entries in pattern order, then
	// central-directory order within each pattern, de-duplicated.
	Entries []Entry
	// Misses are the patterns that matched nothing, in input order.
	Misses []string
}

// Select resolves the given patterns against the archive's entry index.
//
// A pattern matching nothing is reported in Selection.Misses rather than
// failing the call; a *NoMatchError is returned only when every pattern
// matched nothing.
func (a *Archive) Select(patterns []string, mode MatchMode) (Selection, error) {
	var sel Selection
	seen := make(map[string]bool, len(patterns))

	for _, pattern := range patterns {
		matched, err := a.match(pattern, mode)
		if err != nil {
			return Selection{}, err
		}

		if len(matched) == 0 {
			sel.Misses = append(sel.Misses, pattern)
			continue
		}

		for _, e := range matched {
			if !seen[e.Name] {
				seen[e.Name] = true
				sel.Entries = append(sel.Entries, e)
			}
		}
	}

	if len(sel.Entries) == 0 && len(patterns) > 0 {
		return sel, &NoMatchError{Patterns: sel.Misses}
	}

	return sel, nil
}

func (a *Archive) match(pattern string, mode MatchMode) ([]Entry, error) {
	switch mode {
	case MatchLiteral:
		if e, ok := a.Lookup(pattern); ok {
			return []Entry{e}, nil
		}
		return nil, nil

	case MatchGlob:
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf(`invalid glob pattern "%s"`, pattern)
		}

		var matched []Entry
		for _, e := range a.entries {
			if ok, _ := doublestar.Match(pattern, e.Name); ok {
				matched = append(matched, e)
			}
		}
		return matched, nil

	case MatchRegexp:
		rx, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf(`invalid regexp pattern "%s": %w`, pattern, err)
		}

		var matched []Entry
		for _, e := range a.entries {
			if rx.MatchString(e.Name) {
				matched = append(matched, e)
			}
		}
		return matched, nil

	default:
		return nil, fmt.Errorf("unknown match mode %d", mode)
	}
}
