package news

import (
	"strings"
)

type Matcher struct{}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Run matches one round of raw items against the configured keyword groups
// and exclusion filters. Filters outrank keywords: an item whose title
// contains any filter term is dropped before groups are consulted. Groups
// are evaluated in declaration order and the first match wins, so an item
// carries at most one keyword label. Matching is folded substring
// containment, which keeps CJK titles working without word boundaries.
func (m *Matcher) Run(items []RawItem, groups []KeywordGroup, filters []string) []MatchedItem {
	matched := make([]MatchedItem, 0, len(items))

	for _, item := range items {
		title := Fold(item.Title)

		if m.isExcluded(title, filters) {
			continue
		}

		label, ok := m.matchGroups(title, groups)
		if !ok {
			continue
		}

		matched = append(matched, MatchedItem{RawItem: item, Keyword: label})
	}

	return matched
}

func (m *Matcher) isExcluded(foldedTitle string, filters []string) bool {
	for _, filter := range filters {
		if filter == "" {
			continue
		}
		if strings.Contains(foldedTitle, Fold(filter)) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchGroups(foldedTitle string, groups []KeywordGroup) (string, bool) {
	for _, group := range groups {
		if m.matchTerms(foldedTitle, group.Terms) {
			return group.Label, true
		}
		if group.Expand && m.matchTerms(foldedTitle, group.Expansions) {
			return group.Label, true
		}
	}
	return "", false
}

func (m *Matcher) matchTerms(foldedTitle string, terms []string) bool {
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(foldedTitle, Fold(term)) {
			return true
		}
	}
	return false
}
