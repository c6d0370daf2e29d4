package news

import (
	"strings"
	"unicode/utf8"

	"github.com/tidewater/ocean-engine/internal/model"
)

// oceanKeywords gate ingestion: an item mentioning none of them is ignored
// even if it names a region.
var oceanKeywords = []string{
	"해양", "바다", "해변", "해수욕장", "연안", "갯벌", "어촌", "항만", "해역",
	"ocean", "sea", "coast", "marine", "beach", "harbor",
}

// regionSuffixes are stripped from region names before token matching,
// longest first.
var regionSuffixes = []string{
	"해수욕장", "앞바다", "해안", "해역", "연안", "바다", "항",
}

const minTokenRunes = 3

// Matcher assigns news items to regions by text containment.
type Matcher struct {
	regions []candidate
}

type candidate struct {
	region model.Region
	terms  []string
}

// NewMatcher builds a matcher over regions. Regions are tried in the given
// order and the first match wins.
func NewMatcher(regions []model.Region) *Matcher {
	m := &Matcher{}
	for _, r := range regions {
		m.regions = append(m.regions, candidate{region: r, terms: matchTerms(r.Name)})
	}
	return m
}

// Match returns the first region named in the item's title or description.
// Items without ocean context never match.
func (m *Matcher) Match(it Item) (model.Region, bool) {
	text := strings.ToLower(it.Title + " " + it.Description)
	if !hasOceanContext(text) {
		return model.Region{}, false
	}
	for _, c := range m.regions {
		for _, term := range c.terms {
			if strings.Contains(text, term) {
				return c.region, true
			}
		}
	}
	return model.Region{}, false
}

func hasOceanContext(text string) bool {
	for _, kw := range oceanKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// matchTerms lists the name, the suffix-stripped name and its tokens of at
// least minTokenRunes runes, lowercased and deduplicated.
func matchTerms(name string) []string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	terms := []string{name}
	seen := map[string]bool{name: true}
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}

	stripped := stripSuffix(name)
	add(stripped)
	for _, tok := range strings.Fields(stripped) {
		if utf8.RuneCountInString(tok) >= minTokenRunes {
			add(tok)
		}
	}
	return terms
}

func stripSuffix(name string) string {
	for _, sfx := range regionSuffixes {
		if strings.HasSuffix(name, sfx) {
			return strings.TrimSpace(strings.TrimSuffix(name, sfx))
		}
	}
	return name
}
