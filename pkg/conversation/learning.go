package conversation

import (
	"sort"
	"strings"
)

// maxKeywordsPerUpdate caps how many keywords one exchange contributes.
const maxKeywordsPerUpdate = 10

var stopWords = map[string]bool{
	"the": true, "is": true, "at": true, "which": true, "on": true,
	"a": true, "an": true, "and": true, "or": true, "but": true,
}

// ExtractKeywords lowercases text, splits on whitespace and keeps tokens
// longer than three characters that are not stop words, up to ten.
func ExtractKeywords(text string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) <= 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
		if len(out) == maxKeywordsPerUpdate {
			break
		}
	}
	return out
}

// LearningProfile counts keyword occurrences across a session.
type LearningProfile struct {
	counts map[string]int
}

// NewLearningProfile creates an empty profile.
func NewLearningProfile() *LearningProfile {
	return &LearningProfile{counts: make(map[string]int)}
}

// Update increments counters for the keywords of text.
func (p *LearningProfile) Update(text string) []string {
	kw := ExtractKeywords(text)
	for _, k := range kw {
		p.counts[k]++
	}
	return kw
}

// Len returns the number of distinct keywords.
func (p *LearningProfile) Len() int { return len(p.counts) }

// Count returns the count for keyword.
func (p *LearningProfile) Count(keyword string) int { return p.counts[keyword] }

// Snapshot returns a copy of the counters.
func (p *LearningProfile) Snapshot() map[string]int {
	out := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// Top returns up to n keywords by descending count, ties broken
// alphabetically.
func (p *LearningProfile) Top(n int) []string {
	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := p.counts[keys[i]], p.counts[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Reset clears all counters.
func (p *LearningProfile) Reset() {
	p.counts = make(map[string]int)
}
