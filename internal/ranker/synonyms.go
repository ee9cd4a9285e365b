package ranker

import "strings"

// Synonyms maps a dietary preference onto the keywords that satisfy it.
type Synonyms map[string][]string

// NewSynonyms normalizes a configured dictionary to lowercase keys and keywords.
func NewSynonyms(dict map[string][]string) Synonyms {
	s := make(Synonyms, len(dict))
	for term, keywords := range dict {
		key := strings.ToLower(strings.TrimSpace(term))
		for _, k := range keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				s[key] = append(s[key], k)
			}
		}
	}
	return s
}

// Keywords returns the match keywords for a preference. Unknown preferences
// match on the term itself.
func (s Synonyms) Keywords(preference string) []string {
	preference = strings.ToLower(strings.TrimSpace(preference))
	if keywords, ok := s[preference]; ok && len(keywords) > 0 {
		return keywords
	}
	return []string{preference}
}

// MatchAny reports whether text contains a keyword of at least one preference.
// text must already be lowercase.
func (s Synonyms) MatchAny(text string, preferences []string) bool {
	for _, p := range preferences {
		for _, k := range s.Keywords(p) {
			if k != "" && strings.Contains(text, k) {
				return true
			}
		}
	}
	return false
}
