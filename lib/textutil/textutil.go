package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName reports if the normalized name contains any of the matchers.
func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// BestMatch returns the index of the candidate closest to query by
// Jaro-Winkler similarity over normalized names, or -1 if no candidate
// reaches minScore.
func BestMatch(query string, candidates []string, minScore float64) (index int, score float64) {
	query = NormalizeName(query)
	index = -1
	for i, c := range candidates {
		normalized := NormalizeName(c)
		if normalized == query {
			return i, 1
		}
		s := matchr.JaroWinkler(query, normalized, false)
		if s > score {
			index = i
			score = s
		}
	}
	if score < minScore {
		return -1, score
	}
	return index, score
}
