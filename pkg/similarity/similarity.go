// Package similarity scores cache entries against a query prompt using
// Jaccard similarity over token sets.
package similarity

import (
	"github.com/appfactory-ai/assetgen/pkg/models"
)

// Jaccard computes |A ∩ B| / |A ∪ B| over two token slices. Both empty
// scores 1.0; one empty scores 0.0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	set := make(map[string]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}

	intersection := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, tok := range b {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := set[tok]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

// Match pairs a candidate entry with its similarity score.
type Match struct {
	Entry *models.Entry
	Score float64
}

// Best returns the highest-scoring candidate whose Jaccard score against
// queryTokens is >= threshold, or nil. Ties break on higher score, then
// later last-access time, then higher access count. Candidates are assumed
// already filtered for category, expiry and orphaning by the caller.
func Best(queryTokens []string, candidates []*models.Entry, threshold float64) *Match {
	var best *Match
	for _, e := range candidates {
		score := Jaccard(queryTokens, e.KeywordSet)
		if score < threshold {
			continue
		}
		if best == nil || better(score, e, best) {
			best = &Match{Entry: e, Score: score}
		}
	}
	return best
}

func better(score float64, e *models.Entry, cur *Match) bool {
	if score != cur.Score {
		return score > cur.Score
	}
	if !e.LastAccessedAt.Equal(cur.Entry.LastAccessedAt) {
		return e.LastAccessedAt.After(cur.Entry.LastAccessedAt)
	}
	return e.AccessCount > cur.Entry.AccessCount
}
