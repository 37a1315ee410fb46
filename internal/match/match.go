// Package match scores query strings against canonical catalog candidates
// and applies the conservative accept/create policy: a false negative costs
// an extra unverified entity, a false merge corrupts the catalog, so every
// borderline case falls through to entity creation.
package match

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/normalize"
)

// Type-specific acceptance thresholds. Track titles are longer and more
// distinctive than artist names, so they demand a higher score.
const (
	TrackThreshold  = 0.90
	ArtistThreshold = 0.85

	// AmbiguousFloor is the lower edge of the ambiguous zone
	// [AmbiguousFloor, threshold); scores in the zone are recorded for
	// audit but never produce a match.
	AmbiguousFloor = 0.60
)

// Scored pairs a candidate with its similarity score.
type Scored struct {
	Candidate model.MatchCandidate `json:"candidate"`
	Score     float64              `json:"score"`
}

// Result is the outcome of one FindBestMatch call. Match is nil unless the
// best candidate cleared the threshold and survived the validation guards.
type Result struct {
	Match            *model.MatchCandidate `json:"match,omitempty"`
	Score            float64               `json:"score"`
	IsHighConfidence bool                  `json:"is_high_confidence"`
	Alternatives     []Scored              `json:"alternatives,omitempty"`
	Ambiguous        []Scored              `json:"ambiguous,omitempty"`
}

// ShouldCreateNew reports whether the caller should create a new unverified
// entity instead of linking to an existing one.
func (r Result) ShouldCreateNew() bool {
	return !r.IsHighConfidence
}

var lvParams = levenshtein.NewParams()

// Similarity computes an order-independent similarity in [0,1] between two
// raw strings. Both sides are normalized first; the final score is the best
// of plain, token-sorted, and token-set comparisons, so "Title - Artist" and
// "Artist - Title" score identically.
func Similarity(a, b string) float64 {
	na := normalize.Text(a)
	nb := normalize.Text(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	plain := levenshtein.Similarity(na, nb, lvParams)
	sorted := levenshtein.Similarity(tokenSort(na), tokenSort(nb), lvParams)
	set := tokenSetSimilarity(na, nb)

	return max(plain, sorted, set)
}

// FindBestMatch scores query against every candidate and applies the
// decision rule isHighConfidence = score >= threshold, plus validation
// guards that reject degenerate high scores from short generic strings.
// Scores in the ambiguous zone are logged and returned for audit.
func FindBestMatch(query string, candidates []model.MatchCandidate, threshold float64) Result {
	nq := normalize.Text(query)
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, Scored{Candidate: c, Score: Similarity(query, c.Text)})
	}
	// Exact post-normalization duplicates win score ties.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return normalize.Text(scored[i].Candidate.Text) == nq && normalize.Text(scored[j].Candidate.Text) != nq
	})

	var res Result
	for _, s := range scored {
		if s.Score >= AmbiguousFloor && s.Score < threshold {
			res.Ambiguous = append(res.Ambiguous, s)
		}
	}

	if len(scored) == 0 {
		return res
	}

	best := scored[0]
	res.Score = best.Score
	res.IsHighConfidence = best.Score >= threshold && validateMatch(query, best.Candidate.Text, best.Score)

	if res.IsHighConfidence {
		m := best.Candidate
		res.Match = &m
		scored = scored[1:]
	}
	if len(scored) > 3 {
		scored = scored[:3]
	}
	res.Alternatives = scored

	for _, amb := range res.Ambiguous {
		zap.L().Warn("ambiguous match",
			zap.String("component", "matcher"),
			zap.String("query", query),
			zap.String("candidate", amb.Candidate.Text),
			zap.Float64("score", amb.Score),
			zap.Float64("threshold", threshold),
		)
	}

	return res
}

// validateMatch rejects candidates that cleared the threshold on a
// degenerate score: grossly mismatched token counts, or first tokens that
// barely resemble each other.
func validateMatch(query, candidate string, score float64) bool {
	qTokens := normalize.Tokens(query)
	cTokens := normalize.Tokens(candidate)
	if len(qTokens) == 0 || len(cTokens) == 0 {
		return false
	}

	longer, shorter := len(qTokens), len(cTokens)
	if shorter > longer {
		longer, shorter = shorter, longer
	}
	if longer > 3*shorter && score < 0.95 {
		return false
	}

	firstSim := levenshtein.Similarity(qTokens[0], cTokens[0], lvParams)
	if firstSim < 0.6 && score < 0.9 {
		return false
	}

	return true
}

func tokenSort(normalized string) string {
	tokens := strings.Fields(normalized)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// tokenSetSimilarity implements the token-set comparison: the sorted token
// intersection is compared against each side's full sorted token string, so
// a query that is a strict token subset of a candidate still scores high.
func tokenSetSimilarity(na, nb string) float64 {
	aTokens := strings.Fields(na)
	bTokens := strings.Fields(nb)

	inSet := make(map[string]bool, len(aTokens))
	for _, t := range aTokens {
		inSet[t] = true
	}

	var common []string
	seen := make(map[string]bool)
	for _, t := range bTokens {
		if inSet[t] && !seen[t] {
			common = append(common, t)
			seen[t] = true
		}
	}
	if len(common) == 0 {
		return 0
	}
	sort.Strings(common)
	base := strings.Join(common, " ")

	simA := levenshtein.Similarity(base, tokenSort(na), lvParams)
	simB := levenshtein.Similarity(base, tokenSort(nb), lvParams)
	simAB := levenshtein.Similarity(tokenSort(na), tokenSort(nb), lvParams)

	return max(simA, simB, simAB)
}
