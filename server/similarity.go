package server

import (
	"sort"
	"strings"

	"github.com/vitwit/databox/types"
)

// scoreThreshold below which a dataset is not considered a match.
const scoreThreshold = 10.0

// diceCoefficient measures bigram overlap between two strings, 0 to 1.
// Whitespace is ignored and comparison is case-insensitive.
func diceCoefficient(a, b string) float64 {
	a = strings.ReplaceAll(strings.ToLower(a), " ", "")
	b = strings.ReplaceAll(strings.ToLower(b), " ", "")

	if a == b {
		if len(a) == 0 {
			return 0
		}
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		return 0
	}

	bigrams := make(map[string]int)
	for i := 0; i < len(a)-1; i++ {
		bigrams[a[i:i+2]]++
	}

	matches := 0
	for i := 0; i < len(b)-1; i++ {
		gram := b[i : i+2]
		if bigrams[gram] > 0 {
			bigrams[gram]--
			matches++
		}
	}
	return 2.0 * float64(matches) / float64(len(a)+len(b)-2)
}

// scoreDataset ranks how well a dataset answers a free-text query. Name
// similarity weighs double description similarity, with bonuses for exact,
// prefix, substring, and per-word hits.
func scoreDataset(query string, ds types.Dataset) float64 {
	queryLower := strings.TrimSpace(strings.ToLower(query))
	nameLower := strings.ToLower(ds.Name)
	descLower := strings.ToLower(ds.Description)

	score := diceCoefficient(queryLower, nameLower) * 100
	score += diceCoefficient(queryLower, descLower) * 50

	switch {
	case nameLower == queryLower:
		score += 50
	case descLower == queryLower:
		score += 30
	case strings.HasPrefix(nameLower, queryLower):
		score += 30
	case strings.HasPrefix(descLower, queryLower):
		score += 15
	case strings.Contains(nameLower, queryLower):
		score += 20
	case strings.Contains(descLower, queryLower):
		score += 10
	}

	words := strings.Fields(queryLower)
	if len(words) > 1 {
		nameHits, descHits := 0, 0
		nameSim, descSim := 0.0, 0.0

		for _, word := range words {
			if strings.Contains(nameLower, word) {
				nameHits++
				score += 15
			} else {
				nameSim += diceCoefficient(word, nameLower)
			}
			if strings.Contains(descLower, word) {
				descHits++
				score += 8
			} else {
				descSim += diceCoefficient(word, descLower)
			}
		}

		score += nameSim / float64(len(words)) * 20
		score += descSim / float64(len(words)) * 10

		if nameHits == len(words) {
			score += 25
		}
		if descHits == len(words) {
			score += 15
		}
	}
	return score
}

// bestMatch returns the highest-scoring dataset above the threshold.
func bestMatch(query string, datasets []types.Dataset) (types.Dataset, bool) {
	type scored struct {
		ds    types.Dataset
		score float64
	}

	var candidates []scored
	for _, ds := range datasets {
		if s := scoreDataset(query, ds); s > scoreThreshold {
			candidates = append(candidates, scored{ds: ds, score: s})
		}
	}
	if len(candidates) == 0 {
		return types.Dataset{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates[0].ds, true
}
