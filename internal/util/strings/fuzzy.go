package strings

import (
	"sort"
	"strings"
)

// DefaultMaxDistance is the largest edit distance Similar accepts by default
const DefaultMaxDistance = 3

type match struct {
	value    string
	distance int
}

// Similar returns the candidates within maxDistance edits of target, closest
// first; ties keep candidate order. Matching ignores case. A maxDistance of
// zero means DefaultMaxDistance.
//
// Example:
//
//	Similar("Emplyee", []string{"Employee", "Person"}, 0)
//	// Returns: ["Employee"]
func Similar(target string, candidates []string, maxDistance int) []string {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}

	var matches []match
	lower := strings.ToLower(target)
	for _, candidate := range candidates {
		if dist := Levenshtein(lower, strings.ToLower(candidate)); dist <= maxDistance {
			matches = append(matches, match{value: candidate, distance: dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	result := make([]string, len(matches))
	for i, m := range matches {
		result[i] = m.value
	}
	return result
}

// Closest returns the single closest candidate, or "" when none is within
// maxDistance
func Closest(target string, candidates []string, maxDistance int) string {
	if matches := Similar(target, candidates, maxDistance); len(matches) > 0 {
		return matches[0]
	}
	return ""
}

// Levenshtein returns the minimum number of single-rune insertions,
// deletions or substitutions turning a into b.
//
//	Levenshtein("kitten", "sitting") // 3
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
