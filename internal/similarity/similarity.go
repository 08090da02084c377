// Package similarity provides string-distance-based duplicate detection
// for planner-generated tasks. No dependency in the retrieved example pack
// implements Levenshtein distance (the closest match, conductor's
// similarity package, calls an LLM rather than a string-distance library),
// so this is a standard-library implementation -- see DESIGN.md.
package similarity

// Levenshtein computes the edit distance between a and b using the
// classic dynamic-programming algorithm with a rolling two-row buffer.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Similarity normalizes Levenshtein distance into a 0..1 score, where 1
// means identical: 1 - distance/max(len(a), len(b)). Two empty strings are
// defined as identical.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 1
	}
	dist := Levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// DuplicateThreshold is the similarity score at or above which two task
// descriptions are treated as duplicates during planning.
const DuplicateThreshold = 0.9

// IsDuplicate reports whether a and b are similar enough to be considered
// duplicate task descriptions.
func IsDuplicate(a, b string) bool {
	return Similarity(a, b) >= DuplicateThreshold
}

// FindDuplicates returns, for each candidate, the index of the first
// existing entry it duplicates, or -1 if it is distinct from all of them.
func FindDuplicates(existing, candidates []string) []int {
	result := make([]int, len(candidates))
	for i, c := range candidates {
		result[i] = -1
		for j, e := range existing {
			if IsDuplicate(c, e) {
				result[i] = j
				break
			}
		}
	}
	return result
}
