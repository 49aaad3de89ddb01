package fusion

import "strings"

// similarity returns a ratio in [0,1] between two strings, computed
// case-insensitively as 2*LCS/(len(a)+len(b)). Equivalent in spirit to
// a longest-matching-subsequence ratio: 1.0 means identical, 0.0 means
// nothing in common.
func similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0.0
	}
	return 2.0 * float64(lcsLength(a, b)) / float64(la+lb)
}

// lcsLength computes longest common subsequence length with a rolling
// single-row table.
func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// mergeNearDuplicates collapses values whose pairwise similarity
// exceeds the near-duplicate threshold, keeping the first occurrence.
// Order of survivors follows input order, so callers control which
// extractor's casing wins by concatenation order.
func mergeNearDuplicates(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, kept := range out {
			if similarity(kept, v) > nearDuplicateThreshold {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
