package verify

import "strings"

// textSimilarity returns a normalized similarity in [0,1] between two texts.
// Empty input scores 0; equal (case-insensitive, trimmed) input scores 1;
// otherwise the Ratcliff-Obershelp matching ratio.
func textSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	aClean := strings.ToLower(strings.TrimSpace(a))
	bClean := strings.ToLower(strings.TrimSpace(b))
	if aClean == bClean {
		return 1
	}
	return matchRatio(aClean, bClean)
}

// matchRatio is 2*M/T where M is the total length of matching blocks found
// by recursively taking the longest common substring, and T is the combined
// length of both inputs.
func matchRatio(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}

	b2j := make(map[byte][]int, 64)
	for j := 0; j < len(b); j++ {
		b2j[b[j]] = append(b2j[b[j]], j)
	}

	type span struct{ alo, ahi, blo, bhi int }
	stack := []span{{0, len(a), 0, len(b)}}
	total := 0
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		i, j, k := longestMatch(a, b2j, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		stack = append(stack,
			span{s.alo, i, s.blo, j},
			span{i + k, s.ahi, j + k, s.bhi},
		)
	}
	return 2 * float64(total) / float64(len(a)+len(b))
}

// longestMatch finds the longest matching block within a[alo:ahi] and
// b[blo:bhi], preferring the earliest on ties.
func longestMatch(a string, b2j map[byte][]int, alo, ahi, blo, bhi int) (besti, bestj, bestSize int) {
	besti, bestj = alo, blo
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		next := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestSize {
				besti, bestj, bestSize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}
	return besti, bestj, bestSize
}
