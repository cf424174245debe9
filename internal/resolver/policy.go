package resolver

import "strings"

// SelectFunc picks one candidate from a tier's results.
type SelectFunc func(cands []Candidate, want Quality, force bool) (Candidate, bool)

// Fallback orders are product policy and intentionally asymmetric.
var fallbackOrder = map[Quality][]Quality{
	Quality2160p: {Quality2160p, Quality1080p, Quality720p, Quality480p, Quality3D},
	Quality1080p: {Quality1080p, Quality720p, Quality480p, Quality2160p, Quality3D},
	Quality720p:  {Quality720p, Quality480p, Quality1080p, Quality2160p, Quality3D},
	Quality480p:  {Quality480p, Quality720p, Quality1080p, Quality2160p, Quality3D},
}

// FallbackOrder returns the order in which qualities are tried for want.
// Unknown requests use the 1080p order.
func FallbackOrder(want Quality) []Quality {
	if order, ok := fallbackOrder[want]; ok {
		return order
	}
	return fallbackOrder[Quality1080p]
}

// SelectBestCandidate implements the default quality policy. With force set
// only an exact match is accepted. Otherwise the fallback order is walked and,
// if none of those qualities is present, the first candidate wins.
func SelectBestCandidate(cands []Candidate, want Quality, force bool) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	if force {
		return findQuality(cands, want)
	}
	for _, q := range FallbackOrder(want) {
		if c, ok := findQuality(cands, q); ok {
			return c, true
		}
	}
	return cands[0], true
}

// SelectExactOrFirst prefers the requested quality and otherwise takes the
// first candidate unless force is set.
func SelectExactOrFirst(cands []Candidate, want Quality, force bool) (Candidate, bool) {
	if c, ok := findQuality(cands, want); ok {
		return c, true
	}
	if force || len(cands) == 0 {
		return Candidate{}, false
	}
	return cands[0], true
}

// SelectFirst takes the source's own ranking as final.
func SelectFirst(cands []Candidate, want Quality, force bool) (Candidate, bool) {
	for _, c := range cands {
		if !force || c.Quality == want {
			return c, true
		}
	}
	return Candidate{}, false
}

// PreferQualityInTop looks at the first n candidates (already ranked by the
// source) and returns the first whose release name mentions the requested
// quality, falling back to the top candidate.
func PreferQualityInTop(n int) SelectFunc {
	return func(cands []Candidate, want Quality, force bool) (Candidate, bool) {
		if len(cands) == 0 {
			return Candidate{}, false
		}
		top := cands
		if len(top) > n {
			top = top[:n]
		}
		for _, c := range top {
			if strings.Contains(strings.ToLower(c.Title), strings.ToLower(string(want))) {
				return c, true
			}
		}
		if force {
			return Candidate{}, false
		}
		return cands[0], true
	}
}

func findQuality(cands []Candidate, q Quality) (Candidate, bool) {
	for _, c := range cands {
		if c.Quality == q {
			return c, true
		}
	}
	return Candidate{}, false
}
