package detector

import "sort"

// NonMaxSuppression keeps the highest scoring candidates, dropping any whose
// IoU with an already kept candidate exceeds iouThreshold. The result is
// sorted by confidence, descending; equal scores keep their input order.
func NonMaxSuppression(cands []Candidate, iouThreshold float64) []Candidate {
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) <= 1 {
		return sorted
	}

	kept := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.Box.IoU(c.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}
