package recognizer

import "math"

// DecodedSequence holds CTC-decoded indices and per-character probabilities.
type DecodedSequence struct {
	Indices       []int
	Probs         []float64
	Collapsed     []int
	CollapsedProb []float64
}

// argmaxMasked returns the index of the largest value among positions where
// allowed is true. A nil mask allows everything. It returns -1 if nothing is
// allowed.
func argmaxMasked(v []float32, allowed []bool) int {
	idx := -1
	var best float32
	for i, x := range v {
		if allowed != nil && (i >= len(allowed) || !allowed[i]) {
			continue
		}
		if idx == -1 || x > best {
			idx, best = i, x
		}
	}
	return idx
}

// softmaxProbOfIndex returns the probability of v[idx] among v. Values that
// already form a distribution are returned unchanged.
func softmaxProbOfIndex(v []float32, idx int) float64 {
	if len(v) == 0 || idx < 0 || idx >= len(v) {
		return 0
	}
	var sum float64
	lo, hi := v[0], v[0]
	for _, x := range v {
		sum += float64(x)
		lo, hi = min(lo, x), max(hi, x)
	}
	if sum > 0.99 && sum < 1.01 && lo >= 0 && hi <= 1 {
		return float64(v[idx])
	}

	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - hi))
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(float64(v[idx]-hi)) / denom
}

// CTCCollapse drops blanks and merges consecutive repeats.
func CTCCollapse(indices []int, probs []float64, blank int) ([]int, []float64) {
	outIdx := make([]int, 0, len(indices))
	outProb := make([]float64, 0, len(indices))
	prev := -1
	for i, idx := range indices {
		if idx == blank || idx < 0 {
			prev = idx
			continue
		}
		if idx == prev {
			continue
		}
		outIdx = append(outIdx, idx)
		p := 0.0
		if i < len(probs) {
			p = probs[i]
		}
		outProb = append(outProb, p)
		prev = idx
	}
	return outIdx, outProb
}

// squeezeTrailing drops trailing unit dimensions beyond rank 3.
func squeezeTrailing(shape []int64) []int64 {
	dims := append([]int64(nil), shape...)
	for len(dims) > 3 && dims[len(dims)-1] == 1 {
		dims = dims[:len(dims)-1]
	}
	return dims
}

// DecodeCTCGreedy decodes logits laid out as [N, T, C], or [N, C, T] when
// classesFirst is set. The argmax at every step only considers classes
// where allowed is true; nil allows all classes.
func DecodeCTCGreedy(logits []float32, shape []int64, blank int, classesFirst bool, allowed []bool) []DecodedSequence {
	dims := squeezeTrailing(shape)
	if len(dims) != 3 {
		return nil
	}
	n := int(dims[0])
	tDim, cDim := int(dims[1]), int(dims[2])
	if classesFirst {
		tDim, cDim = cDim, tDim
	}
	if n <= 0 || tDim <= 0 || cDim <= 0 || len(logits) < n*tDim*cDim {
		return nil
	}

	out := make([]DecodedSequence, n)
	perBatch := tDim * cDim
	step := make([]float32, cDim)
	for b := range n {
		start := b * perBatch
		indices := make([]int, tDim)
		probs := make([]float64, tDim)
		for t := range tDim {
			if classesFirst {
				for k := range cDim {
					step[k] = logits[start+k*tDim+t]
				}
			} else {
				copy(step, logits[start+t*cDim:start+(t+1)*cDim])
			}
			idx := argmaxMasked(step, allowed)
			indices[t] = idx
			probs[t] = softmaxProbOfIndex(step, idx)
		}
		coll, collProb := CTCCollapse(indices, probs, blank)
		out[b] = DecodedSequence{Indices: indices, Probs: probs, Collapsed: coll, CollapsedProb: collProb}
	}
	return out
}

// SequenceConfidence returns the mean of charProbs, or 0 when empty.
func SequenceConfidence(charProbs []float64) float64 {
	if len(charProbs) == 0 {
		return 0
	}
	var s float64
	for _, p := range charProbs {
		s += p
	}
	return s / float64(len(charProbs))
}

// classesFirst reports whether the class axis precedes the time axis,
// judged by which axis matches the expected class count.
func classesFirst(shape []int64, classes int) bool {
	dims := squeezeTrailing(shape)
	if len(dims) != 3 {
		return false
	}
	if int(dims[2]) == classes {
		return false
	}
	return int(dims[1]) == classes
}
