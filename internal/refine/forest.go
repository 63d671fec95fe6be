package refine

import (
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n points, used to normalize isolation depths.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

type isoNode struct {
	feature     int
	split       float64
	left, right *isoNode
	size        int // leaf only
}

func (n *isoNode) leaf() bool {
	return n.left == nil
}

type isoForest struct {
	trees      []*isoNode
	sampleSize int
}

// growForest fits trees on subsamples of x drawn without replacement.
func growForest(x [][]float64, trees, maxSamples int, r *rand.Rand) *isoForest {
	n := len(x)
	psi := min(maxSamples, n)
	limit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	f := &isoForest{trees: make([]*isoNode, trees), sampleSize: psi}
	for t := range f.trees {
		sample := r.Perm(n)[:psi]
		f.trees[t] = growTree(x, sample, 0, limit, r)
	}
	return f
}

func growTree(x [][]float64, idx []int, depth, limit int, r *rand.Rand) *isoNode {
	if depth >= limit || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	// Only features that still vary within the node can split it.
	var candidates []int
	var lows, highs []float64
	for j := range x[idx[0]] {
		lo, hi := x[idx[0]][j], x[idx[0]][j]
		for _, i := range idx[1:] {
			lo = math.Min(lo, x[i][j])
			hi = math.Max(hi, x[i][j])
		}
		if hi > lo {
			candidates = append(candidates, j)
			lows = append(lows, lo)
			highs = append(highs, hi)
		}
	}
	if len(candidates) == 0 {
		return &isoNode{size: len(idx)}
	}

	c := r.Intn(len(candidates))
	feature := candidates[c]
	split := lows[c] + r.Float64()*(highs[c]-lows[c])

	var left, right []int
	for _, i := range idx {
		if x[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &isoNode{
		feature: feature,
		split:   split,
		left:    growTree(x, left, depth+1, limit, r),
		right:   growTree(x, right, depth+1, limit, r),
	}
}

func (n *isoNode) pathLength(row []float64) float64 {
	depth := 0
	for !n.leaf() {
		if row[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// scores returns the anomaly score of every row, in (0, 1]. Higher is more
// anomalous; 0.5 is returned for all rows when the sample is too small to
// normalize.
func (f *isoForest) scores(x [][]float64) []float64 {
	out := make([]float64, len(x))
	norm := averagePathLength(f.sampleSize)
	for i, row := range x {
		if norm == 0 {
			out[i] = 0.5
			continue
		}
		total := 0.0
		for _, t := range f.trees {
			total += t.pathLength(row)
		}
		out[i] = math.Pow(2, -total/float64(len(f.trees))/norm)
	}
	return out
}

// flagAnomalies marks rows whose negated score falls strictly below the
// contamination percentile of negated scores.
func flagAnomalies(scores []float64, contamination float64) []bool {
	neg := make([]float64, len(scores))
	for i, s := range scores {
		neg[i] = -s
	}
	offset := percentile(neg, contamination*100)

	out := make([]bool, len(scores))
	for i := range neg {
		out[i] = neg[i] < offset
	}
	return out
}

// percentile returns the p-th percentile of values with linear interpolation
// between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
