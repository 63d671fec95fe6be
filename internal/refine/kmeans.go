package refine

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// kmeans clusters the rows of x into k groups and returns one label per row.
// It keeps the lowest-inertia result over restarts; ties keep the earlier
// restart.
func kmeans(x [][]float64, k, restarts, maxIter int, tol float64, r *rand.Rand) []int {
	n := len(x)
	if n == 0 || k <= 0 {
		return make([]int, n)
	}
	threshold := tol * meanVariance(x)

	var best []int
	bestInertia := math.Inf(1)
	for run := 0; run < restarts; run++ {
		centers := seedCenters(x, k, r)
		labels, inertia := lloyd(x, centers, maxIter, threshold)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best
}

func meanVariance(x [][]float64) float64 {
	cols := len(x[0])
	if cols == 0 {
		return 0
	}
	col := make([]float64, len(x))
	total := 0.0
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		total += stat.PopVariance(col, nil)
	}
	return total / float64(cols)
}

// seedCenters picks k initial centers with k-means++: each center after the
// first is drawn with probability proportional to its squared distance from
// the nearest center chosen so far.
func seedCenters(x [][]float64, k int, r *rand.Rand) [][]float64 {
	n := len(x)
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(x[r.Intn(n)]))

	dist := make([]float64, n)
	for i := range x {
		dist[i] = sqDist(x[i], centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		next := r.Intn(n)
		if total > 0 {
			target := r.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc > target {
					next = i
					break
				}
			}
		}
		c := clone(x[next])
		centers = append(centers, c)
		for i := range x {
			dist[i] = math.Min(dist[i], sqDist(x[i], c))
		}
	}
	return centers
}

// lloyd refines centers in place until their total squared shift drops to
// threshold or maxIter is reached. Empty clusters keep their center.
func lloyd(x [][]float64, centers [][]float64, maxIter int, threshold float64) ([]int, float64) {
	n, k := len(x), len(centers)
	cols := len(x[0])
	labels := make([]int, n)
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, cols)
	}
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		assign(x, centers, labels)

		for c := range sums {
			floats.Scale(0, sums[c])
			counts[c] = 0
		}
		for i, l := range labels {
			floats.Add(sums[l], x[i])
			counts[l]++
		}

		shift := 0.0
		for c := range centers {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centers[c], sums[c])
			copy(centers[c], sums[c])
		}
		if shift <= threshold {
			break
		}
	}

	inertia := assign(x, centers, labels)
	return labels, inertia
}

// assign labels every row with its nearest center, lowest index on ties, and
// returns the inertia.
func assign(x [][]float64, centers [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, row := range x {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(row, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
