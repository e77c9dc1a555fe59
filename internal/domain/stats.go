package domain

import "math"

// Mean of a series. 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SampleStdDev is the n-1 standard deviation. 0 with fewer than 2 samples.
func SampleStdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Pearson computes the correlation coefficient of two equal-length series:
//
//	Σ(dx·dy) / sqrt(Σdx² · Σdy²)
//
// where dx,dy are deviations from each series' mean. Returns 0 when either
// series has zero variance.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}
	mx, my := Mean(xs), Mean(ys)

	var num, ssx, ssy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		num += dx * dy
		ssx += dx * dx
		ssy += dy * dy
	}
	if ssx == 0 || ssy == 0 {
		return 0
	}
	return num / math.Sqrt(ssx*ssy)
}

// Percentile returns the p-th percentile (0-1) of xs using nearest-rank on
// a sorted copy. 0 for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
