// Package distance provides float64 distance kernels and row helpers used
// throughout the embedding engine. All inputs are flat row-major buffers;
// length agreement is the caller's responsibility.
package distance

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// L2 calculates the L2 (Euclidean) distance between two vectors.
func L2(a, b []float64) float64 {
	return math.Sqrt(SquaredL2(a, b))
}

// SquaredL2Rows calculates the squared L2 distance between rows i and j of a
// flat row-major matrix with the given number of columns.
func SquaredL2Rows(data []float64, i, j, cols int) float64 {
	var sum float64
	a := data[i*cols : (i+1)*cols]
	b := data[j*cols : (j+1)*cols]
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return sum
}

// Mean computes the per-column mean of a flat row-major matrix.
// The result has length cols. rows must be > 0.
func Mean(data []float64, rows, cols int) []float64 {
	mean := make([]float64, cols)
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		for j, v := range row {
			mean[j] += v
		}
	}
	inv := 1 / float64(rows)
	for j := range mean {
		mean[j] *= inv
	}
	return mean
}

// CenterInPlace subtracts the per-column mean from every row of a flat
// row-major matrix, shifting the point cloud to the origin.
func CenterInPlace(data []float64, rows, cols int) {
	mean := Mean(data, rows, cols)
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] -= mean[j]
		}
	}
}

// MaxAbs returns the largest absolute value in the buffer, or 0 for an empty
// buffer.
func MaxAbs(data []float64) float64 {
	var m float64
	for _, v := range data {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// ScaleInPlace multiplies every element of the buffer by f.
func ScaleInPlace(data []float64, f float64) {
	for i := range data {
		data[i] *= f
	}
}
