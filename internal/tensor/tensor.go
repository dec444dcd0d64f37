package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is a dense row-major matrix of float64 values. The pipeline only
// needs rank-1 and rank-2 tensors: parameter matrices, feature frames and
// per-timestep logit rows.
type Tensor struct {
	Data []float64
	Rows int
	Cols int
}

// New allocates a zeroed rows x cols tensor.
func New(rows, cols int) *Tensor {
	if rows <= 0 {
		rows = 1
	}
	if cols <= 0 {
		cols = 1
	}
	return &Tensor{
		Data: make([]float64, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

// FromRows builds a tensor from a slice of equally sized rows.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("tensor: no rows")
	}
	cols := len(rows[0])
	t := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("tensor: row %d has %d columns, want %d", i, len(r), cols)
		}
		copy(t.Data[i*cols:(i+1)*cols], r)
	}
	return t, nil
}

// At returns the element at (i, j). No bounds checking beyond the slice's own.
func (t *Tensor) At(i, j int) float64 {
	return t.Data[i*t.Cols+j]
}

// Set stores v at (i, j).
func (t *Tensor) Set(i, j int, v float64) {
	t.Data[i*t.Cols+j] = v
}

// Row returns a view of row i. Mutating the returned slice mutates the tensor.
func (t *Tensor) Row(i int) []float64 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	nt := New(t.Rows, t.Cols)
	copy(nt.Data, t.Data)
	return nt
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// Zero resets every element to zero.
func (t *Tensor) Zero() {
	t.Fill(0)
}

// FillRandNorm fills the tensor with normally distributed values.
func (t *Tensor) FillRandNorm(mean, std float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()*std + mean
	}
}

// Mean returns the arithmetic mean of all elements, zero for an empty tensor.
func (t *Tensor) Mean() float64 {
	if len(t.Data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range t.Data {
		sum += v
	}
	return sum / float64(len(t.Data))
}

// Softmax returns a new tensor whose every row is the softmax of the
// corresponding input row, computed with the usual max-shift for stability.
func (t *Tensor) Softmax() *Tensor {
	out := New(t.Rows, t.Cols)
	for i := 0; i < t.Rows; i++ {
		row := t.Row(i)
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		sum := 0.0
		outRow := out.Row(i)
		for j, v := range row {
			e := math.Exp(v - max)
			outRow[j] = e
			sum += e
		}
		for j := range outRow {
			outRow[j] /= sum
		}
	}
	return out
}

// ArgMaxRows returns, for every row, the column index of the maximum value.
func (t *Tensor) ArgMaxRows() []int {
	out := make([]int, t.Rows)
	for i := 0; i < t.Rows; i++ {
		row := t.Row(i)
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// MatMul computes out = a x b. Shapes must already agree; this is a hot loop
// with no bounds checking beyond the slices' own.
func MatMul(a, b, out *Tensor) {
	m, k, n := a.Rows, a.Cols, b.Cols
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for l := 0; l < k; l++ {
				sum += a.Data[i*k+l] * b.Data[l*n+j]
			}
			out.Data[i*n+j] = sum
		}
	}
}
