package model

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PredictProba returns the class distribution for every column of x.
func (m *Model) PredictProba(x mat.Matrix) (*mat.Dense, error) {
	out, _, err := m.Forward(x)
	return out, err
}

// Predict returns the most likely class for every column of x.
func (m *Model) Predict(x mat.Matrix) ([]int, error) {
	out, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ArgmaxCols(out), nil
}

// ArgmaxCols returns the row index of the largest entry in each column.
// Ties resolve to the lowest index.
func ArgmaxCols(a mat.Matrix) []int {
	r, c := a.Dims()
	idx := make([]int, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, a)
		idx[j] = floats.MaxIdx(col)
	}
	return idx
}
