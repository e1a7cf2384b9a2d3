// Package dataset supplies column-aligned example matrices to the trainer:
// inputs are features x N, labels are one-hot classes x N, and column j of
// one always belongs with column j of the other.
package dataset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// ImageSize is the side of a digit image.
	ImageSize = 28
	// Features is the flattened image length.
	Features = ImageSize * ImageSize
	// Classes is the number of digit labels.
	Classes = 10
)

// ErrMisaligned indicates inputs and labels do not pair up column for column.
var ErrMisaligned = errors.New("dataset: inputs and labels are misaligned")

// Dataset pairs an input matrix with its one-hot labels.
type Dataset struct {
	X *mat.Dense
	Y *mat.Dense
}

// New validates that x and y have the same, non-zero number of columns.
func New(x, y *mat.Dense) (Dataset, error) {
	if x == nil || y == nil {
		return Dataset{}, fmt.Errorf("%w: nil matrix", ErrMisaligned)
	}
	_, xc := x.Dims()
	_, yc := y.Dims()
	if xc != yc {
		return Dataset{}, fmt.Errorf("%w: %d input columns, %d label columns", ErrMisaligned, xc, yc)
	}
	return Dataset{X: x, Y: y}, nil
}

// FromSamples builds a dataset from per-example feature rows and class indices.
func FromSamples(inputs [][]float64, labels []int, classes int) (Dataset, error) {
	if len(inputs) != len(labels) {
		return Dataset{}, fmt.Errorf("%w: %d inputs, %d labels", ErrMisaligned, len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return Dataset{}, errors.New("dataset: no samples")
	}
	features := len(inputs[0])
	x := mat.NewDense(features, len(inputs), nil)
	for j, in := range inputs {
		if len(in) != features {
			return Dataset{}, fmt.Errorf("sample %d has %d features, want %d", j, len(in), features)
		}
		x.SetCol(j, in)
	}
	y, err := OneHot(labels, classes)
	if err != nil {
		return Dataset{}, err
	}
	return Dataset{X: x, Y: y}, nil
}

// OneHot encodes class indices as columns of a classes x len(labels) matrix.
func OneHot(labels []int, classes int) (*mat.Dense, error) {
	if len(labels) == 0 {
		return nil, errors.New("dataset: no labels")
	}
	y := mat.NewDense(classes, len(labels), nil)
	for j, l := range labels {
		if l < 0 || l >= classes {
			return nil, fmt.Errorf("label %d at column %d out of range [0, %d)", l, j, classes)
		}
		y.Set(l, j, 1)
	}
	return y, nil
}

// Len returns the number of examples.
func (d Dataset) Len() int {
	_, c := d.X.Dims()
	return c
}

// Columns copies the selected examples, in the given order, into a new dataset.
func (d Dataset) Columns(idx []int) Dataset {
	xr, _ := d.X.Dims()
	yr, _ := d.Y.Dims()
	x := mat.NewDense(xr, len(idx), nil)
	y := mat.NewDense(yr, len(idx), nil)
	xcol := make([]float64, xr)
	ycol := make([]float64, yr)
	for j, src := range idx {
		x.SetCol(j, mat.Col(xcol, src, d.X))
		y.SetCol(j, mat.Col(ycol, src, d.Y))
	}
	return Dataset{X: x, Y: y}
}

// Range copies examples [from, to) into a new dataset.
func (d Dataset) Range(from, to int) Dataset {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return d.Columns(idx)
}

// Split keeps the first (1-ratio) share of examples for training and the
// rest for validation. Both sides get at least one example.
func (d Dataset) Split(ratio float64) (Dataset, Dataset, error) {
	n := d.Len()
	if ratio <= 0 || ratio >= 1 {
		return Dataset{}, Dataset{}, fmt.Errorf("split ratio must be in (0, 1) (got %g)", ratio)
	}
	if n < 2 {
		return Dataset{}, Dataset{}, fmt.Errorf("cannot split %d examples", n)
	}
	cut := int(float64(n) * (1 - ratio))
	if cut < 1 {
		cut = 1
	}
	if cut > n-1 {
		cut = n - 1
	}
	return d.Range(0, cut), d.Range(cut, n), nil
}

// Labels returns the class index of every example.
func (d Dataset) Labels() []int {
	r, c := d.Y.Dims()
	out := make([]int, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		out[j] = floats.MaxIdx(mat.Col(col, j, d.Y))
	}
	return out
}
