package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"digitnet/internal/activation"
)

// Epsilon keeps log away from zero when a predicted probability underflows.
const Epsilon = 1e-12

// CrossEntropy returns -1/m * sum(y * log(aL)) over a batch of m columns.
func CrossEntropy(aL, y mat.Matrix) (float64, error) {
	if err := sameShape(aL, y); err != nil {
		return 0, err
	}
	r, c := y.Dims()
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if t := y.At(i, j); t != 0 {
				total += t * math.Log(math.Max(aL.At(i, j), Epsilon))
			}
		}
	}
	return -total / float64(c), nil
}

// Accuracy returns the fraction of columns whose argmax matches the label's.
func Accuracy(aL, y mat.Matrix) (float64, error) {
	if err := sameShape(aL, y); err != nil {
		return 0, err
	}
	_, c := y.Dims()
	hits := 0
	for j := 0; j < c; j++ {
		if Argmax(aL, j) == Argmax(y, j) {
			hits++
		}
	}
	return float64(hits) / float64(c), nil
}

// Argmax returns the row holding the largest value of column j. Ties go to
// the lowest row.
func Argmax(a mat.Matrix, j int) int {
	r, _ := a.Dims()
	return floats.MaxIdx(mat.Col(make([]float64, r), j, a))
}

func sameShape(aL, y mat.Matrix) error {
	ar, ac := aL.Dims()
	yr, yc := y.Dims()
	if ar != yr || ac != yc {
		return fmt.Errorf("%w: predictions are %dx%d, labels are %dx%d", activation.ErrShapeMismatch, ar, ac, yr, yc)
	}
	if yc == 0 || yr == 0 {
		return fmt.Errorf("%w: empty batch", activation.ErrShapeMismatch)
	}
	return nil
}
