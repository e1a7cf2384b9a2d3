package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"digitnet/internal/activation"
)

// Backward fills DW and DB of every layer from a forward pass over the same
// batch. aL is the softmax output, y the one-hot labels. The output layer
// starts from dZ = aL - y, the closed-form gradient of softmax with
// cross-entropy, so its activation derivative is never applied.
func (m *Model) Backward(aL, y *mat.Dense, cache *Cache) error {
	if err := m.checkBackward(aL, y, cache); err != nil {
		return err
	}
	_, batch := y.Dims()
	inv := 1 / float64(batch)

	dZ := new(mat.Dense)
	dZ.Sub(aL, y)
	for i := len(m.Layers) - 1; i >= 0; i-- {
		l := &m.Layers[i]
		aPrev := cache.APrev[i]

		dW := mat.NewDense(l.Units(), l.FanIn(), nil)
		dW.Mul(dZ, aPrev.T())
		dW.Scale(inv, dW)

		db := mat.NewDense(l.Units(), 1, nil)
		for r := 0; r < l.Units(); r++ {
			db.Set(r, 0, inv*mat.Sum(dZ.RowView(r)))
		}

		l.DW = dW
		l.DB = db

		if i == 0 {
			break
		}
		var dA mat.Dense
		dA.Mul(l.W.T(), dZ)
		next, err := activation.Backward(m.Layers[i-1].Act, &dA, cache.Z[i-1])
		if err != nil {
			return fmt.Errorf("layer %d: %w", i-1, err)
		}
		dZ = next
	}
	return nil
}

func (m *Model) checkBackward(aL, y *mat.Dense, cache *Cache) error {
	if cache == nil || cache.Len() != len(m.Layers) || len(cache.APrev) != len(m.Layers) {
		return fmt.Errorf("%w: cache does not cover %d layers", ErrShapeMismatch, len(m.Layers))
	}
	ar, ac := aL.Dims()
	yr, yc := y.Dims()
	if ar != yr || ac != yc {
		return fmt.Errorf("%w: output is %dx%d, labels are %dx%d", ErrShapeMismatch, ar, ac, yr, yc)
	}
	if ar != m.OutputDim() {
		return fmt.Errorf("%w: output has %d rows, model has %d classes", ErrShapeMismatch, ar, m.OutputDim())
	}
	for i := range m.Layers {
		l := &m.Layers[i]
		if cache.Z[i] == nil || cache.APrev[i] == nil {
			return fmt.Errorf("%w: layer %d missing from cache", ErrShapeMismatch, i)
		}
		zr, zc := cache.Z[i].Dims()
		pr, pc := cache.APrev[i].Dims()
		if zr != l.Units() || zc != yc {
			return fmt.Errorf("%w: layer %d cached Z is %dx%d, want %dx%d", ErrShapeMismatch, i, zr, zc, l.Units(), yc)
		}
		if pr != l.FanIn() || pc != yc {
			return fmt.Errorf("%w: layer %d cached input is %dx%d, want %dx%d", ErrShapeMismatch, i, pr, pc, l.FanIn(), yc)
		}
	}
	return nil
}
