package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"digitnet/internal/activation"
)

// Cache keeps what Backward needs from a forward pass: for every layer the
// activation it consumed and its pre-activation output.
type Cache struct {
	APrev []*mat.Dense
	Z     []*mat.Dense
}

// Len returns the number of cached layers.
func (c *Cache) Len() int {
	return len(c.Z)
}

// Forward evaluates every layer in order on x (features x examples) and
// returns the output distribution (classes x examples) with its cache.
// The model is not modified.
func (m *Model) Forward(x mat.Matrix) (*mat.Dense, *Cache, error) {
	r, c := x.Dims()
	if r != m.InputDim {
		return nil, nil, fmt.Errorf("%w: input has %d rows, model expects %d", ErrShapeMismatch, r, m.InputDim)
	}
	if c == 0 {
		return nil, nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}

	cache := &Cache{
		APrev: make([]*mat.Dense, len(m.Layers)),
		Z:     make([]*mat.Dense, len(m.Layers)),
	}
	a := mat.DenseCopyOf(x)
	for i := range m.Layers {
		l := &m.Layers[i]
		z := affine(l.W, l.B, a)
		next, err := activation.Forward(l.Act, z)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", i, err)
		}
		cache.APrev[i] = a
		cache.Z[i] = z
		a = next
	}
	return a, cache, nil
}

// affine computes W·a + b, broadcasting the bias column across examples.
func affine(w, b, a *mat.Dense) *mat.Dense {
	var z mat.Dense
	z.Mul(w, a)
	z.Apply(func(i, _ int, v float64) float64 { return v + b.At(i, 0) }, &z)
	return &z
}
