// Package optim applies gradients produced by a backward pass.
package optim

import (
	"errors"
	"fmt"

	"digitnet/internal/model"
)

// ErrMissingGradient is returned when Step runs before Backward filled a layer.
var ErrMissingGradient = errors.New("optim: missing gradient")

// SGD implements plain gradient descent:
//
//	W = W - lr * dW
//	b = b - lr * db
type SGD struct {
	lr float64
}

// NewSGD creates a gradient descent optimizer. A non-positive lr falls back
// to 0.01.
func NewSGD(lr float64) *SGD {
	if lr <= 0 {
		lr = 0.01
	}
	return &SGD{lr: lr}
}

// Step updates every layer of m in place. All gradients are checked before
// any parameter is touched, so a failed Step leaves m unchanged.
func (s *SGD) Step(m *model.Model) error {
	for i := range m.Layers {
		l := &m.Layers[i]
		if l.DW == nil || l.DB == nil {
			return fmt.Errorf("%w: layer %d", ErrMissingGradient, i)
		}
		wr, wc := l.W.Dims()
		gr, gc := l.DW.Dims()
		br, bc := l.B.Dims()
		dr, dc := l.DB.Dims()
		if wr != gr || wc != gc || br != dr || bc != dc {
			return fmt.Errorf("%w: layer %d gradient does not match parameters", model.ErrShapeMismatch, i)
		}
	}
	for i := range m.Layers {
		l := &m.Layers[i]
		l.W.AddScaled(l.W, -s.lr, l.DW)
		l.B.AddScaled(l.B, -s.lr, l.DB)
	}
	return nil
}

// Update applies one step at the model's own learning rate.
func Update(m *model.Model) error {
	return NewSGD(m.LearningRate).Step(m)
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}
