// Package activation implements the elementwise non-linearities used by the
// network together with their derivatives.
//
// Matrices are laid out column-major in the batch sense: every column is one
// example, every row one unit. All functions allocate their result and never
// modify their inputs.
package activation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrUnsupportedActivation is returned for a Kind outside the closed set.
var ErrUnsupportedActivation = errors.New("unsupported activation")

// ErrShapeMismatch is returned when two operands disagree on dimensions.
// The model and metrics packages reuse this value so errors.Is works
// across the whole pipeline.
var ErrShapeMismatch = errors.New("shape mismatch")

// Kind selects an activation function.
type Kind int

const (
	ReLU Kind = iota
	Sigmoid
	Tanh
	Softplus
	Softmax
)

var names = [...]string{
	ReLU:     "relu",
	Sigmoid:  "sigmoid",
	Tanh:     "tanh",
	Softplus: "softplus",
	Softmax:  "softmax",
}

// String returns the lowercase name used in configs and saved models.
func (k Kind) String() string {
	if k.Valid() {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k >= ReLU && k <= Softmax
}

// ParseKind maps a name such as "relu" or "SOFTMAX" to its Kind.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, s := range names {
		if s == n {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedActivation, name)
}

// MarshalText lets Kind appear as a string in YAML and other text encodings.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedActivation, int(k))
	}
	return []byte(names[k]), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type pair struct {
	forward  func(z *mat.Dense) *mat.Dense
	backward func(dA, z *mat.Dense) *mat.Dense
}

var table = [...]pair{
	ReLU:     {forward: elementwise(relu), backward: chain(reluPrime)},
	Sigmoid:  {forward: elementwise(sigmoid), backward: chain(sigmoidPrime)},
	Tanh:     {forward: elementwise(math.Tanh), backward: chain(tanhPrime)},
	Softplus: {forward: elementwise(softplus), backward: chain(sigmoid)},
	Softmax:  {forward: softmax, backward: softmaxBackward},
}

// Forward applies the activation to the pre-activation matrix z.
func Forward(k Kind, z *mat.Dense) (*mat.Dense, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedActivation, int(k))
	}
	return table[k].forward(z), nil
}

// Backward returns dZ, the gradient with respect to the pre-activation z,
// given the upstream gradient dA with respect to the activation output.
func Backward(k Kind, dA, z *mat.Dense) (*mat.Dense, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedActivation, int(k))
	}
	ar, ac := dA.Dims()
	zr, zc := z.Dims()
	if ar != zr || ac != zc {
		return nil, fmt.Errorf("%w: dA is %dx%d, z is %dx%d", ErrShapeMismatch, ar, ac, zr, zc)
	}
	return table[k].backward(dA, z), nil
}

func elementwise(fn func(float64) float64) func(*mat.Dense) *mat.Dense {
	return func(z *mat.Dense) *mat.Dense {
		var out mat.Dense
		out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, z)
		return &out
	}
}

// chain builds dZ = dA * f'(z) from the local derivative f'.
func chain(prime func(float64) float64) func(dA, z *mat.Dense) *mat.Dense {
	return func(dA, z *mat.Dense) *mat.Dense {
		var out mat.Dense
		out.Apply(func(i, j int, v float64) float64 { return dA.At(i, j) * prime(v) }, z)
		return &out
	}
}

func relu(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func reluPrime(v float64) float64 {
	if v > 0 {
		return 1
	}
	return 0
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func sigmoidPrime(v float64) float64 {
	s := sigmoid(v)
	return s * (1 - s)
}

func tanhPrime(v float64) float64 {
	t := math.Tanh(v)
	return 1 - t*t
}

// softplus computes log(1+e^v) without overflowing for large v.
func softplus(v float64) float64 {
	if v > 0 {
		return v + math.Log1p(math.Exp(-v))
	}
	return math.Log1p(math.Exp(v))
}

// softmax normalises every column independently. The column max is
// subtracted before exponentiating so large logits cannot overflow.
func softmax(z *mat.Dense) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, z)
		floats.AddConst(-floats.Max(col), col)
		for i, v := range col {
			col[i] = math.Exp(v)
		}
		floats.Scale(1/floats.Sum(col), col)
		out.SetCol(j, col)
	}
	return out
}

// softmaxBackward contracts dA with the softmax Jacobian column by column:
// dZ = s * (dA - <dA, s>).
func softmaxBackward(dA, z *mat.Dense) *mat.Dense {
	s := softmax(z)
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	sc := make([]float64, r)
	dc := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(sc, j, s)
		mat.Col(dc, j, dA)
		dot := floats.Dot(sc, dc)
		floats.AddConst(-dot, dc)
		floats.Mul(dc, sc)
		out.SetCol(j, dc)
	}
	return out
}
