package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"digitnet/internal/activation"
)

// DefaultInputDim is the flattened 28x28 digit image.
const DefaultInputDim = 784

var (
	// ErrInvalidConfig is returned by New for an unusable architecture.
	ErrInvalidConfig = errors.New("model: invalid config")
	// ErrShapeMismatch aliases activation.ErrShapeMismatch.
	ErrShapeMismatch = activation.ErrShapeMismatch
)

// Config describes the architecture and the training knobs stored with it.
type Config struct {
	InputDim     int
	Sizes        []int
	Activations  []activation.Kind
	LearningRate float64
	BatchSize    int
}

// Validate checks the invariants New relies on.
func (c Config) Validate() error {
	if c.InputDim <= 0 {
		return fmt.Errorf("%w: input dim must be > 0 (got %d)", ErrInvalidConfig, c.InputDim)
	}
	if len(c.Sizes) == 0 {
		return fmt.Errorf("%w: at least one layer is required", ErrInvalidConfig)
	}
	if len(c.Activations) != len(c.Sizes) {
		return fmt.Errorf("%w: %d layer sizes but %d activations", ErrInvalidConfig, len(c.Sizes), len(c.Activations))
	}
	for i, n := range c.Sizes {
		if n <= 0 {
			return fmt.Errorf("%w: layer %d size must be > 0 (got %d)", ErrInvalidConfig, i, n)
		}
	}
	for i, k := range c.Activations {
		if !k.Valid() {
			return fmt.Errorf("%w: layer %d: %w", ErrInvalidConfig, i, activation.ErrUnsupportedActivation)
		}
	}
	// The output gradient is the closed form of softmax + cross-entropy.
	if last := c.Activations[len(c.Activations)-1]; last != activation.Softmax {
		return fmt.Errorf("%w: output layer must use softmax (got %s)", ErrInvalidConfig, last)
	}
	if c.LearningRate <= 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("%w: learning rate must be > 0 (got %g)", ErrInvalidConfig, c.LearningRate)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be > 0 (got %d)", ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// Layer holds one affine transform, its activation and the gradients from
// the most recent backward pass. DW and DB are nil until Backward runs.
type Layer struct {
	W   *mat.Dense
	B   *mat.Dense
	Act activation.Kind

	DW *mat.Dense
	DB *mat.Dense
}

// FanIn is the number of inputs the layer consumes.
func (l *Layer) FanIn() int {
	_, c := l.W.Dims()
	return c
}

// Units is the number of outputs the layer produces.
func (l *Layer) Units() int {
	r, _ := l.W.Dims()
	return r
}

// Model is a fully-connected feed-forward network. It is not safe for
// concurrent use.
type Model struct {
	// RunID identifies the training run that produced the parameters.
	RunID string

	InputDim     int
	LearningRate float64
	BatchSize    int
	Layers       []Layer
}

// New builds a model with He-initialised weights and zero biases drawn
// from rng.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m := &Model{
		InputDim:     cfg.InputDim,
		LearningRate: cfg.LearningRate,
		BatchSize:    cfg.BatchSize,
		Layers:       make([]Layer, len(cfg.Sizes)),
	}
	prev := cfg.InputDim
	for i, units := range cfg.Sizes {
		scale := math.Sqrt(2.0 / float64(prev))
		w := make([]float64, units*prev)
		for j := range w {
			w[j] = rng.NormFloat64() * scale
		}
		m.Layers[i] = Layer{
			W:   mat.NewDense(units, prev, w),
			B:   mat.NewDense(units, 1, nil),
			Act: cfg.Activations[i],
		}
		prev = units
	}
	return m, nil
}

// Config returns the architecture the model was built from.
func (m *Model) Config() Config {
	cfg := Config{
		InputDim:     m.InputDim,
		LearningRate: m.LearningRate,
		BatchSize:    m.BatchSize,
		Sizes:        make([]int, len(m.Layers)),
		Activations:  make([]activation.Kind, len(m.Layers)),
	}
	for i := range m.Layers {
		cfg.Sizes[i] = m.Layers[i].Units()
		cfg.Activations[i] = m.Layers[i].Act
	}
	return cfg
}

// NumLayers returns the number of parameterised layers.
func (m *Model) NumLayers() int {
	return len(m.Layers)
}

// Layer returns the i-th layer, counting from the input.
func (m *Model) Layer(i int) *Layer {
	return &m.Layers[i]
}

// OutputDim is the number of classes.
func (m *Model) OutputDim() int {
	return m.Layers[len(m.Layers)-1].Units()
}

// ZeroGrad drops all gradients so the next update requires a fresh backward pass.
func (m *Model) ZeroGrad() {
	for i := range m.Layers {
		m.Layers[i].DW = nil
		m.Layers[i].DB = nil
	}
}

// NumParams counts trainable scalars.
func (m *Model) NumParams() int {
	n := 0
	for i := range m.Layers {
		l := &m.Layers[i]
		n += l.Units()*l.FanIn() + l.Units()
	}
	return n
}
