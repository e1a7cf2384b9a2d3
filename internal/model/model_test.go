package model

import (
	"bytes"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"digitnet/internal/activation"
	"digitnet/internal/metrics"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func smallModel(t *testing.T, acts ...activation.Kind) *Model {
	t.Helper()
	if len(acts) == 0 {
		acts = []activation.Kind{activation.ReLU, activation.Softmax}
	}
	sizes := make([]int, len(acts))
	for i := range sizes {
		sizes[i] = 3 + i%2
	}
	sizes[len(sizes)-1] = 3
	m, err := New(Config{
		InputDim:     2,
		Sizes:        sizes,
		Activations:  acts,
		LearningRate: 0.01,
		BatchSize:    5,
	}, seeded(7))
	require.NoError(t, err)
	return m
}

func randomBatch(rng *rand.Rand, inputDim, classes, n int) (*mat.Dense, *mat.Dense) {
	x := mat.NewDense(inputDim, n, nil)
	y := mat.NewDense(classes, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < inputDim; i++ {
			x.Set(i, j, rng.NormFloat64())
		}
		y.Set(rng.IntN(classes), j, 1)
	}
	return x, y
}

func TestNewShapes(t *testing.T) {
	m, err := New(Config{
		InputDim:     DefaultInputDim,
		Sizes:        []int{64, 32, 10},
		Activations:  []activation.Kind{activation.ReLU, activation.ReLU, activation.Softmax},
		LearningRate: 0.05,
		BatchSize:    64,
	}, seeded(1))
	require.NoError(t, err)
	require.Equal(t, 3, m.NumLayers())

	prev := DefaultInputDim
	for i, want := range []int{64, 32, 10} {
		l := m.Layers[i]
		r, c := l.W.Dims()
		assert.Equal(t, want, r)
		assert.Equal(t, prev, c)
		br, bc := l.B.Dims()
		assert.Equal(t, want, br)
		assert.Equal(t, 1, bc)
		assert.Zero(t, mat.Sum(l.B))
		assert.Nil(t, l.DW)
		prev = want
	}
	assert.Equal(t, 10, m.OutputDim())
	assert.Equal(t, 64*784+64+32*64+32+10*32+10, m.NumParams())
}

func TestNewHeScale(t *testing.T) {
	m, err := New(Config{
		InputDim:     200,
		Sizes:        []int{100, 10},
		Activations:  []activation.Kind{activation.ReLU, activation.Softmax},
		LearningRate: 0.1,
		BatchSize:    1,
	}, seeded(3))
	require.NoError(t, err)

	data := m.Layers[0].W.RawMatrix().Data
	sumSq := 0.0
	for _, v := range data {
		sumSq += v * v
	}
	variance := sumSq / float64(len(data))
	assert.InDelta(t, 2.0/200, variance, 0.001)
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		InputDim:     4,
		Sizes:        []int{3, 2},
		Activations:  []activation.Kind{activation.Tanh, activation.Softmax},
		LearningRate: 0.1,
		BatchSize:    2,
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"no layers":        func(c *Config) { c.Sizes = nil; c.Activations = nil },
		"length mismatch":  func(c *Config) { c.Activations = c.Activations[:1] },
		"zero size":        func(c *Config) { c.Sizes = []int{0, 2} },
		"bad kind":         func(c *Config) { c.Activations = []activation.Kind{activation.Kind(99), activation.Softmax} },
		"non softmax head": func(c *Config) { c.Activations = []activation.Kind{activation.ReLU, activation.Sigmoid} },
		"zero lr":          func(c *Config) { c.LearningRate = 0 },
		"zero batch":       func(c *Config) { c.BatchSize = 0 },
		"zero input":       func(c *Config) { c.InputDim = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.Sizes = append([]int(nil), base.Sizes...)
			cfg.Activations = append([]activation.Kind(nil), base.Activations...)
			mutate(&cfg)
			_, err := New(cfg, seeded(1))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestForwardShapeAndCache(t *testing.T) {
	m := smallModel(t, activation.Sigmoid, activation.Tanh, activation.Softmax)
	x, _ := randomBatch(seeded(2), 2, 3, 6)

	out, cache, err := m.Forward(x)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 6, c)
	require.Equal(t, 3, cache.Len())
	assert.True(t, mat.Equal(x, cache.APrev[0]))
	for i := range m.Layers {
		zr, zc := cache.Z[i].Dims()
		assert.Equal(t, m.Layers[i].Units(), zr)
		assert.Equal(t, 6, zc)
	}

	for j := 0; j < c; j++ {
		assert.InDelta(t, 1.0, mat.Sum(out.ColView(j)), 1e-12)
	}
}

func TestForwardIsIdempotent(t *testing.T) {
	m := smallModel(t)
	x, _ := randomBatch(seeded(4), 2, 3, 5)
	w0 := mat.DenseCopyOf(m.Layers[0].W)

	first, _, err := m.Forward(x)
	require.NoError(t, err)
	second, _, err := m.Forward(x)
	require.NoError(t, err)

	assert.True(t, mat.Equal(first, second))
	assert.True(t, mat.Equal(w0, m.Layers[0].W))
	assert.Nil(t, m.Layers[0].DW)
}

func TestForwardRejectsWrongInputDim(t *testing.T) {
	m := smallModel(t)
	_, _, err := m.Forward(mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	for _, acts := range [][]activation.Kind{
		{activation.ReLU, activation.Softmax},
		{activation.Sigmoid, activation.Tanh, activation.Softmax},
		{activation.Softplus, activation.Softmax},
		{activation.Softmax},
	} {
		m := smallModel(t, acts...)
		x, y := randomBatch(seeded(11), 2, 3, 4)

		aL, cache, err := m.Forward(x)
		require.NoError(t, err)
		require.NoError(t, m.Backward(aL, y, cache))

		cost := func() float64 {
			out, _, err := m.Forward(x)
			if err != nil {
				panic(err)
			}
			c, err := metrics.CrossEntropy(out, y)
			if err != nil {
				panic(err)
			}
			return c
		}
		settings := &fd.Settings{Formula: fd.Central, Step: 1e-6}

		for i := range m.Layers {
			l := &m.Layers[i]
			for _, p := range []struct {
				param, grad *mat.Dense
			}{{l.W, l.DW}, {l.B, l.DB}} {
				data := p.param.RawMatrix().Data
				orig := append([]float64(nil), data...)
				numeric := fd.Gradient(nil, func(v []float64) float64 {
					copy(data, v)
					return cost()
				}, orig, settings)
				copy(data, orig)

				assert.InDeltaSlice(t, numeric, mat.DenseCopyOf(p.grad).RawMatrix().Data, 1e-4,
					"%v layer %d", acts, i)
			}
		}
	}
}

func TestBackwardOverwritesGradients(t *testing.T) {
	m := smallModel(t)
	rng := seeded(5)
	x1, y1 := randomBatch(rng, 2, 3, 5)
	x2, y2 := randomBatch(rng, 2, 3, 5)

	aL, cache, err := m.Forward(x1)
	require.NoError(t, err)
	require.NoError(t, m.Backward(aL, y1, cache))
	first := mat.DenseCopyOf(m.Layers[0].DW)

	aL, cache, err = m.Forward(x2)
	require.NoError(t, err)
	require.NoError(t, m.Backward(aL, y2, cache))
	assert.False(t, mat.Equal(first, m.Layers[0].DW))
}

func TestBackwardRejectsMismatchedCache(t *testing.T) {
	m := smallModel(t)
	x, y := randomBatch(seeded(6), 2, 3, 5)
	aL, cache, err := m.Forward(x)
	require.NoError(t, err)

	_, short := randomBatch(seeded(6), 2, 3, 4)
	assert.ErrorIs(t, m.Backward(aL, short, cache), ErrShapeMismatch)

	xOther, yOther := randomBatch(seeded(8), 2, 3, 7)
	aOther, _, err := m.Forward(xOther)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Backward(aOther, yOther, cache), ErrShapeMismatch)

	assert.ErrorIs(t, m.Backward(aL, y, &Cache{}), ErrShapeMismatch)
	assert.ErrorIs(t, m.Backward(aL, y, nil), ErrShapeMismatch)
}

// One gradient step on [4,3] relu/softmax with a small learning rate must
// lower the cost on the batch it was computed from.
func TestSingleStepDecreasesCost(t *testing.T) {
	m, err := New(Config{
		InputDim:     2,
		Sizes:        []int{4, 3},
		Activations:  []activation.Kind{activation.ReLU, activation.Softmax},
		LearningRate: 0.01,
		BatchSize:    5,
	}, seeded(21))
	require.NoError(t, err)
	x, y := randomBatch(seeded(22), 2, 3, 5)

	aL, cache, err := m.Forward(x)
	require.NoError(t, err)
	before, err := metrics.CrossEntropy(aL, y)
	require.NoError(t, err)
	require.NoError(t, m.Backward(aL, y, cache))

	for i := range m.Layers {
		l := &m.Layers[i]
		l.W.AddScaled(l.W, -m.LearningRate, l.DW)
		l.B.AddScaled(l.B, -m.LearningRate, l.DB)
	}

	aL, _, err = m.Forward(x)
	require.NoError(t, err)
	after, err := metrics.CrossEntropy(aL, y)
	require.NoError(t, err)
	assert.Less(t, after, before)
}

func TestPredict(t *testing.T) {
	m := smallModel(t)
	x, _ := randomBatch(seeded(9), 2, 3, 8)

	proba, err := m.PredictProba(x)
	require.NoError(t, err)
	classes, err := m.Predict(x)
	require.NoError(t, err)
	require.Len(t, classes, 8)
	for j, k := range classes {
		for i := 0; i < 3; i++ {
			assert.LessOrEqual(t, proba.At(i, j), proba.At(k, j))
		}
	}

	assert.Equal(t, []int{1, 0}, ArgmaxCols(mat.NewDense(2, 2, []float64{0.2, 0.5, 0.8, 0.5})))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := smallModel(t, activation.Tanh, activation.Softmax)
	m.RunID = "run-1"
	x, y := randomBatch(seeded(10), 2, 3, 4)
	aL, cache, err := m.Forward(x)
	require.NoError(t, err)
	require.NoError(t, m.Backward(aL, y, cache))

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, m))
	loaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, m.Config(), loaded.Config())
	assert.Equal(t, "run-1", loaded.RunID)
	for i := range loaded.Layers {
		assert.Nil(t, loaded.Layers[i].DW)
		assert.Nil(t, loaded.Layers[i].DB)
	}
	want, err := m.PredictProba(x)
	require.NoError(t, err)
	got, err := loaded.PredictProba(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestSaveLoadFile(t *testing.T) {
	m := smallModel(t)
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, SaveFile(path, m))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m.Layers[1].W, loaded.Layers[1].W))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("not a model")))
	assert.Error(t, err)
}

func TestZeroGrad(t *testing.T) {
	m := smallModel(t)
	x, y := randomBatch(seeded(12), 2, 3, 3)
	aL, cache, err := m.Forward(x)
	require.NoError(t, err)
	require.NoError(t, m.Backward(aL, y, cache))
	require.NotNil(t, m.Layers[0].DW)
	m.ZeroGrad()
	assert.Nil(t, m.Layers[0].DW)
	assert.Nil(t, m.Layers[1].DB)
}

func TestLayerAliasesParameters(t *testing.T) {
	m := smallModel(t)
	l := m.Layer(0)
	l.B.Set(0, 0, 3)
	assert.Equal(t, 3.0, m.Layers[0].B.At(0, 0))
	assert.Equal(t, m.InputDim, l.FanIn())
}
