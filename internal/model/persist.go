package model

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"

	"digitnet/internal/activation"
)

const snapshotVersion = 1

// ErrCorruptSnapshot is returned by Load when the decoded data is inconsistent.
var ErrCorruptSnapshot = errors.New("model: corrupt snapshot")

type snapshot struct {
	Version      int
	RunID        string
	InputDim     int
	LearningRate float64
	BatchSize    int
	Layers       []layerSnapshot
}

type layerSnapshot struct {
	Units      int
	FanIn      int
	Activation string
	W          []float64
	B          []float64
}

// Save writes the architecture and parameters of m. Gradients are not saved.
func Save(w io.Writer, m *Model) error {
	snap := snapshot{
		Version:      snapshotVersion,
		RunID:        m.RunID,
		InputDim:     m.InputDim,
		LearningRate: m.LearningRate,
		BatchSize:    m.BatchSize,
		Layers:       make([]layerSnapshot, len(m.Layers)),
	}
	for i := range m.Layers {
		l := &m.Layers[i]
		snap.Layers[i] = layerSnapshot{
			Units:      l.Units(),
			FanIn:      l.FanIn(),
			Activation: l.Act.String(),
			W:          mat.DenseCopyOf(l.W).RawMatrix().Data,
			B:          mat.DenseCopyOf(l.B).RawMatrix().Data,
		}
	}
	if err := gob.NewEncoder(w).Encode(&snap); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads a model written by Save and validates it.
func Load(r io.Reader) (*Model, error) {
	var snap snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorruptSnapshot, snap.Version)
	}

	cfg := Config{
		InputDim:     snap.InputDim,
		LearningRate: snap.LearningRate,
		BatchSize:    snap.BatchSize,
	}
	prev := snap.InputDim
	layers := make([]Layer, len(snap.Layers))
	for i, ls := range snap.Layers {
		kind, err := activation.ParseKind(ls.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if ls.FanIn != prev || ls.Units <= 0 || len(ls.W) != ls.Units*ls.FanIn || len(ls.B) != ls.Units {
			return nil, fmt.Errorf("%w: layer %d has inconsistent shapes", ErrCorruptSnapshot, i)
		}
		cfg.Sizes = append(cfg.Sizes, ls.Units)
		cfg.Activations = append(cfg.Activations, kind)
		layers[i] = Layer{
			W:   mat.NewDense(ls.Units, ls.FanIn, ls.W),
			B:   mat.NewDense(ls.Units, 1, ls.B),
			Act: kind,
		}
		prev = ls.Units
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		RunID:        snap.RunID,
		InputDim:     snap.InputDim,
		LearningRate: snap.LearningRate,
		BatchSize:    snap.BatchSize,
		Layers:       layers,
	}, nil
}

// SaveFile writes m to path, replacing any existing file.
func SaveFile(path string, m *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := Save(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a model saved with SaveFile.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
