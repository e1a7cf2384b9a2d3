package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"digitnet/internal/activation"
	"digitnet/internal/model"
	"digitnet/internal/trainer"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	TrainCSV        string   `yaml:"train_csv"`
	TrainShards     string   `yaml:"train_shards"`
	ValidationCSV   string   `yaml:"validation_csv"`
	ValidationSplit float64  `yaml:"validation_split"`
	Synthetic       int      `yaml:"synthetic"`
	MaxSamples      int      `yaml:"max_samples"`
	Layers          []int    `yaml:"layers"`
	Activations     []string `yaml:"activations"`
	LearningRate    float64  `yaml:"learning_rate"`
	BatchSize       int      `yaml:"batch_size"`
	Epochs          int      `yaml:"epochs"`
	Policy          string   `yaml:"policy"`
	ReportEvery     int      `yaml:"report_every"`
	Seed            uint64   `yaml:"seed"`
	SavePath        string   `yaml:"save_path"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainCSV     string
	TrainShards  string
	Synthetic    int
	LearningRate float64
	BatchSize    int
	Epochs       int
	Policy       string
	Seed         uint64
	SavePath     string
}

// Default mirrors the reference 784-128-256-10 network.
func Default() *Config {
	return &Config{
		Layers:       []int{128, 256, 10},
		Activations:  []string{"relu", "relu", "softmax"},
		LearningRate: 0.05,
		BatchSize:    64,
		Epochs:       32,
		Policy:       trainer.MiniBatch.String(),
	}
}

// Load reads and validates a Config from YAML. Keys absent from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.TrainCSV != "" {
		c.TrainCSV = o.TrainCSV
	}
	if o.TrainShards != "" {
		c.TrainShards = o.TrainShards
	}
	if o.Synthetic > 0 {
		c.Synthetic = o.Synthetic
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.Policy != "" {
		c.Policy = o.Policy
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.SavePath != "" {
		c.SavePath = o.SavePath
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	sources := 0
	for _, set := range []bool{c.TrainCSV != "", c.TrainShards != "", c.Synthetic > 0} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of train_csv, train_shards or synthetic must be set")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("validation_split must be in [0, 1) (got %g)", c.ValidationSplit)
	}
	if c.ValidationCSV != "" && c.ValidationSplit > 0 {
		return errors.New("validation_csv and validation_split are mutually exclusive")
	}
	if _, err := trainer.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if _, err := c.ModelConfig(model.DefaultInputDim); err != nil {
		return err
	}
	if c.ReportEvery < 0 {
		c.ReportEvery = 0
	}
	return nil
}

// ModelConfig converts the architecture section into a model.Config.
func (c *Config) ModelConfig(inputDim int) (model.Config, error) {
	kinds := make([]activation.Kind, len(c.Activations))
	for i, name := range c.Activations {
		k, err := activation.ParseKind(name)
		if err != nil {
			return model.Config{}, fmt.Errorf("activations[%d]: %w", i, err)
		}
		kinds[i] = k
	}
	mc := model.Config{
		InputDim:     inputDim,
		Sizes:        append([]int(nil), c.Layers...),
		Activations:  kinds,
		LearningRate: c.LearningRate,
		BatchSize:    c.BatchSize,
	}
	if err := mc.Validate(); err != nil {
		return model.Config{}, err
	}
	return mc, nil
}

// RunConfig converts the schedule section into a trainer.RunConfig. The
// random source and logger are left for the caller.
func (c *Config) RunConfig() (trainer.RunConfig, error) {
	policy, err := trainer.ParsePolicy(c.Policy)
	if err != nil {
		return trainer.RunConfig{}, err
	}
	return trainer.RunConfig{
		Epochs:      c.Epochs,
		Policy:      policy,
		BatchSize:   c.BatchSize,
		ReportEvery: c.ReportEvery,
	}, nil
}
