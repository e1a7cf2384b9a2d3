package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"digitnet/internal/dataset"
	"digitnet/internal/metrics"
	"digitnet/internal/model"
)

// Policy selects how an epoch is cut into gradient steps.
type Policy int

const (
	// MiniBatch shuffles every epoch and steps once per fixed-size batch.
	MiniBatch Policy = iota
	// WholeDataset steps once per epoch on the unshuffled data.
	WholeDataset
)

func (p Policy) String() string {
	switch p {
	case MiniBatch:
		return "minibatch"
	case WholeDataset:
		return "whole"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "minibatch" or "whole" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "minibatch", "":
		return MiniBatch, nil
	case "whole":
		return WholeDataset, nil
	}
	return 0, fmt.Errorf("trainer: unknown batching policy %q", s)
}

// Optimizer applies the gradients left on the model by Backward.
type Optimizer interface {
	Step(m *model.Model) error
}

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Epochs int
	Policy Policy
	// BatchSize overrides the model's batch size for MiniBatch when > 0.
	BatchSize int
	// ReportEvery logs every N epochs. Defaults to 1 for MiniBatch and 100
	// for WholeDataset.
	ReportEvery int
	// Rand drives the per-epoch shuffle. A nil Rand is seeded from the runtime.
	Rand  *rand.Rand
	RunID string
	Hooks Hooks
	// Logger defaults to the standard logger.
	Logger *log.Logger
}

// Result summarises a finished run.
type Result struct {
	RunID   string
	Epochs  int
	Steps   int
	History []EpochReport
}

// FinalCost is the average cost of the last epoch.
func (r Result) FinalCost() float64 {
	if len(r.History) == 0 {
		return 0
	}
	return r.History[len(r.History)-1].AvgCost
}

// Run trains mdl on train for cfg.Epochs epochs. Every batch goes through
// forward, cost, backward and update strictly in sequence. There is no
// early stopping; ctx is checked between batches.
func Run(ctx context.Context, mdl *model.Model, opt Optimizer, train dataset.Dataset, cfg RunConfig) (Result, error) {
	if cfg.Epochs <= 0 {
		return Result{}, errors.New("trainer: epochs must be > 0")
	}
	if mdl == nil || opt == nil {
		return Result{}, errors.New("trainer: model and optimizer are required")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	opts := dataset.SamplerOptions{}
	switch cfg.Policy {
	case MiniBatch:
		opts.Shuffle = true
		opts.Rand = cfg.Rand
		opts.BatchSize = cfg.BatchSize
		if opts.BatchSize <= 0 {
			opts.BatchSize = mdl.BatchSize
		}
		if cfg.ReportEvery <= 0 {
			cfg.ReportEvery = 1
		}
	case WholeDataset:
		if cfg.ReportEvery <= 0 {
			cfg.ReportEvery = 100
		}
	default:
		return Result{}, fmt.Errorf("trainer: unsupported policy %s", cfg.Policy)
	}
	sampler, err := dataset.NewSampler(train, opts)
	if err != nil {
		return Result{}, err
	}

	mdl.RunID = cfg.RunID
	res := Result{RunID: cfg.RunID}
	cfg.Hooks.state(Idle)
	cfg.Logger.Printf("run=%s policy=%s epochs=%d examples=%d batches_per_epoch=%d params=%d",
		cfg.RunID, cfg.Policy, cfg.Epochs, train.Len(), sampler.NumBatches(), mdl.NumParams())

	var window metrics.Window
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		cfg.Hooks.state(EpochStart)
		start := time.Now()
		for i, batch := range sampler.Epoch() {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			cfg.Hooks.state(BatchStart)
			stepStart := time.Now()
			cost, acc, err := step(mdl, opt, batch, cfg.Hooks)
			if err != nil {
				return res, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			res.Steps++
			window.Record(batch.Len(), time.Since(stepStart), cost, acc)
			cfg.Hooks.batch(BatchReport{Epoch: epoch, Index: i, Size: batch.Len(), Cost: cost, Accuracy: acc})
		}

		cfg.Hooks.state(EpochEnd)
		snap := window.Snapshot()
		report := EpochReport{
			Epoch:    epoch,
			Batches:  snap.Batches,
			Samples:  snap.Samples,
			AvgCost:  snap.AvgCost,
			Accuracy: snap.Accuracy,
			Duration: time.Since(start),
		}
		res.History = append(res.History, report)
		res.Epochs++
		cfg.Hooks.epoch(report)

		if epoch%cfg.ReportEvery == 0 {
			cfg.Logger.Printf("run=%s epoch=%d batches=%d cost=%.4f accuracy=%.4f samples_per_sec=%.1f",
				cfg.RunID, epoch, snap.Batches, snap.AvgCost, snap.Accuracy, snap.SamplesPerSec)
		}
	}
	cfg.Hooks.state(Done)
	return res, nil
}

// step runs Forward, Loss, Backward and Update on one batch.
func step(mdl *model.Model, opt Optimizer, batch dataset.Dataset, hooks Hooks) (float64, float64, error) {
	hooks.state(Forward)
	aL, cache, err := mdl.Forward(batch.X)
	if err != nil {
		return 0, 0, err
	}

	hooks.state(Loss)
	cost, err := metrics.CrossEntropy(aL, batch.Y)
	if err != nil {
		return 0, 0, err
	}
	acc, err := metrics.Accuracy(aL, batch.Y)
	if err != nil {
		return 0, 0, err
	}

	hooks.state(Backward)
	if err := mdl.Backward(aL, batch.Y, cache); err != nil {
		return 0, 0, err
	}

	hooks.state(Update)
	if err := opt.Step(mdl); err != nil {
		return 0, 0, err
	}
	return cost, acc, nil
}

// Evaluate returns the cost and accuracy of mdl on ds without training.
func Evaluate(mdl *model.Model, ds dataset.Dataset) (cost, accuracy float64, err error) {
	aL, _, err := mdl.Forward(ds.X)
	if err != nil {
		return 0, 0, err
	}
	if cost, err = metrics.CrossEntropy(aL, ds.Y); err != nil {
		return 0, 0, err
	}
	if accuracy, err = metrics.Accuracy(aL, ds.Y); err != nil {
		return 0, 0, err
	}
	return cost, accuracy, nil
}
