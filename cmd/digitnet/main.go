package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauspost/cpuid/v2"

	"digitnet/internal/config"
	"digitnet/internal/dataset"
	"digitnet/internal/model"
	"digitnet/internal/optim"
	"digitnet/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/demo.yaml", "Path to YAML config")
	trainCSV := flag.String("train-csv", "", "Override training CSV")
	trainShards := flag.String("train-shards", "", "Override training shard root")
	synthetic := flag.Int("synthetic", 0, "Train on N generated digits")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	lr := flag.Float64("lr", 0, "Learning rate")
	policy := flag.String("policy", "", "Batching policy: minibatch or whole")
	seed := flag.Uint64("seed", 0, "PRNG seed")
	savePath := flag.String("save", "", "Write the trained model to this path")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		TrainCSV:     *trainCSV,
		TrainShards:  *trainShards,
		Synthetic:    *synthetic,
		LearningRate: *lr,
		BatchSize:    *batchSize,
		Epochs:       *epochs,
		Policy:       *policy,
		Seed:         *seed,
		SavePath:     *savePath,
	})
	// Overriding the source replaces the file's source rather than adding one.
	if *trainCSV != "" || *trainShards != "" || *synthetic > 0 {
		cfg.TrainCSV, cfg.TrainShards, cfg.Synthetic = *trainCSV, *trainShards, *synthetic
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("cpu=%q cores=%d avx2=%v fma=%v", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.FMA3))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := newRand(cfg.Seed)

	train, val, err := loadData(ctx, cfg, rng)
	if err != nil {
		log.Fatalf("load data: %v", err)
	}
	log.Printf("train=%d validation=%d", train.Len(), lenOrZero(val))

	mcfg, err := cfg.ModelConfig(model.DefaultInputDim)
	if err != nil {
		log.Fatalf("model config: %v", err)
	}
	mdl, err := model.New(mcfg, rng)
	if err != nil {
		log.Fatalf("build model: %v", err)
	}

	runCfg, err := cfg.RunConfig()
	if err != nil {
		log.Fatalf("run config: %v", err)
	}
	runCfg.Rand = rng

	res, err := trainer.Run(ctx, mdl, optim.NewSGD(mdl.LearningRate), train, runCfg)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("run=%s epochs=%d steps=%d final_cost=%.4f", res.RunID, res.Epochs, res.Steps, res.FinalCost())

	if val != nil {
		cost, acc, err := trainer.Evaluate(mdl, *val)
		if err != nil {
			log.Fatalf("evaluate: %v", err)
		}
		log.Printf("run=%s validation_cost=%.4f validation_accuracy=%.4f", res.RunID, cost, acc)
	}

	if cfg.SavePath != "" {
		if err := model.SaveFile(cfg.SavePath, mdl); err != nil {
			log.Fatalf("save model: %v", err)
		}
		log.Printf("run=%s saved=%s", res.RunID, cfg.SavePath)
	}
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func loadData(ctx context.Context, cfg *config.Config, rng *rand.Rand) (dataset.Dataset, *dataset.Dataset, error) {
	var (
		train dataset.Dataset
		err   error
	)
	switch {
	case cfg.TrainCSV != "":
		train, err = dataset.LoadCSV(cfg.TrainCSV, cfg.MaxSamples)
	case cfg.TrainShards != "":
		var shards []string
		shards, err = dataset.DiscoverShards(cfg.TrainShards)
		if err == nil {
			log.Printf("root=%s shards=%d", cfg.TrainShards, len(shards))
			train, err = dataset.LoadShards(ctx, shards, 0)
		}
	default:
		train = dataset.Synthetic(cfg.Synthetic, rng)
	}
	if err != nil {
		return dataset.Dataset{}, nil, err
	}

	switch {
	case cfg.ValidationCSV != "":
		val, err := dataset.LoadCSV(cfg.ValidationCSV, cfg.MaxSamples)
		if err != nil {
			return dataset.Dataset{}, nil, err
		}
		return train, &val, nil
	case cfg.ValidationSplit > 0:
		train, val, err := train.Split(cfg.ValidationSplit)
		if err != nil {
			return dataset.Dataset{}, nil, err
		}
		return train, &val, nil
	}
	return train, nil, nil
}

func lenOrZero(d *dataset.Dataset) int {
	if d == nil {
		return 0
	}
	return d.Len()
}
