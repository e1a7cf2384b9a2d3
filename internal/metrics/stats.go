package metrics

import "time"

// Window accumulates per-batch results across an epoch.
type Window struct {
	batches  int
	samples  int
	cost     float64
	hits     float64
	compute  time.Duration
	lastCost float64
}

// Record adds one batch. accuracy is the fraction correct within the batch.
func (w *Window) Record(batchSize int, computeTime time.Duration, cost, accuracy float64) {
	w.batches++
	w.samples += batchSize
	w.cost += cost
	w.hits += accuracy * float64(batchSize)
	w.compute += computeTime
	w.lastCost = cost
}

// Batches returns the number of batches recorded since the last snapshot.
func (w *Window) Batches() int {
	return w.batches
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{
		Batches:  w.batches,
		Samples:  w.samples,
		LastCost: w.lastCost,
	}
	if w.batches > 0 {
		snap.AvgCost = w.cost / float64(w.batches)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.batches)
	}
	if w.samples > 0 {
		snap.Accuracy = w.hits / float64(w.samples)
	}
	if w.compute > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.compute.Seconds()
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics. AvgCost is averaged by batch
// count; Accuracy is weighted by batch size.
type Snapshot struct {
	Batches       int
	Samples       int
	AvgCost       float64
	LastCost      float64
	Accuracy      float64
	AvgComputeMS  float64
	SamplesPerSec float64
}
