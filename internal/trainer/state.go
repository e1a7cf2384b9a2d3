package trainer

import "time"

// State is a phase of the training loop, reported through Hooks.OnState.
type State int

const (
	Idle State = iota
	EpochStart
	BatchStart
	Forward
	Loss
	Backward
	Update
	EpochEnd
	Done
)

var stateNames = [...]string{"idle", "epoch-start", "batch-start", "forward", "loss", "backward", "update", "epoch-end", "done"}

func (s State) String() string {
	if s >= Idle && s <= Done {
		return stateNames[s]
	}
	return "unknown"
}

// BatchReport describes one completed gradient step.
type BatchReport struct {
	Epoch    int
	Index    int
	Size     int
	Cost     float64
	Accuracy float64
}

// EpochReport describes one completed epoch. AvgCost is the mean of the
// batch costs.
type EpochReport struct {
	Epoch    int
	Batches  int
	Samples  int
	AvgCost  float64
	Accuracy float64
	Duration time.Duration
}

// Hooks observe the loop. Any field may be nil.
type Hooks struct {
	OnState func(State)
	OnBatch func(BatchReport)
	OnEpoch func(EpochReport)
}

func (h Hooks) state(s State) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

func (h Hooks) batch(r BatchReport) {
	if h.OnBatch != nil {
		h.OnBatch(r)
	}
}

func (h Hooks) epoch(r EpochReport) {
	if h.OnEpoch != nil {
		h.OnEpoch(r)
	}
}
