package dataset

import (
	"errors"
	"math/rand/v2"
)

// Sampler cuts a dataset into the batches of one epoch.
type Sampler struct {
	data      Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// SamplerOptions configures a Sampler. BatchSize <= 0 yields the whole
// dataset as a single batch. Shuffle draws from Rand, which must be set
// when Shuffle is true.
type SamplerOptions struct {
	BatchSize int
	Shuffle   bool
	Rand      *rand.Rand
}

// NewSampler validates opts against data.
func NewSampler(data Dataset, opts SamplerOptions) (*Sampler, error) {
	if data.X == nil || data.Len() == 0 {
		return nil, errors.New("sampler: empty dataset")
	}
	if opts.Shuffle && opts.Rand == nil {
		return nil, errors.New("sampler: shuffle requires a random source")
	}
	return &Sampler{
		data:      data,
		batchSize: opts.BatchSize,
		shuffle:   opts.Shuffle,
		rng:       opts.Rand,
	}, nil
}

// NumBatches is the number of batches Epoch returns, counting a trailing
// partial batch.
func (s *Sampler) NumBatches() int {
	n := s.data.Len()
	if s.batchSize <= 0 || s.batchSize >= n {
		return 1
	}
	return (n + s.batchSize - 1) / s.batchSize
}

// Epoch returns the batches for one pass over the data. With shuffling on,
// a fresh permutation is drawn every call.
func (s *Sampler) Epoch() []Dataset {
	order := Identity(s.data.Len())
	if s.shuffle {
		order = Permutation(s.data.Len(), s.rng)
	}
	if s.batchSize <= 0 || s.batchSize >= len(order) {
		if !s.shuffle {
			return []Dataset{s.data}
		}
		return []Dataset{s.data.Columns(order)}
	}
	return Partition(s.data, order, s.batchSize)
}

// Identity returns 0..n-1.
func Identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Permutation returns a random ordering of 0..n-1.
func Permutation(n int, rng *rand.Rand) []int {
	idx := Identity(n)
	rng.Shuffle(len(idx), func(i, j int) {
		idx[i], idx[j] = idx[j], idx[i]
	})
	return idx
}

// Shuffle applies one permutation to inputs and labels together.
func Shuffle(d Dataset, rng *rand.Rand) Dataset {
	return d.Columns(Permutation(d.Len(), rng))
}

// Partition splits the examples listed in order into consecutive batches of
// batchSize. A remainder forms one final, smaller batch.
func Partition(d Dataset, order []int, batchSize int) []Dataset {
	batches := make([]Dataset, 0, (len(order)+batchSize-1)/batchSize)
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		batches = append(batches, d.Columns(order[start:end]))
	}
	return batches
}
