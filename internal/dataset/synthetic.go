package dataset

import "math/rand/v2"

// Synthetic generates n (> 0) noisy digit-like images: class k lights up a band of
// rows starting at 2k, so the classes are separable but not trivially so.
func Synthetic(n int, rng *rand.Rand) Dataset {
	inputs := make([][]float64, n)
	labels := make([]int, n)
	for i := range inputs {
		label := rng.IntN(Classes)
		pixels := make([]float64, Features)
		for row := 2 * label; row < 2*label+8 && row < ImageSize; row++ {
			for col := 5; col < 23; col++ {
				pixels[row*ImageSize+col] = 0.8
			}
		}
		for j := range pixels {
			pixels[j] += 0.1 * rng.Float64()
		}
		inputs[i] = pixels
		labels[i] = label
	}
	ds, err := FromSamples(inputs, labels, Classes)
	if err != nil {
		panic(err)
	}
	return ds
}
