package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// LoadShards reads every shard in turn and assembles one dataset. Images
// are reduced to a 28x28 grid of grayscale intensities in [0, 1].
func LoadShards(ctx context.Context, shards []string, pendingCap int) (Dataset, error) {
	if len(shards) == 0 {
		return Dataset{}, errors.New("dataset: no shards")
	}
	var (
		inputs [][]float64
		labels []int
	)
	for _, path := range shards {
		samples, errs := StreamShard(ctx, path, pendingCap)
		for sample := range samples {
			features, err := DecodeDigit(sample.Image)
			if err != nil {
				// Drain so the reader goroutine can exit.
				for range samples {
				}
				<-errs
				return Dataset{}, fmt.Errorf("%s/%s: %w", path, sample.Key, err)
			}
			inputs = append(inputs, features)
			labels = append(labels, sample.Label)
		}
		if err := <-errs; err != nil {
			return Dataset{}, err
		}
	}
	return FromSamples(inputs, labels, Classes)
}

// DecodeDigit decodes a PNG or JPEG and samples it onto the digit grid.
func DecodeDigit(raw []byte) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty image")
	}
	features := make([]float64, Features)
	for gy := 0; gy < ImageSize; gy++ {
		for gx := 0; gx < ImageSize; gx++ {
			px := bounds.Min.X + gx*width/ImageSize
			py := bounds.Min.Y + gy*height/ImageSize
			r, g, b, _ := img.At(px, py).RGBA()
			features[gy*ImageSize+gx] = (float64(r) + float64(g) + float64(b)) / (3 * 65535.0)
		}
	}
	return features, nil
}
