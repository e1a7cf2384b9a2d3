package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// LoadCSV reads a digit CSV with a header row and one example per line:
//
//	label,pixel0,pixel1,...,pixel783
//
// Pixels are scaled from 0-255 to [0, 1]. maxSamples <= 0 reads everything.
func LoadCSV(path string, maxSamples int) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, maxSamples)
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(r io.Reader, maxSamples int) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = Features + 1
	reader.ReuseRecord = true

	if _, err := reader.Read(); err != nil {
		return Dataset{}, fmt.Errorf("read csv header: %w", err)
	}

	var (
		inputs [][]float64
		labels []int
	)
	for row := 1; maxSamples <= 0 || len(inputs) < maxSamples; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read csv row %d: %w", row, err)
		}
		label, err := strconv.Atoi(record[0])
		if err != nil {
			return Dataset{}, fmt.Errorf("row %d: label: %w", row, err)
		}
		pixels := make([]float64, Features)
		for j := range pixels {
			v, err := strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return Dataset{}, fmt.Errorf("row %d: pixel %d: %w", row, j, err)
			}
			pixels[j] = v / 255
		}
		inputs = append(inputs, pixels)
		labels = append(labels, label)
	}
	if len(inputs) == 0 {
		return Dataset{}, errors.New("csv: no examples")
	}
	ds, err := FromSamples(inputs, labels, Classes)
	if err != nil {
		return Dataset{}, fmt.Errorf("csv: %w", err)
	}
	return ds, nil
}
