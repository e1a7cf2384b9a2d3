package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"digitnet/internal/dataset"
	"digitnet/internal/model"
	"digitnet/internal/trainer"
)

func main() {
	modelPath := flag.String("model", "", "Path to a model saved by digitnet -save")
	csvPath := flag.String("csv", "", "Digit CSV to predict on")
	indices := flag.String("index", "", "Comma separated example indices to print")
	maxSamples := flag.Int("max-samples", 0, "Read at most N examples (0 = all)")

	flag.Parse()

	if *modelPath == "" || *csvPath == "" {
		log.Fatal("both -model and -csv are required")
	}

	mdl, err := model.LoadFile(*modelPath)
	if err != nil {
		log.Fatalf("load model: %v", err)
	}
	ds, err := dataset.LoadCSV(*csvPath, *maxSamples)
	if err != nil {
		log.Fatalf("load csv: %v", err)
	}

	idx, err := parseIndices(*indices, ds.Len())
	if err != nil {
		log.Fatalf("index: %v", err)
	}
	if len(idx) > 0 {
		subset := ds.Columns(idx)
		predicted, err := mdl.Predict(subset.X)
		if err != nil {
			log.Fatalf("predict: %v", err)
		}
		actual := subset.Labels()
		for i, at := range idx {
			fmt.Printf("index=%d predicted=%d actual=%d\n", at, predicted[i], actual[i])
		}
	}

	cost, acc, err := trainer.Evaluate(mdl, ds)
	if err != nil {
		log.Fatalf("evaluate: %v", err)
	}
	log.Printf("run=%s examples=%d cost=%.4f accuracy=%.4f", mdl.RunID, ds.Len(), cost, acc)
}

func parseIndices(s string, n int) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%d out of range [0, %d)", i, n)
		}
		out = append(out, i)
	}
	return out, nil
}
