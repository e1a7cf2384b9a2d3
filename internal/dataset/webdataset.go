package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sample is one digit read from a shard: the encoded image and its class.
type Sample struct {
	Key   string
	Image []byte
	Label int
}

// ErrPendingOverflow indicates too many images or labels arrived without
// their partner file.
var ErrPendingOverflow = errors.New("shard: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard reads a tar shard of <key>.png (or .jpg) and <key>.cls
// entries and emits a Sample for every complete pair. The error channel
// receives at most one value and is closed after the sample channel.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)
		if err := readShard(ctx, path, pendingCap, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func readShard(ctx context.Context, path string, pendingCap int, out chan<- Sample) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	pending := make(map[string]*partial)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar %s: %w", path, err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(hdr.Name)
		ext := strings.ToLower(filepath.Ext(name))
		key := strings.TrimSuffix(name, filepath.Ext(name))

		part := pending[key]
		if part == nil {
			part = &partial{}
		}
		switch ext {
		case ".png", ".jpg", ".jpeg":
			if part.image, err = io.ReadAll(tr); err != nil {
				return fmt.Errorf("read image %s: %w", name, err)
			}
		case ".cls":
			label, err := readLabel(tr)
			if err != nil {
				return fmt.Errorf("label %s: %w", name, err)
			}
			part.label = &label
		default:
			continue
		}

		if !part.ready() {
			pending[key] = part
			if len(pending) > pendingCap {
				return ErrPendingOverflow
			}
			continue
		}
		delete(pending, key)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- Sample{Key: key, Image: part.image, Label: *part.label}:
		}
	}

	if len(pending) > 0 {
		return fmt.Errorf("shard %s: %d samples incomplete", path, len(pending))
	}
	return nil
}

func readLabel(r io.Reader) (int, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return 0, err
	}
	if label < 0 || label >= Classes {
		return 0, fmt.Errorf("class %d out of range [0, %d)", label, Classes)
	}
	return label, nil
}

type partial struct {
	image []byte
	label *int
}

func (p *partial) ready() bool {
	return len(p.image) > 0 && p.label != nil
}
