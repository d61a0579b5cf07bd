// Command tsne embeds a CSV matrix of feature vectors into 2D or 3D using
// Barnes-Hut t-SNE. Files ending in .gz are transparently (de)compressed.
//
// Usage:
//
//	tsne -input vectors.csv.gz -output embedding.csv -dims 2 -perplexity 30
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/hupe1980/tsnego"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "input CSV file of feature vectors, one row per point (.gz supported)")
		outputPath = flag.String("output", "", "output CSV file for the embedding (.gz supported, default stdout)")
		dims       = flag.Int("dims", 2, "output dimensionality")
		perplexity = flag.Float64("perplexity", 30, "target perplexity")
		theta      = flag.Float64("theta", 0.5, "Barnes-Hut accuracy trade-off in [0,1]; 0 is exact")
		seed       = flag.Int64("seed", 0, "random seed")
		maxIter    = flag.Int("iter", 1000, "number of optimization iterations")
		workers    = flag.Int("workers", 0, "worker goroutines (0 = all CPUs)")
		verbose    = flag.Bool("v", false, "verbose progress logging")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "tsne: -input is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*inputPath, *outputPath, *dims, *perplexity, *theta, *seed, *maxIter, *workers, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "tsne: %v\n", err)
		os.Exit(1)
	}
}

func run(inputPath, outputPath string, dims int, perplexity, theta float64, seed int64, maxIter, workers int, verbose bool) error {
	data, n, d, err := readMatrix(inputPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	ts, err := tsnego.New(func(o *tsnego.Options) {
		o.Dims = dims
		o.Perplexity = perplexity
		o.Theta = theta
		o.Seed = seed
		o.MaxIter = maxIter
		o.Workers = workers
		o.Logger = tsnego.NewTextLogger(level)
	})
	if err != nil {
		return err
	}

	embedding, err := ts.Embed(data, n, d)
	if err != nil {
		return err
	}

	if err := writeMatrix(outputPath, embedding, n, dims); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	return nil
}

// readMatrix loads a CSV file of float64 rows, returning the flat row-major
// buffer and its shape.
func readMatrix(path string) (data []float64, n, d int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, 0, 0, err
		}
		defer zr.Close()
		r = zr
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		if d == 0 {
			d = len(record)
		}
		if len(record) != d {
			return nil, 0, 0, fmt.Errorf("row %d has %d columns, expected %d", n+1, len(record), d)
		}
		for _, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("row %d: %w", n+1, err)
			}
			data = append(data, v)
		}
		n++
	}

	if n == 0 {
		return nil, 0, 0, fmt.Errorf("no rows")
	}

	return data, n, d, nil
}

// writeMatrix stores a flat row-major buffer as CSV. An empty path writes to
// stdout.
func writeMatrix(path string, data []float64, n, d int) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f

		if strings.HasSuffix(path, ".gz") {
			zw := gzip.NewWriter(f)
			defer zw.Close()
			w = zw
		}
	}

	cw := csv.NewWriter(w)
	record := make([]string, d)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			record[j] = strconv.FormatFloat(data[i*d+j], 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}
