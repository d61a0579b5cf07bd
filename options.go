package tsnego

// Options contains configuration options for an embedding run.
type Options struct {
	// Dims is the output dimensionality, typically 2 or 3.
	Dims int

	// Perplexity is the target effective number of neighbors per point. It
	// controls the bandwidth of each point's similarity kernel. The
	// approximate affinity path needs 3·Perplexity neighbors, so it must be
	// smaller than a third of the dataset.
	Perplexity float64

	// Theta is the Barnes-Hut accuracy/speed trade-off in [0, 1]. A subtree
	// is summarized by its center of mass when its width over the distance
	// to the query point falls below Theta. 0 degenerates to the exact
	// quadratic computation (and selects the exact affinity path).
	Theta float64

	// MaxIter is the number of optimization iterations. The run always
	// performs exactly this many; there is no convergence-based early stop.
	MaxIter int

	// Seed drives random initialization and vantage-point selection. Runs
	// with the same seed and parameters produce identical embeddings.
	Seed int64

	// LearningRate scales the gradient in the velocity update.
	LearningRate float64

	// Exaggeration multiplies the attractive forces during the early phase,
	// encouraging well-separated clusters before fine-tuning.
	Exaggeration float64

	// StopLyingIter is the iteration at which early exaggeration is removed.
	StopLyingIter int

	// MomentumSwitchIter is the iteration at which momentum switches from
	// InitialMomentum to FinalMomentum.
	MomentumSwitchIter int

	// InitialMomentum and FinalMomentum bracket the momentum schedule.
	InitialMomentum float64
	FinalMomentum   float64

	// EvalInterval is the number of iterations between KL divergence
	// reports. 0 disables reporting.
	EvalInterval int

	// Workers bounds concurrency in the affinity and force phases. Results
	// do not depend on it. Defaults to GOMAXPROCS.
	Workers int

	// Logger receives structured progress logs. Defaults to a no-op logger.
	Logger *Logger

	// Metrics receives run metrics. Defaults to a no-op collector.
	Metrics MetricsCollector
}

// DefaultOptions contains the default configuration options for a run. The
// numeric defaults match the reference Barnes-Hut t-SNE schedule.
var DefaultOptions = Options{
	Dims:               2,
	Perplexity:         50,
	Theta:              0.5,
	MaxIter:            1000,
	Seed:               0,
	LearningRate:       200,
	Exaggeration:       12,
	StopLyingIter:      250,
	MomentumSwitchIter: 250,
	InitialMomentum:    0.5,
	FinalMomentum:      0.8,
	EvalInterval:       50,
	Workers:            0,
	Logger:             nil,
	Metrics:            nil,
}
