package tsnego

import (
	"errors"
	"fmt"
)

var (
	// ErrTooFewPoints is returned when the input has fewer than two rows.
	ErrTooFewPoints = errors.New("at least two points are required")
)

// ErrInvalidDimension indicates an invalid output dimensionality.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid output dimension: %d", e.Dimension)
}

// ErrInvalidPerplexity indicates a non-positive perplexity.
type ErrInvalidPerplexity struct {
	Perplexity float64
}

func (e *ErrInvalidPerplexity) Error() string {
	return fmt.Sprintf("invalid perplexity: %g", e.Perplexity)
}

// ErrInvalidTheta indicates a Barnes-Hut accuracy parameter outside [0, 1].
type ErrInvalidTheta struct {
	Theta float64
}

func (e *ErrInvalidTheta) Error() string {
	return fmt.Sprintf("invalid theta: %g (must be in [0, 1])", e.Theta)
}

// ErrInvalidIterations indicates a negative iteration count.
type ErrInvalidIterations struct {
	Iterations int
}

func (e *ErrInvalidIterations) Error() string {
	return fmt.Sprintf("invalid iteration count: %d", e.Iterations)
}

// ErrSizeMismatch indicates a buffer whose length disagrees with the declared
// shape.
type ErrSizeMismatch struct {
	Name     string
	Expected int
	Actual   int
}

func (e *ErrSizeMismatch) Error() string {
	return fmt.Sprintf("%s buffer holds %d values, need %d", e.Name, e.Actual, e.Expected)
}
