// Package distance provides the numeric kernels for vector comparison.
// It supports the Cosine, Euclidean, Manhattan and DotProduct metrics.
//
// The package keeps a catalog of kernel functions per metric. Pure Go
// reference implementations are registered by default; init() swaps in
// Gonum-backed (BLAS/SIMD) versions for the dot-product based metrics when
// the CPU has wide vector units.
package distance

import (
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"
)

// Metric identifies the distance calculation to perform.
type Metric string

const (
	// Cosine is the cosine distance: 1 - cosine similarity. Smaller is closer.
	Cosine Metric = "cosine"
	// Euclidean is the L2 distance. Smaller is closer.
	Euclidean Metric = "euclidean"
	// Manhattan is the L1 distance. Smaller is closer.
	Manhattan Metric = "manhattan"
	// DotProduct is the raw inner product, returned as a similarity.
	// Larger is closer; every comparator downstream must flip its ordering.
	DotProduct Metric = "dotproduct"
)

// ErrLengthMismatch is returned when two vectors of different lengths are compared.
var ErrLengthMismatch = errors.New("vectors must have the same length")

// Func computes the distance (or similarity, for DotProduct) between two
// equal-length vectors. Implementations are pure and allocation-free, and are
// safe to call concurrently on disjoint inputs.
type Func func(a, b []float32) (float64, error)

// LargerIsBetter reports the ordering polarity of the metric: true when a
// larger value means a closer match (DotProduct), false for the distance
// metrics where smaller is closer.
func (m Metric) LargerIsBetter() bool {
	return m == DotProduct
}

// Valid reports whether m names a supported metric.
func (m Metric) Valid() bool {
	_, ok := kernels[m]
	return ok
}

// Parse converts a metric name to a Metric, case-sensitively.
func Parse(s string) (Metric, error) {
	m := Metric(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown distance metric '%s'", s)
	}
	return m, nil
}

// kernels maps each metric to its active implementation.
var kernels = map[Metric]Func{
	Cosine:     cosineGo,
	Euclidean:  euclideanGo,
	Manhattan:  manhattanGo,
	DotProduct: dotProductGo,
}

func init() {
	// Gonum dispatches to SIMD dot-product kernels internally; the call is
	// only worth its overhead on CPUs with wide vector units.
	if cpuid.CPU.Has(cpuid.AVX2) {
		kernels[Cosine] = cosineGonum
		kernels[DotProduct] = dotProductGonum
	}
}

// GetFunc returns the active kernel for the given metric.
func GetFunc(m Metric) (Func, error) {
	fn, ok := kernels[m]
	if !ok {
		return nil, fmt.Errorf("unknown distance metric '%s'", m)
	}
	return fn, nil
}

// Calculate evaluates the metric on a pair of vectors, resolving the kernel
// on every call. Hot paths should resolve once with GetFunc instead.
func Calculate(m Metric, a, b []float32) (float64, error) {
	fn, err := GetFunc(m)
	if err != nil {
		return 0, err
	}
	return fn(a, b)
}

// --- Reference implementations (pure Go) ---

func cosineGo(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	// A zero-magnitude vector has no direction; report maximum distance
	// instead of letting the division produce NaN.
	if na == 0 || nb == 0 {
		return 1.0, nil
	}
	sim := float64(dot) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
	return 1.0 - sim, nil
}

func euclideanGo(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(float64(sum)), nil
}

func manhattanGo(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum, nil
}

func dotProductGo(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return float64(sum), nil
}

// --- Gonum-backed implementations (float32 BLAS) ---

var gonumEngine = gonum.Implementation{}

func cosineGonum(a, b []float32) (float64, error) {
	n := len(a)
	if n != len(b) {
		return 0, ErrLengthMismatch
	}
	dot := gonumEngine.Sdot(n, a, 1, b, 1)
	na := gonumEngine.Sdot(n, a, 1, a, 1)
	nb := gonumEngine.Sdot(n, b, 1, b, 1)
	if na == 0 || nb == 0 {
		return 1.0, nil
	}
	sim := float64(dot) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
	return 1.0 - sim, nil
}

func dotProductGonum(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	return float64(gonumEngine.Sdot(len(a), a, 1, b, 1)), nil
}
