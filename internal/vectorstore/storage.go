// Package vectorstore holds what the index backends share: the distance
// metric and the result ordering.
package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"ragqa/internal/domain"
)

// ErrBadK is returned when a search asks for zero or fewer neighbors.
var ErrBadK = errors.New("k must be positive")

// SquaredL2 returns the squared Euclidean distance between a and b, which
// must have equal length.
func SquaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

// SortNeighbors orders by ascending distance, breaking ties by corpus index.
func SortNeighbors(ns []domain.Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].Index < ns[j].Index
	})
}

// CheckQuery validates a query vector against the index dimension.
func CheckQuery(query []float32, dim, k int) error {
	if k <= 0 {
		return ErrBadK
	}
	if len(query) != dim {
		return fmt.Errorf("query has dimension %d, index has %d", len(query), dim)
	}
	for _, x := range query {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return errors.New("query contains a non-finite value")
		}
	}
	return nil
}

// CheckVectors validates build input and returns its common dimension.
func CheckVectors(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, errors.New("no vectors to index")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, errors.New("invalid dimension")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return dim, nil
}
