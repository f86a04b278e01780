package memory

import (
	"context"

	"ragqa/internal/domain"
	"ragqa/internal/vectorstore"
)

// Index is an exhaustive in-memory squared-L2 index. Every query is
// compared against every stored vector. It is read-only after Build and
// safe for concurrent searches.
type Index struct {
	dimension int
	count     int
	data      []float32 // row-major, count x dimension
}

// Build copies vectors into a new index. All vectors must share one
// non-zero dimension.
func Build(vectors [][]float32) (*Index, error) {
	dim, err := vectorstore.CheckVectors(vectors)
	if err != nil {
		return nil, err
	}
	data := make([]float32, 0, dim*len(vectors))
	for _, v := range vectors {
		data = append(data, v...)
	}
	return &Index{dimension: dim, count: len(vectors), data: data}, nil
}

// Dimension returns the vector length the index was built with.
func (s *Index) Dimension() int { return s.dimension }

// Len returns the number of indexed vectors.
func (s *Index) Len() int { return s.count }

// Search returns up to k nearest vectors, ascending by distance. When k
// exceeds the index size every vector is returned.
func (s *Index) Search(ctx context.Context, query []float32, k int) ([]domain.Neighbor, error) {
	if err := vectorstore.CheckQuery(query, s.dimension, k); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := make([]domain.Neighbor, s.count)
	for i := 0; i < s.count; i++ {
		row := s.data[i*s.dimension : (i+1)*s.dimension]
		all[i] = domain.Neighbor{Index: i, Distance: vectorstore.SquaredL2(row, query)}
	}
	vectorstore.SortNeighbors(all)
	if k > len(all) {
		k = len(all)
	}
	return all[:k:k], nil
}
