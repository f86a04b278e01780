package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

func indices(ns []domain.Neighbor) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.Index
	}
	return out
}

func TestSearchOrdersByDistance(t *testing.T) {
	idx, err := Build([][]float32{
		{0, 0},
		{3, 4},
		{1, 0},
		{0, 2},
	})
	require.NoError(t, err)

	got, err := idx.Search(context.Background(), []float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, indices(got))
	assert.Equal(t, []float32{0, 1, 4}, []float32{got[0].Distance, got[1].Distance, got[2].Distance})
}

func TestSearchKLargerThanIndex(t *testing.T) {
	idx, err := Build([][]float32{{1}, {2}})
	require.NoError(t, err)

	got, err := idx.Search(context.Background(), []float32{0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, indices(got))
}

func TestSearchBreaksTiesByIndex(t *testing.T) {
	idx, err := Build([][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, err := idx.Search(context.Background(), []float32{0, 0}, 4)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2, 3}, indices(got))
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	idx, err := Build([][]float32{{1, 2}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = idx.Search(ctx, []float32{1}, 1)
	assert.Error(t, err)

	_, err = idx.Search(ctx, []float32{1, 2}, 0)
	assert.Error(t, err)
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)

	_, err = Build([][]float32{{}})
	assert.Error(t, err)

	_, err = Build([][]float32{{1, 2}, {1}})
	assert.Error(t, err)
}

func TestBuildCopiesInput(t *testing.T) {
	vecs := [][]float32{{5}, {1}}
	idx, err := Build(vecs)
	require.NoError(t, err)
	vecs[1][0] = 100

	got, err := idx.Search(context.Background(), []float32{0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got[0].Index)
}

func TestSearchProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n, dim = 200, 16
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dim)
		for j := range vecs[i] {
			vecs[i][j] = rng.Float32()*2 - 1
		}
	}
	idx, err := Build(vecs)
	require.NoError(t, err)

	for trial := 0; trial < 20; trial++ {
		q := make([]float32, dim)
		for j := range q {
			q[j] = rng.Float32()*2 - 1
		}
		k := 1 + rng.Intn(10)
		got, err := idx.Search(context.Background(), q, k)
		require.NoError(t, err)

		assert.Len(t, got, k)
		for _, nb := range got {
			assert.True(t, nb.Index >= 0 && nb.Index < n)
		}
		assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Distance < got[j].Distance }))
	}
}

func TestConcurrentSearch(t *testing.T) {
	idx, err := Build([][]float32{{0}, {1}, {2}, {3}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(q float32) {
			defer wg.Done()
			got, err := idx.Search(context.Background(), []float32{q}, 2)
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}(float32(i % 4))
	}
	wg.Wait()
}
