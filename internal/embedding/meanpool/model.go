package meanpool

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strconv"
	"strings"
)

// Model maps tokens to vectors. Tokens found in the pretrained table use
// their stored vector; any other token gets a unit vector derived from the
// token's hash and the model seed. A Model is read-only after construction.
type Model struct {
	name  string
	dim   int
	seed  uint64
	table map[string][]float32
}

// NewModel returns a table-less model of the given dimension.
func NewModel(dim int, seed uint64) (*Model, error) {
	if dim <= 0 {
		return nil, errors.New("model dimension must be positive")
	}
	return &Model{name: fmt.Sprintf("meanpool-hash-%d", dim), dim: dim, seed: seed}, nil
}

// LoadModel reads a static embedding table in word2vec text format: an
// optional "<count> <dim>" header, then one "token v1 ... vD" line per token.
// If dim is non-zero the table must match it.
func LoadModel(path string, dim int, seed uint64) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary at %s: %w", path, err)
	}
	defer f.Close()

	table := make(map[string][]float32)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if line == 1 && len(fields) == 2 && isInt(fields[0]) && isInt(fields[1]) {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: token without vector", path, line)
		}
		if dim == 0 {
			dim = len(fields) - 1
		}
		if len(fields)-1 != dim {
			return nil, fmt.Errorf("%s:%d: vector has %d values, want %d", path, line, len(fields)-1, dim)
		}
		vec := make([]float32, dim)
		for i, s := range fields[1:] {
			x, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			vec[i] = float32(x)
		}
		table[fields[0]] = vec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to load vocabulary at %s: %w", path, err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("vocabulary at %s is empty", path)
	}
	return &Model{name: fmt.Sprintf("meanpool-table-%d", dim), dim: dim, seed: seed, table: table}, nil
}

// Name identifies the weights, recorded alongside stored embeddings.
func (m *Model) Name() string { return m.name }

// Dimension returns the vector length.
func (m *Model) Dimension() int { return m.dim }

// VocabSize returns the number of pretrained token vectors.
func (m *Model) VocabSize() int { return len(m.table) }

// addTo accumulates the token's vector into acc.
func (m *Model) addTo(acc []float64, token string) {
	if v, ok := m.table[token]; ok {
		for i, x := range v {
			acc[i] += float64(x)
		}
		return
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	state := h.Sum64() ^ m.seed

	vec := make([]float64, m.dim)
	norm := 0.0
	for i := range vec {
		state, vec[i] = splitmix(state)
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i, x := range vec {
		acc[i] += x / norm
	}
}

// splitmix advances a splitmix64 state and returns a value in [-1, 1).
func splitmix(state uint64) (uint64, float64) {
	state += 0x9e3779b97f4a7c15
	z := state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return state, float64(z>>11)/float64(1<<53)*2 - 1
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
