package embedstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketMeta    = []byte("meta")
	bucketVectors = []byte("vectors")
	keyModel      = []byte("model")
	keyDimension  = []byte("dimension")
	keyCount      = []byte("count")
)

func loadBolt(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	defer db.Close()

	s := &Store{}
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		vecs := tx.Bucket(bucketVectors)
		if meta == nil || vecs == nil {
			return errors.New("missing meta or vectors bucket")
		}
		s.Model = string(meta.Get(keyModel))
		dim, err := strconv.Atoi(string(meta.Get(keyDimension)))
		if err != nil {
			return fmt.Errorf("bad dimension: %w", err)
		}
		count, err := strconv.Atoi(string(meta.Get(keyCount)))
		if err != nil {
			return fmt.Errorf("bad count: %w", err)
		}
		if dim <= 0 {
			return fmt.Errorf("bad dimension %d", dim)
		}
		if count < 0 {
			return fmt.Errorf("bad count %d", count)
		}
		s.Dimension = dim
		s.Vectors = make([][]float32, 0, min(count, 1<<16))

		// Big-endian keys iterate in index order.
		c := vecs.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 8 {
				return fmt.Errorf("bad vector key %x", k)
			}
			idx := binary.BigEndian.Uint64(k)
			if idx != uint64(len(s.Vectors)) {
				return fmt.Errorf("vector index %d out of sequence, want %d", idx, len(s.Vectors))
			}
			vec, err := decodeVector(v, dim)
			if err != nil {
				return fmt.Errorf("vector %d: %w", idx, err)
			}
			s.Vectors = append(s.Vectors, vec)
		}
		if len(s.Vectors) != count {
			return fmt.Errorf("found %d vectors, meta says %d", len(s.Vectors), count)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func saveBolt(path string, s *Store) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open bolt db: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketMeta, err)
		}
		vecs, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketVectors, err)
		}
		if err := meta.Put(keyModel, []byte(s.Model)); err != nil {
			return err
		}
		if err := meta.Put(keyDimension, []byte(strconv.Itoa(s.Dimension))); err != nil {
			return err
		}
		if err := meta.Put(keyCount, []byte(strconv.Itoa(len(s.Vectors)))); err != nil {
			return err
		}
		for i, v := range s.Vectors {
			if err := vecs.Put(indexKey(i), encodeVector(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func indexKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("payload is %d bytes, want %d", len(b), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
