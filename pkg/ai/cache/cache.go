package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrKeyNotFound is returned when a key is not cached.
	ErrKeyNotFound = errors.New("key not found in cache")
)

// VectorCache stores embeddings by text key.
type VectorCache interface {
	Get(key string) ([]float32, error)
	Set(key string, vec []float32) error
	Close() error
}

// MemoryCache is a process-local VectorCache.
type MemoryCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vectors: make(map[string][]float32)}
}

func (c *MemoryCache) Get(key string) ([]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.vectors[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return vec, nil
}

func (c *MemoryCache) Set(key string, vec []float32) error {
	c.mu.Lock()
	c.vectors[key] = vec
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}

// BadgerCache persists embeddings in BadgerDB so restarts do not re-embed
// every known alias.
type BadgerCache struct {
	db     *badger.DB
	prefix string
	ttl    time.Duration
}

// NewBadgerCache opens a BadgerDB-backed cache at path. Keys are namespaced
// by prefix, usually the embedding model name, so switching models never
// returns stale vectors. A ttl of zero keeps entries forever.
func NewBadgerCache(path, prefix string, ttl time.Duration) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerCache{db: db, prefix: prefix, ttl: ttl}, nil
}

func (c *BadgerCache) Get(key string) ([]float32, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(c.prefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec, err = decodeVector(val)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return vec, nil
}

func (c *BadgerCache) Set(key string, vec []float32) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(c.prefix+key), encodeVector(vec))
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector entry of %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
