package io

import (
	"context"
	"io"
	"os"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/loader"
)

// Stdin is the path that reads from standard input.
const Stdin = "-"

// IOFileLoader loads files from the local filesystem with caching.
type IOFileLoader struct {
	cache *loader.Cache
	stdin io.Reader
}

func NewIOFileLoader() *IOFileLoader {
	return &IOFileLoader{cache: loader.NewCache(), stdin: os.Stdin}
}

// GetFile reads path, or standard input for "-". Results are cached.
func (l *IOFileLoader) GetFile(ctx context.Context, path string) ([]byte, error) {
	return l.cache.Get(path, func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if path == Stdin {
			return io.ReadAll(l.stdin)
		}
		return os.ReadFile(path)
	})
}
