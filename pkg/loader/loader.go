package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/loader/csv"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FileLoader fetches the bytes behind a path. Implementations exist for the
// local filesystem and S3.
type FileLoader interface {
	GetFile(ctx context.Context, path string) ([]byte, error)
}

// Source is one input of raw triples: where it lives, how it is encoded and
// the loader that fetches it.
type Source struct {
	Path   string
	Format Format
	Loader FileLoader
}

// NewSource picks the format from the file extension. Anything that is not
// a .csv file is read as JSON.
func NewSource(path string, l FileLoader) Source {
	format := FormatJSON
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		format = FormatCSV
	}
	return Source{Path: path, Format: format, Loader: l}
}

// Triples loads and decodes the source.
func (s Source) Triples(ctx context.Context) ([]common.RawTriple, error) {
	data, err := s.Loader.GetFile(ctx, s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.Path, err)
	}
	switch s.Format {
	case FormatCSV:
		return csv.ParseCSV(data)
	default:
		return DecodeJSON(data)
	}
}

// DecodeJSON accepts an array of raw triples or an object with a "triples"
// field. Broken JSON is repaired when possible.
func DecodeJSON(data []byte) ([]common.RawTriple, error) {
	input := strings.TrimSpace(string(data))
	if input == "" {
		return nil, fmt.Errorf("input is empty")
	}
	if strings.HasPrefix(input, "[") {
		var triples []common.RawTriple
		if err := ai.UnmarshalFlexible(input, &triples); err != nil {
			return nil, fmt.Errorf("failed to decode raw triples: %w", err)
		}
		return triples, nil
	}
	var batch common.RawTripleBatch
	if err := ai.UnmarshalFlexible(input, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode raw triples: %w", err)
	}
	return batch.Triples, nil
}
