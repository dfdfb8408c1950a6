package store

import "slices"

// CopyInChunks hands rows to copyFn in slices of at most chunkSize and sums
// the copied row counts. It stops at the first error.
func CopyInChunks[T any](rows []T, chunkSize int, copyFn func([]T) (int64, error)) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if chunkSize <= 0 {
		chunkSize = len(rows)
	}
	var total int64
	for chunk := range slices.Chunk(rows, chunkSize) {
		n, err := copyFn(chunk)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Dedupe drops zero and repeated values, keeping first occurrences.
func Dedupe[T comparable](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	var zero T
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if v == zero {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ToFloat32 narrows a vector for storage.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// ToFloat64 widens a stored vector.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
