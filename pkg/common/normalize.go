package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// NormalizeName trims a mention and collapses inner whitespace, keeping the
// original casing for display.
func NormalizeName(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.Join(strings.Fields(value), " ")
}

// NormalizeKey is the case-insensitive lookup form of a mention.
func NormalizeKey(value string) string {
	return strings.ToLower(NormalizeName(value))
}

// NormalizePredicate lowercases a predicate and joins its words with
// underscores, so "Lives In" and "lives_in" name the same relation.
func NormalizePredicate(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), "_")
}

// ProvenanceID derives the id of one reported mention from what was said,
// in which turn and when. Mentions that differ only in case or spacing get
// the same id, so a redelivered batch folds into the records it created.
func ProvenanceID(sourceTurn, subject, predicate, object string, at time.Time) string {
	h := sha256.New()
	for _, part := range []string{
		strings.TrimSpace(sourceTurn),
		NormalizeKey(subject),
		NormalizePredicate(predicate),
		NormalizeKey(object),
		at.UTC().Format(time.RFC3339Nano),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
