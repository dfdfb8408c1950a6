package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
)

var required = []string{"subject", "predicate", "object"}

// ParseCSV reads raw triples from CSV with a header row. Columns are matched
// by their JSON field names, case-insensitively. Blank rows and rows the
// reader cannot parse are skipped. A confidence that is not a number is
// left unset so the triple is rejected at ingestion with a field error.
func ParseCSV(content []byte) ([]common.RawTriple, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv input is empty")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", name)
		}
	}

	triples := []common.RawTriple{}
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("[CSV] Skipping unreadable row", "line", line, "err", err)
			continue
		}
		if isEmpty(record) {
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		t := common.RawTriple{
			Subject:      field("subject"),
			SubjectType:  field("subject_type"),
			Predicate:    field("predicate"),
			Object:       field("object"),
			ObjectType:   field("object_type"),
			SourceTurnID: field("source_turn_id"),
			Timestamp:    field("timestamp"),
			SourceText:   field("source_text"),
		}
		if raw := field("confidence"); raw != "" {
			if c, err := strconv.ParseFloat(raw, 64); err == nil {
				t.Confidence = &c
			}
		}
		triples = append(triples, t)
	}
	return triples, nil
}

func isEmpty(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
