package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/correction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `[
  {"subject": "User", "predicate": "lives_in", "object": "Boston", "confidence": 0.9,
   "source_turn_id": "turn-1", "timestamp": "2024-01-01T10:00:00Z"},
  {"subject": "User", "predicate": "lives_in", "object": "Seattle", "confidence": 0.85,
   "source_turn_id": "turn-2", "timestamp": "2024-02-01T10:00:00Z"}
]`

func TestEvaluateCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "triples.json")
	output := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(input, []byte(sample), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--input", input, "--output", output, "--no-infer"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "metric")
	assert.Contains(t, out.String(), "1 superseded")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var cycle correction.CycleReport
	require.NoError(t, json.Unmarshal(data, &cycle))
	require.NotNil(t, cycle.Correction)
	assert.Equal(t, 1, cycle.Correction.TotalSuperseded)
	assert.True(t, cycle.Training.Skipped)
}

func TestEvaluateCommandCSV(t *testing.T) {
	input := filepath.Join(t.TempDir(), "triples.csv")
	csv := "subject,predicate,object,confidence,source_turn_id,timestamp\n" +
		"User,lives_in,Boston,0.9,turn-1,2024-01-01T10:00:00Z\n" +
		"User,lives_in,Seattle,0.85,turn-2,2024-02-01T10:00:00Z\n"
	require.NoError(t, os.WriteFile(input, []byte(csv), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-i", input})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1 superseded")
}

func TestEvaluateCommandRejectsInvalidInput(t *testing.T) {
	input := filepath.Join(t.TempDir(), "triples.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"subject": "A"}]`), 0o644))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--input", input})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid raw triples")
}
