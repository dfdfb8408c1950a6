package csv

import "testing"

func TestParseCSV(t *testing.T) {
	input := "Subject, Predicate ,object,confidence,source_turn_id,timestamp,source_text\n" +
		"User,lives_in,Boston,0.9,turn-1,2024-01-01T10:00:00Z,\"I live in Boston, MA\"\n" +
		",,,,,,\n" +
		"User,likes,Coffee,high,turn-2,2024-01-02T10:00:00Z\n"

	triples, err := ParseCSV([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 2 {
		t.Fatalf("got %d triples, want 2", len(triples))
	}

	first := triples[0]
	if first.Subject != "User" || first.Predicate != "lives_in" || first.Object != "Boston" {
		t.Errorf("unexpected first triple: %+v", first)
	}
	if first.Confidence == nil || *first.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", first.Confidence)
	}
	if first.SourceText != "I live in Boston, MA" {
		t.Errorf("source_text = %q", first.SourceText)
	}

	// short row and unparseable confidence
	second := triples[1]
	if second.Confidence != nil {
		t.Errorf("confidence = %v, want unset", *second.Confidence)
	}
	if second.SourceText != "" {
		t.Errorf("source_text = %q, want empty", second.SourceText)
	}
}

func TestParseCSVHeaderErrors(t *testing.T) {
	if _, err := ParseCSV(nil); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := ParseCSV([]byte("subject,object\nA,B\n")); err == nil {
		t.Error("expected error for missing predicate column")
	}
}
