package correction

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/resolver"

	"github.com/go-playground/validator"
)

// IngestResult reports what happened to one ingested batch. Rejected
// triples are listed in Errors by their index in the batch.
type IngestResult struct {
	Received int                  `json:"received"`
	Accepted int                  `json:"accepted"`
	Queued   bool                 `json:"queued"`
	Created  int                  `json:"created"`
	Merged   int                  `json:"merged"`
	Errors   []*common.InputError `json:"errors"`
	Version  uint64               `json:"version"`
}

// mention is a validated raw triple ready to be resolved.
type mention struct {
	index      int
	subject    string
	subjectCtx resolver.MentionContext
	predicate  string
	object     string
	objectCtx  resolver.MentionContext
	confidence float64
	sourceTurn string
	sourceText string
	timestamp  time.Time
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// prepare validates raw and turns it into a mention. Every failure is an
// *common.InputError carrying index.
func (s *Service) prepare(index int, raw common.RawTriple) (mention, error) {
	if err := s.validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return mention{}, &common.InputError{
				Index:  index,
				Field:  fe.Field(),
				Reason: fmt.Sprintf("failed on %q validation", fe.Tag()),
			}
		}
		return mention{}, &common.InputError{Index: index, Reason: err.Error()}
	}

	subject := common.NormalizeName(raw.Subject)
	if subject == "" {
		return mention{}, &common.InputError{Index: index, Field: "subject", Reason: "empty after normalization"}
	}
	object := common.NormalizeName(raw.Object)
	if object == "" {
		return mention{}, &common.InputError{Index: index, Field: "object", Reason: "empty after normalization"}
	}
	predicate := common.NormalizePredicate(raw.Predicate)
	if predicate == "" {
		return mention{}, &common.InputError{Index: index, Field: "predicate", Reason: "empty after normalization"}
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw.Timestamp))
	if err != nil {
		return mention{}, &common.InputError{Index: index, Field: "timestamp", Reason: "not an RFC 3339 time"}
	}

	return mention{
		index:      index,
		subject:    subject,
		subjectCtx: resolver.MentionContext{Text: raw.SourceText, Type: raw.SubjectType},
		predicate:  predicate,
		object:     object,
		objectCtx:  resolver.MentionContext{Text: raw.SourceText, Type: raw.ObjectType},
		confidence: *raw.Confidence,
		sourceTurn: strings.TrimSpace(raw.SourceTurnID),
		sourceText: raw.SourceText,
		timestamp:  ts,
	}, nil
}
