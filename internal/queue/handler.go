package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/config"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/persist"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/correction"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
)

// ErrMalformed marks a message that can never be processed. Such messages
// go to the dead-letter queue without retries.
var ErrMalformed = errors.New("malformed message")

// Permanent reports whether err must not be retried.
func Permanent(err error) bool {
	var inputErr *common.InputError
	return errors.Is(err, ErrMalformed) || errors.As(err, &inputErr)
}

// Handler applies queue messages to one correction service.
type Handler struct {
	svc     *correction.Service
	pub     Publisher
	persist *persist.Persister
	cfg     config.QueueConfig
}

func NewHandler(svc *correction.Service, pub Publisher, p *persist.Persister, cfg config.QueueConfig) *Handler {
	return &Handler{svc: svc, pub: pub, persist: p, cfg: cfg}
}

// Queues returns the queue names the handler consumes.
func (h *Handler) Queues() []string {
	return []string{h.cfg.RawTriples, h.cfg.Correction}
}

// Handle dispatches body by the queue it was consumed from.
func (h *Handler) Handle(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case h.cfg.RawTriples:
		return h.ProcessRawTriples(ctx, body)
	case h.cfg.Correction:
		return h.ProcessCorrection(ctx, body)
	default:
		return fmt.Errorf("%w: no handler for queue %s", ErrMalformed, queueName)
	}
}

func (h *Handler) checkGraph(graphID string) error {
	if graphID != "" && graphID != h.persist.GraphID() {
		return fmt.Errorf("%w: graph %s is not served by this worker", ErrMalformed, graphID)
	}
	return nil
}

// ProcessRawTriples ingests one batch. Invalid triples are logged and
// dropped; a batch without a single valid triple is rejected as a whole.
func (h *Handler) ProcessRawTriples(ctx context.Context, body []byte) error {
	msg := new(RawTriplesMsg)
	if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		if err := ai.UnmarshalFlexible(string(body), &msg.Triples); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else if err := ai.UnmarshalFlexible(string(body), msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := h.checkGraph(msg.GraphID); err != nil {
		return err
	}

	log := h.scope(msg.CorrelationID)

	res, err := h.svc.Ingest(ctx, msg.Triples)
	if err != nil {
		return err
	}
	if res.Accepted == 0 && len(res.Errors) > 0 {
		return fmt.Errorf("all %d raw triples rejected: %w", res.Received, res.Errors[0])
	}
	log.Info("[Queue] Raw triples ingested",
		"accepted", res.Accepted,
		"rejected", len(res.Errors),
		"created", res.Created,
		"merged", res.Merged,
		"queued", res.Queued,
	)

	if h.cfg.AutoCorrect {
		return h.correct(ctx, log, msg.CorrelationID, false)
	}
	return h.persist.SaveGraph(ctx, h.svc)
}

// ProcessCorrection runs a correction pass and publishes the result.
func (h *Handler) ProcessCorrection(ctx context.Context, body []byte) error {
	msg := new(CorrectionMsg)
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := ai.UnmarshalFlexible(string(body), msg); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if err := h.checkGraph(msg.GraphID); err != nil {
		return err
	}
	return h.correct(ctx, h.scope(msg.CorrelationID), msg.CorrelationID, msg.Train)
}

func (h *Handler) scope(correlationID string) *logger.Logger {
	return logger.With("graph", h.persist.GraphID(), "correlation_id", correlationID)
}

func (h *Handler) correct(ctx context.Context, log *logger.Logger, correlationID string, train bool) error {
	report, err := h.svc.Correct(ctx)
	if err != nil {
		return err
	}
	if err := h.persist.SaveCorrection(ctx, h.svc, report); err != nil {
		return fmt.Errorf("failed to persist correction: %w", err)
	}

	event := CorrectedEvent{
		GraphID:          h.persist.GraphID(),
		CorrelationID:    correlationID,
		PassID:           report.PassID,
		Version:          report.Version,
		DuplicatesMerged: report.DuplicatesMerged,
		Conflicts:        report.Conflicts(),
		Superseded:       report.TotalSuperseded,
		Inferred:         report.Inferred,
		SchemaGaps:       report.SchemaGaps,
		CorrectedAt:      time.Now().UTC(),
	}

	if train {
		res, err := h.svc.Train(ctx)
		if err != nil {
			return err
		}
		if res.Warning != nil {
			log.Warn("[Queue] Training skipped", "err", res.Warning)
		}
		if res.Space != nil {
			event.SpaceVersion = res.Space.Version
			if err := h.persist.SaveSpace(ctx, res.Space); err != nil {
				return fmt.Errorf("failed to persist embedding space: %w", err)
			}
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := PublishTopic(ctx, h.pub, h.cfg.Exchange, h.cfg.Topic, correlationID, data); err != nil {
		log.Error("[Queue] Failed to publish corrected event", "topic", h.cfg.Topic, "err", err)
	}
	log.Info("[Queue] Correction pass finished",
		"pass", report.PassID,
		"conflicts", event.Conflicts,
		"superseded", event.Superseded,
	)
	return nil
}
