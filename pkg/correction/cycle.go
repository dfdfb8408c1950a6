package correction

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/evaluation"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/fusion"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
)

// CycleReport is the before/after record of one correct-and-measure run.
type CycleReport struct {
	Before     *evaluation.Report `json:"before"`
	Correction *fusion.Report     `json:"correction"`
	Training   TrainSummary       `json:"training"`
	After      *evaluation.Report `json:"after"`
	Diff       evaluation.Diff    `json:"diff"`
}

type TrainSummary struct {
	Skipped      bool    `json:"skipped"`
	Warning      string  `json:"warning,omitempty"`
	SpaceVersion uint64  `json:"space_version"`
	Epochs       int     `json:"epochs"`
	Loss         float64 `json:"loss"`
}

func summarize(res embedding.TrainResult) TrainSummary {
	sum := TrainSummary{Skipped: res.Skipped}
	if res.Warning != nil {
		sum.Warning = res.Warning.Error()
	}
	if res.Space != nil {
		sum.SpaceVersion = res.Space.Version
		sum.Epochs = res.Space.Epochs
		sum.Loss = res.Space.Loss
	}
	return sum
}

// Cycle trains on the uncorrected graph and evaluates it, runs a correction
// pass, retrains and evaluates again. Both evaluations use a space trained
// on the graph they measure.
func (s *Service) Cycle(ctx context.Context) (*CycleReport, error) {
	if _, err := s.Train(ctx); err != nil {
		return nil, err
	}
	before, err := s.Evaluate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate before correction: %w", err)
	}

	report, err := s.Correct(ctx)
	if err != nil {
		return nil, err
	}

	trained, err := s.Train(ctx)
	if err != nil {
		return nil, err
	}
	after, err := s.Evaluate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate after correction: %w", err)
	}

	cycle := &CycleReport{
		Before:     before,
		Correction: report,
		Training:   summarize(trained),
		After:      after,
		Diff:       evaluation.Compare(before, after),
	}
	logger.Info("[Cycle] Correction cycle finished",
		"pass", report.PassID,
		"superseded", report.TotalSuperseded,
		"improved", cycle.Diff.Improved(),
	)
	return cycle, nil
}
