// Package persist mirrors a correction service into a GraphStorage. A nil
// storage turns every call into a no-op so the binaries run without a
// database.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/correction"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/evaluation"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/fusion"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/store"
)

type Persister struct {
	storage store.GraphStorage
	graphID string
}

func New(storage store.GraphStorage, graphID string) *Persister {
	return &Persister{storage: storage, graphID: graphID}
}

func (p *Persister) Enabled() bool {
	return p != nil && p.storage != nil
}

func (p *Persister) GraphID() string {
	return p.graphID
}

// Load restores svc from the stored snapshot and space. A graph that was
// never saved leaves svc untouched.
func (p *Persister) Load(ctx context.Context, svc *correction.Service) error {
	if !p.Enabled() {
		return nil
	}
	snap, err := p.storage.LoadSnapshot(ctx, p.graphID)
	if err != nil {
		if errors.Is(err, store.ErrNoSnapshot) {
			logger.Info("[Persist] No stored snapshot, starting empty", "graph", p.graphID)
			return nil
		}
		return err
	}
	space, err := p.storage.LoadSpace(ctx, p.graphID)
	if err != nil {
		return err
	}
	if err := svc.Restore(snap, space); err != nil {
		return fmt.Errorf("failed to restore graph %s: %w", p.graphID, err)
	}
	return nil
}

// SaveGraph writes the current snapshot of svc.
func (p *Persister) SaveGraph(ctx context.Context, svc *correction.Service) error {
	if !p.Enabled() {
		return nil
	}
	return p.storage.SaveSnapshot(ctx, p.graphID, svc.Snapshot())
}

// SaveCorrection writes the snapshot after a pass together with its report.
func (p *Persister) SaveCorrection(ctx context.Context, svc *correction.Service, report *fusion.Report) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.SaveGraph(ctx, svc); err != nil {
		return err
	}
	_, err := p.storage.SaveReport(ctx, p.graphID, store.ReportCorrection, report.PassID, report.Version, report)
	return err
}

func (p *Persister) SaveSpace(ctx context.Context, space *embedding.Space) error {
	if !p.Enabled() || space == nil {
		return nil
	}
	return p.storage.SaveSpace(ctx, p.graphID, space)
}

func (p *Persister) SaveEvaluation(ctx context.Context, report *evaluation.Report) error {
	if !p.Enabled() {
		return nil
	}
	_, err := p.storage.SaveReport(ctx, p.graphID, store.ReportEvaluation, "", report.Version, report)
	return err
}

// SaveCycle stores the graph, the trained space and the cycle report.
func (p *Persister) SaveCycle(ctx context.Context, svc *correction.Service, cycle *correction.CycleReport) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.SaveCorrection(ctx, svc, cycle.Correction); err != nil {
		return err
	}
	if err := p.SaveSpace(ctx, svc.Space()); err != nil {
		return err
	}
	_, err := p.storage.SaveReport(ctx, p.graphID, store.ReportCycle, cycle.Correction.PassID, cycle.Correction.Version, cycle)
	return err
}

// LatestCorrection returns the newest stored correction report, or nil.
func (p *Persister) LatestCorrection(ctx context.Context) (*fusion.Report, error) {
	if !p.Enabled() {
		return nil, nil
	}
	report := new(fusion.Report)
	if err := p.storage.LatestReport(ctx, p.graphID, store.ReportCorrection, report); err != nil {
		if errors.Is(err, store.ErrNoReport) {
			return nil, nil
		}
		return nil, err
	}
	return report, nil
}
