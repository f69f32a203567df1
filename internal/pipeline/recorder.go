package pipeline

import (
	"github.com/google/uuid"

	"cosmos/sieve/internal/clean"
	"cosmos/sieve/internal/ledger"
)

// Recorder stores run provenance. *ledger.Ledger implements it.
type Recorder interface {
	StartRun(r ledger.Run) (string, error)
	RecordStage(runID string, s ledger.Stage) error
	RecordDeletions(runID string, ds []ledger.Deletion) error
	FinishRun(id, status, failedStage, errMsg string, finalRows int) error
}

// NopRecorder hands out run IDs and stores nothing.
type NopRecorder struct{}

func (NopRecorder) StartRun(ledger.Run) (string, error) { return uuid.NewString(), nil }

func (NopRecorder) RecordStage(string, ledger.Stage) error { return nil }

func (NopRecorder) RecordDeletions(string, []ledger.Deletion) error { return nil }

func (NopRecorder) FinishRun(string, string, string, string, int) error { return nil }

// LedgerDeletions converts a stage's deletions into ledger rows.
func LedgerDeletions(stage, path string, ds []clean.Deletion) []ledger.Deletion {
	if len(ds) == 0 {
		return nil
	}
	out := make([]ledger.Deletion, len(ds))
	for i, d := range ds {
		out[i] = ledger.Deletion{Stage: stage, Number: d.Number, Reason: d.Reason, Source: d.Source, Catalog: path}
	}
	return out
}
