package service

import (
	"context"
	"sort"

	"member-onboarding/internal/models"

	"github.com/sirupsen/logrus"
)

// LedgerAccumulator is the only writer of a ledger's counters while a
// batch runs. Workers submit row results; one goroutine folds them in
// order of arrival and persists each increment.
type LedgerAccumulator struct {
	ledgerID string
	store    LedgerStore
	progress ProgressTracker
	logger   *logrus.Logger

	results chan models.RowResult
	done    chan struct{}

	seen       map[int]struct{}
	stats      models.Statistics
	errors     []models.LedgerError
	persistErr error
}

// NewLedgerAccumulator starts the writer goroutine, seeded with the
// ledger's current counters. Persistence runs detached from ctx so results
// submitted before cancellation still land.
func NewLedgerAccumulator(ctx context.Context, store LedgerStore, progress ProgressTracker, ledger *models.ImportLedger, logger *logrus.Logger) *LedgerAccumulator {
	if progress == nil {
		progress = NopProgress{}
	}
	a := &LedgerAccumulator{
		ledgerID: ledger.ID,
		store:    store,
		progress: progress,
		logger:   logger,
		results:  make(chan models.RowResult, 64),
		done:     make(chan struct{}),
		seen:     map[int]struct{}{},
		stats:    ledger.Statistics(),
	}
	go a.run(context.WithoutCancel(ctx))
	return a
}

// Submit hands one row result to the writer. It must not be called after Close.
func (a *LedgerAccumulator) Submit(result models.RowResult) {
	a.results <- result
}

// Close waits for every submitted result to be folded. It returns the
// ledger counters and the errors recorded by this run.
func (a *LedgerAccumulator) Close() (models.Statistics, []models.LedgerError, error) {
	close(a.results)
	<-a.done

	errs := append([]models.LedgerError(nil), a.errors...)
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].RowNumber < errs[j].RowNumber })
	return a.stats, errs, a.persistErr
}

func (a *LedgerAccumulator) run(ctx context.Context) {
	defer close(a.done)
	for result := range a.results {
		a.apply(ctx, result)
	}
}

func (a *LedgerAccumulator) apply(ctx context.Context, result models.RowResult) {
	if _, dup := a.seen[result.RowNumber]; dup {
		a.logger.WithFields(logrus.Fields{
			"ledger_id": a.ledgerID,
			"row":       result.RowNumber,
		}).Warn("Ignoring repeated row result")
		return
	}
	a.seen[result.RowNumber] = struct{}{}

	applied, err := a.store.ApplyRowResult(ctx, a.ledgerID, result)
	if err != nil {
		if a.persistErr == nil {
			a.persistErr = err
		}
		a.logger.WithFields(logrus.Fields{
			"ledger_id": a.ledgerID,
			"row":       result.RowNumber,
		}).WithError(err).Error("Failed to persist row result")
		return
	}
	if !applied {
		// Resolved by an earlier run of the same ledger.
		return
	}

	a.stats.Apply(result)
	for _, e := range result.Errors {
		a.errors = append(a.errors, e.LedgerError())
	}
	a.progress.Update(ctx, a.ledgerID, a.stats)
}
