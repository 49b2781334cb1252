package service

import (
	"context"
	"sync"
	"testing"

	"member-onboarding/internal/models"
	"member-onboarding/internal/repository/memory"
)

func stageLedger(t *testing.T, store *memory.LedgerStore, id string, n int) *models.ImportLedger {
	t.Helper()
	ledger := &models.ImportLedger{ID: id, TotalRows: n, Status: models.LedgerProcessing, Filename: "members.csv"}
	rows := make([]models.LedgerRow, n)
	for i := range rows {
		rows[i] = models.LedgerRow{RowNumber: i + 1, MemberID: "M", Name: "N", Phone: "1"}
	}
	if err := store.Create(context.Background(), ledger, rows); err != nil {
		t.Fatal(err)
	}
	return ledger
}

func TestLedgerAccumulatorCountsEachRowOnce(t *testing.T) {
	store := memory.NewLedgerStore()
	ledger := stageLedger(t, store, "L-1", 100)

	acc := NewLedgerAccumulator(context.Background(), store, nil, ledger, quietLogger())
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			outcome := models.RowSuccessful
			var errs []models.RowError
			if row%10 == 0 {
				outcome = models.RowFailed
				errs = []models.RowError{{Row: row, Reason: "bad", Kind: models.KindValidation}}
			}
			acc.Submit(models.RowResult{
				RowNumber: row,
				Outcome:   outcome,
				Errors:    errs,
				Delivery:  &models.DeliveryReport{SMS: &models.ChannelOutcome{Channel: models.ChannelSMS, OK: true}},
			})
		}(i)
	}
	wg.Wait()
	acc.Submit(models.RowResult{RowNumber: 5, Outcome: models.RowFailed})

	stats, errs, err := acc.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stats.Successful != 90 || stats.Failed != 10 || stats.SMSSent != 100 {
		t.Errorf("stats = %+v", stats)
	}
	if len(errs) != 10 || errs[0].RowNumber != 10 || errs[9].RowNumber != 100 {
		t.Errorf("errors not ordered by row: %+v", errs)
	}

	stored, _ := store.FindByID(context.Background(), "L-1")
	if stored.Successful != 90 || stored.Failed != 10 || !stored.Balanced() {
		t.Errorf("stored ledger = %+v", stored)
	}
}

func TestLedgerAccumulatorIgnoresRowsResolvedEarlier(t *testing.T) {
	store := memory.NewLedgerStore()
	ledger := stageLedger(t, store, "L-2", 2)
	if _, err := store.ApplyRowResult(context.Background(), "L-2", models.RowResult{RowNumber: 1, Outcome: models.RowSkipped}); err != nil {
		t.Fatal(err)
	}
	ledger, _ = store.FindByID(context.Background(), "L-2")

	acc := NewLedgerAccumulator(context.Background(), store, nil, ledger, quietLogger())
	acc.Submit(models.RowResult{RowNumber: 1, Outcome: models.RowSuccessful})
	acc.Submit(models.RowResult{RowNumber: 2, Outcome: models.RowSuccessful})
	stats, _, err := acc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || stats.Successful != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLedgerAccumulatorReportsClosedLedger(t *testing.T) {
	store := memory.NewLedgerStore()
	ledger := stageLedger(t, store, "L-3", 1)
	if err := store.Finalize(context.Background(), "L-3", models.LedgerCompleted, "", ledger.CreatedAt); err != nil {
		t.Fatal(err)
	}

	acc := NewLedgerAccumulator(context.Background(), store, nil, ledger, quietLogger())
	acc.Submit(models.RowResult{RowNumber: 1, Outcome: models.RowSuccessful})
	if _, _, err := acc.Close(); err == nil {
		t.Fatal("expected error writing to a completed ledger")
	}
}
