package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chainarb/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepoUpsertObservation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	obs := &model.PriceObservation{
		Chain:      "ethereum",
		AssetID:    "WETH",
		Price:      3000.0,
		Bid:        2999.0,
		Ask:        3001.0,
		Volume:     500000,
		Timestamp:  time.Now(),
		SourceName: "relay-http",
		Quality:    model.QualityHigh,
		Available:  true,
	}
	if err := repo.UpsertLatestObservation(ctx, obs); err != nil {
		t.Fatalf("UpsertLatestObservation failed: %v", err)
	}

	// same chain+asset overwrites, no constraint error
	obs.Price = 3010.0
	if err := repo.UpsertLatestObservation(ctx, obs); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
}

func TestSQLiteRepoSaveOpportunity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	opp := &model.ArbitrageOpportunity{
		ID:                 "opp-1",
		AssetID:            "WETH",
		SourceChain:        "polygon",
		DestinationChain:   "ethereum",
		BuyPrice:           0.60,
		SellPrice:          0.68,
		PriceDifferencePct: 0.1333,
		EstimatedFee:       1.0,
		NetProfitEstimate:  6.0,
		Confidence:         0.8,
		CreatedAt:          time.Now(),
		ExpiresAt:          time.Now().Add(30 * time.Second),
	}
	if err := repo.SaveOpportunity(ctx, opp); err != nil {
		t.Fatalf("SaveOpportunity failed: %v", err)
	}
}

func TestSQLiteRepoTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := time.Now().Truncate(time.Millisecond)
	tx := &model.CrossChainTransaction{
		ID:               "tx-1",
		MessageID:        "msg-0001",
		OpportunityID:    "opp-1",
		AssetID:          "WETH",
		SourceChain:      "polygon",
		DestinationChain: "ethereum",
		Status:           model.TxPending,
		Amount:           250.0,
		Fees:             2.5,
		CreatedAt:        created,
	}
	if err := repo.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "msg-0001")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.Status != model.TxPending || got.Amount != 250.0 {
		t.Errorf("unexpected transaction: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("expected nil CompletedAt, got %v", got.CompletedAt)
	}

	done := time.Now().Truncate(time.Millisecond)
	tx.Status = model.TxSuccess
	tx.Fees = 2.7
	tx.FeesReconciled = true
	tx.CompletedAt = &done
	if err := repo.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}

	got, err = repo.GetTransaction(ctx, "msg-0001")
	if err != nil {
		t.Fatalf("GetTransaction after update failed: %v", err)
	}
	if got.Status != model.TxSuccess || !got.FeesReconciled || got.Fees != 2.7 {
		t.Errorf("update not applied: %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("expected CompletedAt %v, got %v", done, got.CompletedAt)
	}
}

func TestSQLiteRepoListOpenTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	statuses := []model.TxStatus{model.TxPending, model.TxInProgress, model.TxSuccess, model.TxFailed}
	for i, st := range statuses {
		tx := &model.CrossChainTransaction{
			ID:               "tx-" + string(rune('a'+i)),
			MessageID:        "msg-" + string(rune('a'+i)),
			OpportunityID:    "opp-1",
			AssetID:          "WETH",
			SourceChain:      "polygon",
			DestinationChain: "ethereum",
			Status:           st,
			Amount:           100,
			CreatedAt:        time.Now(),
		}
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction(%s) failed: %v", st, err)
		}
	}

	open, err := repo.ListOpenTransactions(ctx)
	if err != nil {
		t.Fatalf("ListOpenTransactions failed: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open transactions, got %d", len(open))
	}
	for _, tx := range open {
		if tx.Status.Terminal() {
			t.Errorf("terminal transaction listed as open: %+v", tx)
		}
	}
}

func TestSQLiteRepoSaveTrade(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	trade := &model.TradeResult{
		OpportunityID: "opp-1",
		MessageID:     "msg-0001",
		AssetID:       "WETH",
		Profit:        7.0,
		Fee:           1.0,
		Success:       true,
		ClosedAt:      time.Now(),
	}
	if err := repo.SaveTrade(ctx, trade); err != nil {
		t.Fatalf("SaveTrade failed: %v", err)
	}
}
