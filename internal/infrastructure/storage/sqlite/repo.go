package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS observations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  chain TEXT NOT NULL,
  asset TEXT NOT NULL,
  price REAL NOT NULL,
  bid REAL NOT NULL,
  ask REAL NOT NULL,
  volume REAL NOT NULL,
  quality TEXT NOT NULL,
  source TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE(chain, asset)
);
CREATE INDEX IF NOT EXISTS idx_obs_asset ON observations(asset);
CREATE INDEX IF NOT EXISTS idx_obs_ts ON observations(ts_ms);

CREATE TABLE IF NOT EXISTS opportunities (
  id TEXT PRIMARY KEY,
  asset TEXT NOT NULL,
  source_chain TEXT NOT NULL,
  destination_chain TEXT NOT NULL,
  buy_price REAL NOT NULL,
  sell_price REAL NOT NULL,
  diff_pct REAL NOT NULL,
  estimated_fee REAL NOT NULL,
  net_profit REAL NOT NULL,
  confidence REAL NOT NULL,
  created_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opp_asset ON opportunities(asset);
CREATE INDEX IF NOT EXISTS idx_opp_created ON opportunities(created_at);

CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  message_id TEXT NOT NULL UNIQUE,
  opportunity_id TEXT NOT NULL,
  asset TEXT NOT NULL,
  source_chain TEXT NOT NULL,
  destination_chain TEXT NOT NULL,
  status TEXT NOT NULL,
  amount REAL NOT NULL,
  fees REAL NOT NULL,
  fees_reconciled INTEGER NOT NULL DEFAULT 0,
  leg_failed TEXT,
  error_message TEXT,
  created_at INTEGER NOT NULL,
  completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tx_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_tx_asset ON transactions(asset);

CREATE TABLE IF NOT EXISTS trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  opportunity_id TEXT NOT NULL,
  message_id TEXT NOT NULL,
  asset TEXT NOT NULL,
  profit REAL NOT NULL,
  fee REAL NOT NULL,
  success INTEGER NOT NULL,
  closed_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_asset ON trades(asset);
CREATE INDEX IF NOT EXISTS idx_trades_closed ON trades(closed_at);
`)
	return err
}

func (r *Repo) UpsertLatestObservation(ctx context.Context, obs *model.PriceObservation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO observations(chain, asset, price, bid, ask, volume, quality, source, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain, asset) DO UPDATE SET
			price=excluded.price, bid=excluded.bid, ask=excluded.ask,
			volume=excluded.volume, quality=excluded.quality,
			source=excluded.source, ts_ms=excluded.ts_ms
	`, obs.Chain, obs.AssetID, obs.Price, obs.Bid, obs.Ask, obs.Volume,
		string(obs.Quality), obs.SourceName, obs.Timestamp.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO opportunities(
			id, asset, source_chain, destination_chain, buy_price, sell_price,
			diff_pct, estimated_fee, net_profit, confidence, created_at, expires_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, opp.ID, opp.AssetID, opp.SourceChain, opp.DestinationChain, opp.BuyPrice, opp.SellPrice,
		opp.PriceDifferencePct, opp.EstimatedFee, opp.NetProfitEstimate, opp.Confidence,
		opp.CreatedAt.UnixMilli(), opp.ExpiresAt.UnixMilli())
	return err
}

func (r *Repo) SaveTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(
			id, message_id, opportunity_id, asset, source_chain, destination_chain,
			status, amount, fees, fees_reconciled, leg_failed, error_message, created_at, completed_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.MessageID, tx.OpportunityID, tx.AssetID, tx.SourceChain, tx.DestinationChain,
		string(tx.Status), tx.Amount, tx.Fees, boolInt(tx.FeesReconciled), tx.LegFailed, tx.ErrorMessage,
		tx.CreatedAt.UnixMilli(), completedMs(tx))
	return err
}

func (r *Repo) UpdateTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET
			status=?, fees=?, fees_reconciled=?, leg_failed=?, error_message=?, completed_at=?
		WHERE message_id=?
	`, string(tx.Status), tx.Fees, boolInt(tx.FeesReconciled), tx.LegFailed, tx.ErrorMessage,
		completedMs(tx), tx.MessageID)
	return err
}

func (r *Repo) GetTransaction(ctx context.Context, messageID string) (*model.CrossChainTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, message_id, opportunity_id, asset, source_chain, destination_chain,
		       status, amount, fees, fees_reconciled, leg_failed, error_message, created_at, completed_at
		FROM transactions
		WHERE message_id=?
	`, messageID)
	return scanTransaction(row)
}

func (r *Repo) ListOpenTransactions(ctx context.Context) ([]*model.CrossChainTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, opportunity_id, asset, source_chain, destination_chain,
		       status, amount, fees, fees_reconciled, leg_failed, error_message, created_at, completed_at
		FROM transactions
		WHERE status IN ('pending', 'in_progress')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CrossChainTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repo) SaveTrade(ctx context.Context, trade *model.TradeResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades(opportunity_id, message_id, asset, profit, fee, success, closed_at, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, trade.OpportunityID, trade.MessageID, trade.AssetID, trade.Profit, trade.Fee,
		boolInt(trade.Success), trade.ClosedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.CrossChainTransaction, error) {
	var tx model.CrossChainTransaction
	var status string
	var reconciled int
	var legFailed, errMsg sql.NullString
	var createdMs int64
	var completed sql.NullInt64

	err := row.Scan(&tx.ID, &tx.MessageID, &tx.OpportunityID, &tx.AssetID,
		&tx.SourceChain, &tx.DestinationChain, &status, &tx.Amount, &tx.Fees,
		&reconciled, &legFailed, &errMsg, &createdMs, &completed)
	if err != nil {
		return nil, err
	}

	tx.Status = model.TxStatus(status)
	tx.FeesReconciled = reconciled != 0
	tx.LegFailed = legFailed.String
	tx.ErrorMessage = errMsg.String
	tx.CreatedAt = time.UnixMilli(createdMs)
	if completed.Valid {
		t := time.UnixMilli(completed.Int64)
		tx.CompletedAt = &t
	}
	return &tx, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func completedMs(tx *model.CrossChainTransaction) any {
	if tx.CompletedAt == nil {
		return nil
	}
	return tx.CompletedAt.UnixMilli()
}

var _ port.Repository = (*Repo)(nil)
