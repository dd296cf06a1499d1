package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/jackc/pgx/v5/stdlib"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/model"
)

// Repo is an append-only analytics sink. Opportunities and trades are
// archived as JSON rows; the operational tables stay in sqlite.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
CREATE TABLE IF NOT EXISTS opportunity_log (
  id BIGSERIAL PRIMARY KEY,
  opportunity_id TEXT NOT NULL,
  asset TEXT NOT NULL,
  diff_pct DOUBLE PRECISION NOT NULL,
  detected_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opp_log_asset ON opportunity_log(asset);
CREATE INDEX IF NOT EXISTS idx_opp_log_detected ON opportunity_log(detected_ms);

CREATE TABLE IF NOT EXISTS trade_log (
  id BIGSERIAL PRIMARY KEY,
  opportunity_id TEXT NOT NULL,
  message_id TEXT NOT NULL,
  asset TEXT NOT NULL,
  profit DOUBLE PRECISION NOT NULL,
  fee DOUBLE PRECISION NOT NULL,
  success BOOLEAN NOT NULL,
  closed_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_log_asset ON trade_log(asset);
`)
	return err
}

func (r *Repo) UpsertLatestObservation(ctx context.Context, obs *model.PriceObservation) error {
	// latest quotes live in redis, history in sqlite
	return nil
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error {
	payload, _ := json.Marshal(opp)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO opportunity_log(opportunity_id, asset, diff_pct, detected_ms, payload)
		VALUES($1, $2, $3, $4, $5)
	`, opp.ID, opp.AssetID, opp.PriceDifferencePct, opp.CreatedAt.UnixMilli(), string(payload))
	return err
}

func (r *Repo) SaveTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	return nil
}

func (r *Repo) UpdateTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	return nil
}

func (r *Repo) GetTransaction(ctx context.Context, messageID string) (*model.CrossChainTransaction, error) {
	return nil, sql.ErrNoRows
}

func (r *Repo) ListOpenTransactions(ctx context.Context) ([]*model.CrossChainTransaction, error) {
	return nil, nil
}

func (r *Repo) SaveTrade(ctx context.Context, trade *model.TradeResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trade_log(opportunity_id, message_id, asset, profit, fee, success, closed_ms)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, trade.OpportunityID, trade.MessageID, trade.AssetID, trade.Profit, trade.Fee,
		trade.Success, trade.ClosedAt.UnixMilli())
	return err
}

var _ port.Repository = (*Repo)(nil)
