package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/model"
)

// Repo is the hot cache half of the composite store. It keeps latest
// observations in a hash and fans new opportunities out over a stream
// plus pub/sub, leaving durable history to sqlite/postgres.
type Repo struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
	oppStream string
	oppChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, oppStream, oppChan string) *Repo {
	if strings.TrimSpace(oppStream) == "" {
		oppStream = prefix + ":opportunities"
	}
	if strings.TrimSpace(oppChan) == "" {
		oppChan = prefix + ":opportunities:pub"
	}
	return &Repo{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		oppStream: oppStream,
		oppChan:   oppChan,
	}
}

func (r *Repo) UpsertLatestObservation(ctx context.Context, obs *model.PriceObservation) error {
	if obs.Price <= 0 {
		return nil
	}
	b, _ := json.Marshal(obs)

	// Hash: field = "ethereum:WETH" -> json
	field := fmt.Sprintf("%s:%s", obs.Chain, obs.AssetID)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, field, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error {
	payload, _ := json.Marshal(opp)

	// 1) Stream: XADD <stream> * id asset diff payload
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.oppStream,
		Values: map[string]any{
			"id":       opp.ID,
			"asset":    opp.AssetID,
			"diff_pct": opp.PriceDifferencePct,
			"payload":  string(payload),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return r.rdb.Publish(ctx, r.oppChan, string(payload)).Err()
}

// Transaction and trade history live in the durable stores only.

func (r *Repo) SaveTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	return nil
}

func (r *Repo) UpdateTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	return nil
}

func (r *Repo) GetTransaction(ctx context.Context, messageID string) (*model.CrossChainTransaction, error) {
	return nil, fmt.Errorf("redis: transactions not stored here")
}

func (r *Repo) ListOpenTransactions(ctx context.Context) ([]*model.CrossChainTransaction, error) {
	return nil, nil
}

func (r *Repo) SaveTrade(ctx context.Context, trade *model.TradeResult) error {
	return nil
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
