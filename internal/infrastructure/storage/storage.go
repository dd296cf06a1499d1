package storage

import (
	"context"
	"sync"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
)

// Memory is an in-memory Repository. Used when no durable backend is
// configured, and as a test double.
type Memory struct {
	mu            sync.Mutex
	observations  map[string]*model.PriceObservation // chain:asset
	opportunities []*model.ArbitrageOpportunity
	transactions  map[string]*model.CrossChainTransaction // message id
	trades        []*model.TradeResult
}

func NewMemory() *Memory {
	return &Memory{
		observations: make(map[string]*model.PriceObservation),
		transactions: make(map[string]*model.CrossChainTransaction),
	}
}

func (m *Memory) UpsertLatestObservation(ctx context.Context, obs *model.PriceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *obs
	m.observations[obs.Chain+":"+obs.AssetID] = &cp
	return nil
}

func (m *Memory) SaveOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *opp
	m.opportunities = append(m.opportunities, &cp)
	return nil
}

func (m *Memory) SaveTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.transactions[tx.MessageID] = &cp
	return nil
}

func (m *Memory) UpdateTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	return m.SaveTransaction(ctx, tx)
}

func (m *Memory) GetTransaction(ctx context.Context, messageID string) (*model.CrossChainTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[messageID]
	if !ok {
		return nil, arberr.ErrStatusUnknown
	}
	cp := *tx
	return &cp, nil
}

func (m *Memory) ListOpenTransactions(ctx context.Context) ([]*model.CrossChainTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CrossChainTransaction
	for _, tx := range m.transactions {
		if !tx.Status.Terminal() {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) SaveTrade(ctx context.Context, trade *model.TradeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trade
	m.trades = append(m.trades, &cp)
	return nil
}

// LatestObservation returns the stored observation for one chain+asset,
// nil when none was recorded. Test hook.
func (m *Memory) LatestObservation(chain, assetID string) *model.PriceObservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs, ok := m.observations[chain+":"+assetID]
	if !ok {
		return nil
	}
	cp := *obs
	return &cp
}

// Trades returns everything recorded so far. Test hook.
func (m *Memory) Trades() []*model.TradeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.TradeResult, len(m.trades))
	copy(out, m.trades)
	return out
}

// Opportunities returns everything recorded so far. Test hook.
func (m *Memory) Opportunities() []*model.ArbitrageOpportunity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ArbitrageOpportunity, len(m.opportunities))
	copy(out, m.opportunities)
	return out
}

func (m *Memory) Close() error { return nil }

var _ port.Repository = (*Memory)(nil)
