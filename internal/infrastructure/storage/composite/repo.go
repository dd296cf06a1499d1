package composite

import (
	"context"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/model"
)

// Repo fans writes out to every backend and serves reads from the
// first one, which is always the durable store.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) UpsertLatestObservation(ctx context.Context, obs *model.PriceObservation) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestObservation(ctx, obs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveOpportunity(ctx, opp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SaveTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveTransaction(ctx, tx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) UpdateTransaction(ctx context.Context, tx *model.CrossChainTransaction) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpdateTransaction(ctx, tx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) GetTransaction(ctx context.Context, messageID string) (*model.CrossChainTransaction, error) {
	if len(r.repos) == 0 {
		return nil, nil
	}
	return r.repos[0].GetTransaction(ctx, messageID)
}

func (r *Repo) ListOpenTransactions(ctx context.Context) ([]*model.CrossChainTransaction, error) {
	if len(r.repos) == 0 {
		return nil, nil
	}
	return r.repos[0].ListOpenTransactions(ctx)
}

func (r *Repo) SaveTrade(ctx context.Context, trade *model.TradeResult) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveTrade(ctx, trade); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
