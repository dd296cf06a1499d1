package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
	"chainarb/internal/domain/service"
)

// MessengerConfig tunes retry and polling behaviour.
type MessengerConfig struct {
	SendRetries  int           // bounded retries for transient send failures
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	CallTimeout  time.Duration // per transport call
	PollInterval time.Duration
	StaleAfter   time.Duration // polls past this window are reported stale, not failed
}

func DefaultMessengerConfig() MessengerConfig {
	return MessengerConfig{
		SendRetries:  3,
		BackoffMin:   500 * time.Millisecond,
		BackoffMax:   8 * time.Second,
		CallTimeout:  10 * time.Second,
		PollInterval: 5 * time.Second,
		StaleAfter:   2 * time.Minute,
	}
}

// Messenger owns every CrossChainTransaction. It sends plans, tracks the
// pending -> in_progress -> terminal state machine from asynchronous
// status polls, reconciles fees, and folds terminal results into the
// performance tracker and the exposure ledger.
type Messenger struct {
	transport port.Transport
	repo      port.Repository
	tracker   *service.PerformanceTracker
	ledger    *service.ExposureLedger
	cfg       MessengerConfig

	mu    sync.Mutex
	txs   map[string]*model.CrossChainTransaction
	plans map[string]*model.ExecutionPlan // immutable once stored
}

func NewMessenger(transport port.Transport, repo port.Repository, tracker *service.PerformanceTracker, ledger *service.ExposureLedger, cfg MessengerConfig) *Messenger {
	if cfg.SendRetries <= 0 {
		cfg = DefaultMessengerConfig()
	}
	return &Messenger{
		transport: transport,
		repo:      repo,
		tracker:   tracker,
		ledger:    ledger,
		cfg:       cfg,
		txs:       make(map[string]*model.CrossChainTransaction),
		plans:     make(map[string]*model.ExecutionPlan),
	}
}

// Send submits a plan and returns the opaque message id as soon as the
// network accepts it. Transient failures retry with backoff up to the
// configured bound; once accepted there is no automatic resubmission --
// a blind resend risks double execution.
func (m *Messenger) Send(ctx context.Context, plan *model.ExecutionPlan) (string, error) {
	if plan.Opportunity.Expired(time.Now()) {
		return "", fmt.Errorf("%w: refusing to send", arberr.ErrOpportunityExpired)
	}

	feeEstimate := plan.EstimatedFee
	ectx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	fees, err := m.transport.EstimateFees(ectx, plan)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("opportunity", plan.Opportunity.ID).Msg("fee estimate failed, using planner estimate")
	} else if fees.USDEstimate > 0 {
		feeEstimate = fees.USDEstimate
	}

	b := &backoff.Backoff{
		Min:    m.cfg.BackoffMin,
		Max:    m.cfg.BackoffMax,
		Factor: 2,
		Jitter: true,
	}

	var messageID string
	for attempt := 0; ; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		messageID, err = m.transport.Send(sctx, plan)
		cancel()
		if err == nil {
			break
		}
		if !arberr.Transient(err) || attempt >= m.cfg.SendRetries {
			log.Error().Err(err).Int("attempts", attempt+1).
				Str("opportunity", plan.Opportunity.ID).Msg("send failed")
			return "", err
		}
		d := b.Duration()
		log.Warn().Err(err).Dur("backoff", d).Int("attempt", attempt+1).Msg("transient send failure, retrying")
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	now := time.Now()
	tx := &model.CrossChainTransaction{
		ID:               uuid.NewString(),
		MessageID:        messageID,
		OpportunityID:    plan.Opportunity.ID,
		AssetID:          plan.Opportunity.AssetID,
		SourceChain:      plan.Opportunity.SourceChain,
		DestinationChain: plan.Opportunity.DestinationChain,
		Status:           model.TxPending,
		Amount:           plan.PositionSize,
		Fees:             feeEstimate,
		CreatedAt:        now,
	}

	m.mu.Lock()
	m.txs[messageID] = tx
	m.plans[messageID] = plan
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.SaveTransaction(ctx, tx); err != nil {
			log.Error().Err(err).Str("message_id", messageID).Msg("persist transaction failed")
		}
	}

	log.Info().
		Str("message_id", messageID).
		Str("asset", tx.AssetID).
		Str("source", tx.SourceChain).
		Str("destination", tx.DestinationChain).
		Float64("amount", tx.Amount).
		Msg("cross-chain message sent")
	return messageID, nil
}

// GetStatus is a non-throwing read of the best-known state. The second
// return is false for an unknown message id.
func (m *Messenger) GetStatus(messageID string) (model.CrossChainTransaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[messageID]
	if !ok {
		return model.CrossChainTransaction{}, false
	}
	return *tx, true
}

// OpenPositions returns the source-chain inventory still in flight, for
// the stop-loss monitor.
func (m *Messenger) OpenPositions() []model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Position, 0, len(m.plans))
	for id, plan := range m.plans {
		tx := m.txs[id]
		if tx == nil || tx.Status.Terminal() {
			continue
		}
		out = append(out, model.Position{
			AssetID:    plan.Opportunity.AssetID,
			Chain:      plan.Opportunity.SourceChain,
			Size:       plan.PositionSize,
			EntryPrice: plan.Opportunity.BuyPrice,
			OpenedAt:   tx.CreatedAt,
		})
	}
	return out
}

// Run drives the poll loop until the context ends.
func (m *Messenger) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce refreshes every non-terminal transaction. Repeated polls with
// no new network events are idempotent.
func (m *Messenger) PollOnce(ctx context.Context) {
	m.mu.Lock()
	pending := make([]*model.CrossChainTransaction, 0, len(m.txs))
	for _, tx := range m.txs {
		if !tx.Status.Terminal() {
			pending = append(pending, tx)
		}
	}
	m.mu.Unlock()

	for _, tx := range pending {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		remote, err := m.transport.Status(sctx, tx.MessageID)
		cancel()
		if err != nil {
			// unknown status means pending, not failed
			if time.Since(tx.CreatedAt) > m.cfg.StaleAfter {
				log.Warn().Str("message_id", tx.MessageID).
					Dur("age", time.Since(tx.CreatedAt)).Msg("status stale, still pending")
			} else {
				log.Debug().Err(err).Str("message_id", tx.MessageID).Msg("status poll inconclusive")
			}
			continue
		}
		m.apply(ctx, tx.MessageID, remote)
	}
}

// apply merges a network status into the local transaction, enforcing
// monotonicity: a terminal state never transitions again and in_progress
// never falls back to pending.
func (m *Messenger) apply(ctx context.Context, messageID string, remote *model.CrossChainTransaction) {
	if remote == nil {
		return
	}

	m.mu.Lock()
	tx, ok := m.txs[messageID]
	if !ok || tx.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	if remote.Status == model.TxPending && tx.Status == model.TxInProgress {
		m.mu.Unlock()
		return
	}
	if remote.Status == tx.Status {
		m.mu.Unlock()
		return
	}

	tx.Status = remote.Status
	if remote.ErrorMessage != "" {
		tx.ErrorMessage = remote.ErrorMessage
	}
	if remote.LegFailed != "" {
		tx.LegFailed = remote.LegFailed
	}
	// reconcile the consumed fee: never discard the network's number
	if remote.Fees > 0 {
		tx.Fees = remote.Fees
		tx.FeesReconciled = true
	}

	var plan *model.ExecutionPlan
	terminal := tx.Status.Terminal()
	if terminal {
		now := time.Now()
		tx.CompletedAt = &now
		plan = m.plans[messageID]
		delete(m.plans, messageID)
	}
	snapshot := *tx
	m.mu.Unlock()

	log.Info().
		Str("message_id", messageID).
		Str("status", string(snapshot.Status)).
		Str("error", snapshot.ErrorMessage).
		Msg("transaction state changed")

	if m.repo != nil {
		if err := m.repo.UpdateTransaction(ctx, &snapshot); err != nil {
			log.Error().Err(err).Str("message_id", messageID).Msg("persist transaction update failed")
		}
	}

	if terminal {
		m.settle(ctx, &snapshot, plan)
	}
}

// settle releases reserved exposure and records the trade result once a
// transaction reaches a terminal state.
func (m *Messenger) settle(ctx context.Context, tx *model.CrossChainTransaction, plan *model.ExecutionPlan) {
	if m.ledger != nil {
		m.ledger.Release(tx.AssetID, tx.SourceChain, tx.Amount)
	}

	trade := model.TradeResult{
		OpportunityID: tx.OpportunityID,
		MessageID:     tx.MessageID,
		AssetID:       tx.AssetID,
		Fee:           tx.Fees,
		Success:       tx.Status == model.TxSuccess,
		ClosedAt:      time.Now(),
	}
	if trade.Success && plan != nil {
		opp := plan.Opportunity
		trade.Profit = (opp.SellPrice - opp.BuyPrice) * plan.PositionSize
	}

	if m.tracker != nil {
		m.tracker.Record(trade)
	}
	if m.repo != nil {
		if err := m.repo.SaveTrade(ctx, &trade); err != nil {
			log.Error().Err(err).Str("message_id", tx.MessageID).Msg("persist trade failed")
		}
	}
}
