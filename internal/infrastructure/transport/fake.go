package transport

import (
	"context"
	"fmt"
	"sync"

	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
)

// FakeTransport is the in-memory transport for tests and dry runs. It
// implements the same contract as the relay: accepted messages start
// pending and move only when the test (or the auto-advance flag) drives
// them.
type FakeTransport struct {
	mu sync.Mutex

	nextID        int
	messages      map[string]*model.CrossChainTransaction
	failSendTimes int  // inject this many transient send failures
	rejectSends   bool // every send fails terminally
	feePerSend    float64
	autoAdvance   bool // each status poll advances one state toward success
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		messages:   make(map[string]*model.CrossChainTransaction),
		feePerSend: 1.0,
	}
}

// FailNextSends makes the next n Send calls fail transiently.
func (f *FakeTransport) FailNextSends(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSendTimes = n
}

// RejectSends makes every Send fail terminally.
func (f *FakeTransport) RejectSends(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectSends = v
}

// AutoAdvance makes every status poll step the message one state toward
// success.
func (f *FakeTransport) AutoAdvance(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoAdvance = v
}

func (f *FakeTransport) EstimateFees(ctx context.Context, plan *model.ExecutionPlan) (*model.FeeEstimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.FeeEstimate{
		FeeToken:    f.feePerSend,
		FeeNative:   f.feePerSend / 2000,
		GasLimit:    250000,
		USDEstimate: f.feePerSend,
	}, nil
}

func (f *FakeTransport) Send(ctx context.Context, plan *model.ExecutionPlan) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rejectSends {
		return "", fmt.Errorf("%w: relay rejected plan", arberr.ErrSendTerminal)
	}
	if f.failSendTimes > 0 {
		f.failSendTimes--
		return "", fmt.Errorf("%w: relay unreachable", arberr.ErrSendTransient)
	}

	f.nextID++
	id := fmt.Sprintf("msg-%04d", f.nextID)
	f.messages[id] = &model.CrossChainTransaction{
		MessageID:        id,
		SourceChain:      plan.Opportunity.SourceChain,
		DestinationChain: plan.Opportunity.DestinationChain,
		Status:           model.TxPending,
		Amount:           plan.PositionSize,
	}
	return id, nil
}

func (f *FakeTransport) Status(ctx context.Context, messageID string) (*model.CrossChainTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown message %s", arberr.ErrStatusUnknown, messageID)
	}
	if f.autoAdvance && !tx.Status.Terminal() {
		switch tx.Status {
		case model.TxPending:
			tx.Status = model.TxInProgress
		case model.TxInProgress:
			tx.Status = model.TxSuccess
			tx.Fees = f.feePerSend
		}
	}
	out := *tx
	return &out, nil
}

// Complete drives a message to a terminal state from a test.
func (f *FakeTransport) Complete(messageID string, status model.TxStatus, fees float64, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.messages[messageID]; ok {
		tx.Status = status
		tx.Fees = fees
		tx.ErrorMessage = errMsg
	}
}

// Progress moves a message to in_progress.
func (f *FakeTransport) Progress(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.messages[messageID]; ok && tx.Status == model.TxPending {
		tx.Status = model.TxInProgress
	}
}

// MarkLegFailed records a partial execution: one leg done, the other
// reverted.
func (f *FakeTransport) MarkLegFailed(messageID, chain, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.messages[messageID]; ok {
		tx.Status = model.TxFailed
		tx.LegFailed = chain
		tx.ErrorMessage = errMsg
	}
}
