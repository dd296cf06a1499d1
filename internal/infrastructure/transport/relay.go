package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
	"chainarb/internal/infrastructure/codec"
)

// RelayClient talks to a cross-chain message relay over HTTP. The relay
// executes both legs of a plan and reports lifecycle status.
type RelayClient struct {
	baseURL string
	client  *http.Client
	codec   *codec.Codec
}

func NewRelayClient(baseURL string, timeout time.Duration, c *codec.Codec) *RelayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		codec:   c,
	}
}

type relayPlanPayload struct {
	OpportunityID    string `json:"opportunity_id"`
	Asset            string `json:"asset"`
	SourceChain      string `json:"source_chain"`
	DestinationChain string `json:"destination_chain"`
	// fixed-point triple, scale agreed out of band
	EncodedPrice  string      `json:"encoded_price"`
	EncodedAmount string      `json:"encoded_amount"`
	Timestamp     string      `json:"timestamp"`
	Legs          []model.Leg `json:"legs"`
}

func (rc *RelayClient) payload(plan *model.ExecutionPlan) (*relayPlanPayload, error) {
	triple, err := rc.codec.EncodeTriple(plan.Opportunity.BuyPrice, plan.PositionSize, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return &relayPlanPayload{
		OpportunityID:    plan.Opportunity.ID,
		Asset:            plan.Opportunity.AssetID,
		SourceChain:      plan.Opportunity.SourceChain,
		DestinationChain: plan.Opportunity.DestinationChain,
		EncodedPrice:     triple.Value.String(),
		EncodedAmount:    triple.Weight.String(),
		Timestamp:        triple.TimestampOr.String(),
		Legs:             plan.Legs[:],
	}, nil
}

type feeResponse struct {
	FeeToken    float64 `json:"fee_token"`
	FeeNative   float64 `json:"fee_native"`
	GasLimit    uint64  `json:"gas_limit"`
	USDEstimate float64 `json:"usd_estimate"`
}

func (rc *RelayClient) EstimateFees(ctx context.Context, plan *model.ExecutionPlan) (*model.FeeEstimate, error) {
	p, err := rc.payload(plan)
	if err != nil {
		return nil, err
	}
	body, err := rc.post(ctx, "/fees", p)
	if err != nil {
		return nil, err
	}
	var fr feeResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("malformed fee response: %w", err)
	}
	return &model.FeeEstimate{
		FeeToken:    fr.FeeToken,
		FeeNative:   fr.FeeNative,
		GasLimit:    fr.GasLimit,
		USDEstimate: fr.USDEstimate,
	}, nil
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send submits the plan. Network errors and 5xx/429 responses are
// transient; any 4xx is terminal. When the relay acknowledges without an
// id, one is derived from the payload hash so the message stays
// addressable.
func (rc *RelayClient) Send(ctx context.Context, plan *model.ExecutionPlan) (string, error) {
	p, err := rc.payload(plan)
	if err != nil {
		return "", err
	}
	raw, _ := json.Marshal(p)

	body, err := rc.post(ctx, "/messages", p)
	if err != nil {
		return "", err
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.MessageID == "" {
		return common.BytesToHash(crypto.Keccak256(raw)).Hex(), nil
	}
	return sr.MessageID, nil
}

type statusResponse struct {
	Status    string  `json:"status"`
	Fees      float64 `json:"fees"`
	LegFailed string  `json:"leg_failed"`
	Error     string  `json:"error"`
}

func (rc *RelayClient) Status(ctx context.Context, messageID string) (*model.CrossChainTransaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.baseURL+"/messages/"+messageID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", arberr.ErrStatusUnknown, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", arberr.ErrStatusUnknown, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: relay has no record of %s", arberr.ErrStatusUnknown, messageID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", arberr.ErrStatusUnknown, resp.StatusCode)
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: malformed status", arberr.ErrStatusUnknown)
	}

	st, ok := mapStatus(sr.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized status %q", arberr.ErrStatusUnknown, sr.Status)
	}
	return &model.CrossChainTransaction{
		MessageID:    messageID,
		Status:       st,
		Fees:         sr.Fees,
		LegFailed:    sr.LegFailed,
		ErrorMessage: sr.Error,
	}, nil
}

func mapStatus(s string) (model.TxStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued":
		return model.TxPending, true
	case "in_progress", "relaying", "executing":
		return model.TxInProgress, true
	case "success", "executed":
		return model.TxSuccess, true
	case "failed", "reverted":
		return model.TxFailed, true
	case "cancelled":
		return model.TxCancelled, true
	default:
		return "", false
	}
}

func (rc *RelayClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", arberr.ErrSendTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", arberr.ErrSendTransient, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: http %d: %s", arberr.ErrSendTransient, resp.StatusCode, string(body))
	default:
		return nil, fmt.Errorf("%w: http %d: %s", arberr.ErrSendTerminal, resp.StatusCode, string(body))
	}
}
