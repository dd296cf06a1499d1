package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
	"chainarb/internal/infrastructure/config"
)

const KindHTTP = "http"

func init() {
	Register(KindHTTP, func(cfg config.PriceSourceConfig, timeoutSec int) port.PriceSource {
		return NewHTTPPriceSource(cfg.Name, cfg.URL, qualityTier(cfg.Quality), timeoutSec)
	})
}

func qualityTier(s string) model.QualityTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return model.QualityHigh
	case "low":
		return model.QualityLow
	default:
		return model.QualityMedium
	}
}

// HTTPPriceSource is a read-only GET JSON quote client. A response with
// a missing or non-positive price field is reported as unavailable, never
// as a crash.
type HTTPPriceSource struct {
	name    string
	baseURL string
	quality model.QualityTier
	client  *http.Client
}

func NewHTTPPriceSource(name, baseURL string, quality model.QualityTier, timeoutSec int) *HTTPPriceSource {
	if timeoutSec <= 0 {
		timeoutSec = 8
	}
	return &HTTPPriceSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		quality: quality,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

func (s *HTTPPriceSource) Name() string               { return s.name }
func (s *HTTPPriceSource) Quality() model.QualityTier { return s.quality }

type quotePayload struct {
	Price  *float64 `json:"price"`
	Bid    *float64 `json:"bid"`
	Ask    *float64 `json:"ask"`
	Volume *float64 `json:"volume"`
}

func (s *HTTPPriceSource) Quote(ctx context.Context, assetID, chain string) (*port.SourceQuote, error) {
	body, err := getJSON(ctx, s.client, s.baseURL+"/quote", url.Values{
		"asset": {assetID},
		"chain": {chain},
	})
	if err != nil {
		return nil, err
	}

	var p quotePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %s returned malformed json", arberr.ErrDataUnavailable, s.name)
	}
	if p.Price == nil || *p.Price <= 0 {
		return nil, fmt.Errorf("%w: %s response missing price", arberr.ErrDataUnavailable, s.name)
	}

	q := &port.SourceQuote{Price: *p.Price}
	if p.Bid != nil {
		q.Bid = *p.Bid
	}
	if p.Ask != nil {
		q.Ask = *p.Ask
	}
	if p.Volume != nil {
		q.Volume = *p.Volume
	}
	return q, nil
}

// HTTPHistorySource fetches historical candles as observations, oldest
// first.
type HTTPHistorySource struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPHistorySource(name, baseURL string, timeoutSec int) *HTTPHistorySource {
	if timeoutSec <= 0 {
		timeoutSec = 8
	}
	return &HTTPHistorySource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

func (s *HTTPHistorySource) Name() string { return s.name }

type historyPoint struct {
	Price  *float64 `json:"price"`
	Volume float64  `json:"volume"`
	TsMs   int64    `json:"ts_ms"`
}

func (s *HTTPHistorySource) History(ctx context.Context, assetID, chain string, limit int) ([]model.PriceObservation, error) {
	body, err := getJSON(ctx, s.client, s.baseURL+"/history", url.Values{
		"asset": {assetID},
		"chain": {chain},
		"limit": {fmt.Sprintf("%d", limit)},
	})
	if err != nil {
		return nil, err
	}

	var points []historyPoint
	if err := json.Unmarshal(body, &points); err != nil {
		return nil, fmt.Errorf("%w: %s returned malformed history", arberr.ErrDataUnavailable, s.name)
	}

	out := make([]model.PriceObservation, 0, len(points))
	for _, p := range points {
		if p.Price == nil || *p.Price <= 0 {
			continue
		}
		out = append(out, model.PriceObservation{
			Chain:      chain,
			AssetID:    assetID,
			Price:      *p.Price,
			Volume:     p.Volume,
			Timestamp:  time.UnixMilli(p.TsMs),
			SourceName: s.name,
			Quality:    model.QualityMedium,
			Available:  true,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned no usable points", arberr.ErrDataUnavailable, s.name)
	}
	return out, nil
}

// HTTPSentimentSource reads a fear/greed style index plus a per-asset
// sentiment endpoint. Each reading fails independently.
type HTTPSentimentSource struct {
	name         string
	fearGreedURL string
	assetURL     string
	client       *http.Client
}

func NewHTTPSentimentSource(name, fearGreedURL, assetURL string, timeoutSec int) *HTTPSentimentSource {
	if timeoutSec <= 0 {
		timeoutSec = 8
	}
	return &HTTPSentimentSource{
		name:         name,
		fearGreedURL: fearGreedURL,
		assetURL:     strings.TrimRight(assetURL, "/"),
		client:       &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

func (s *HTTPSentimentSource) Name() string { return s.name }

type valuePayload struct {
	Value *float64 `json:"value"`
}

func (s *HTTPSentimentSource) FearGreed(ctx context.Context) (*float64, error) {
	if s.fearGreedURL == "" {
		return nil, fmt.Errorf("%w: no fear/greed endpoint configured", arberr.ErrDataUnavailable)
	}
	return s.readValue(ctx, s.fearGreedURL, nil)
}

func (s *HTTPSentimentSource) AssetSentiment(ctx context.Context, assetID string) (*float64, error) {
	if s.assetURL == "" {
		return nil, fmt.Errorf("%w: no asset sentiment endpoint configured", arberr.ErrDataUnavailable)
	}
	return s.readValue(ctx, s.assetURL, url.Values{"asset": {assetID}})
}

func (s *HTTPSentimentSource) readValue(ctx context.Context, endpoint string, params url.Values) (*float64, error) {
	body, err := getJSON(ctx, s.client, endpoint, params)
	if err != nil {
		return nil, err
	}
	var p valuePayload
	if err := json.Unmarshal(body, &p); err != nil || p.Value == nil {
		return nil, fmt.Errorf("%w: %s sentiment response missing value", arberr.ErrDataUnavailable, s.name)
	}
	return p.Value, nil
}

// getJSON is the shared GET helper.
func getJSON(ctx context.Context, client *http.Client, endpoint string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", arberr.ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", arberr.ErrDataUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d: %s", arberr.ErrDataUnavailable, resp.StatusCode, string(body))
	}
	return body, nil
}
