package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chainarb/internal/application/port"
	"chainarb/internal/domain/arberr"
	"chainarb/internal/domain/model"
	"chainarb/internal/infrastructure/config"
)

const KindWS = "ws"

func init() {
	Register(KindWS, func(cfg config.PriceSourceConfig, timeoutSec int) port.PriceSource {
		return NewWSFeed(cfg.Name, cfg.URL, qualityTier(cfg.Quality))
	})
}

// WSFeed keeps a streaming connection to a quote feed and serves the
// aggregator from its last-seen cache. Quotes older than the staleness
// window count as unavailable.
type WSFeed struct {
	name    string
	wsURL   string
	quality model.QualityTier
	staleBy time.Duration

	mu      sync.RWMutex
	latest  map[string]wsQuote // "asset:chain" -> quote
	started bool
}

type wsQuote struct {
	quote port.SourceQuote
	seen  time.Time
}

type wsMessage struct {
	Asset  string   `json:"asset"`
	Chain  string   `json:"chain"`
	Price  *float64 `json:"price"`
	Bid    float64  `json:"bid"`
	Ask    float64  `json:"ask"`
	Volume float64  `json:"volume"`
}

func NewWSFeed(name, wsURL string, quality model.QualityTier) *WSFeed {
	return &WSFeed{
		name:    name,
		wsURL:   strings.TrimSpace(wsURL),
		quality: quality,
		staleBy: 30 * time.Second,
		latest:  make(map[string]wsQuote),
	}
}

func (f *WSFeed) Name() string               { return f.name }
func (f *WSFeed) Quality() model.QualityTier { return f.quality }

// Start launches the read loop. Safe to call once; Quote degrades to
// unavailable until data flows.
func (f *WSFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()
	go f.run(ctx)
}

func (f *WSFeed) Quote(ctx context.Context, assetID, chain string) (*port.SourceQuote, error) {
	f.mu.RLock()
	entry, ok := f.latest[assetID+":"+chain]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s has no quote for %s on %s", arberr.ErrDataUnavailable, f.name, assetID, chain)
	}
	if time.Since(entry.seen) > f.staleBy {
		return nil, fmt.Errorf("%w: %s quote for %s on %s is stale", arberr.ErrDataUnavailable, f.name, assetID, chain)
	}
	q := entry.quote
	return &q, nil
}

func (f *WSFeed) run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.name).Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", f.name).Msg("ws connected")

		err = f.readLoop(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("feed", f.name).Err(err).Msg("ws disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			f.apply(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

func (f *WSFeed) apply(b []byte) {
	var msg wsMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Error().Str("feed", f.name).Err(err).Msg("json unmarshal failed")
		return
	}
	if msg.Asset == "" || msg.Chain == "" || msg.Price == nil || *msg.Price <= 0 {
		return
	}

	f.mu.Lock()
	f.latest[msg.Asset+":"+msg.Chain] = wsQuote{
		quote: port.SourceQuote{
			Price:  *msg.Price,
			Bid:    msg.Bid,
			Ask:    msg.Ask,
			Volume: msg.Volume,
		},
		seen: time.Now(),
	}
	f.mu.Unlock()
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
