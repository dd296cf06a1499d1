package source

import (
	"github.com/rs/zerolog/log"

	"chainarb/internal/application/port"
	"chainarb/internal/infrastructure/config"
)

// Factory 根据配置构造一个 price source
type Factory func(cfg config.PriceSourceConfig, timeoutSec int) port.PriceSource

// registry maps source kinds to their factories
var registry = make(map[string]Factory)

// Register 注册一个 source factory，由各 client 的 init() 自注册
func Register(kind string, factory Factory) {
	if factory == nil {
		log.Warn().Str("kind", kind).Msg("invalid source factory")
		return
	}
	if _, exists := registry[kind]; exists {
		log.Warn().Str("kind", kind).Msg("source factory already registered, overwriting")
	}
	registry[kind] = factory
	log.Debug().Str("kind", kind).Msg("source factory registered")
}

// Get 获取已注册的 factory
func Get(kind string) (Factory, bool) {
	factory, ok := registry[kind]
	return factory, ok
}

// Build constructs every configured price source, skipping entries whose
// kind has no registered factory.
func Build(cfgs []config.PriceSourceConfig, timeoutSec int) []port.PriceSource {
	out := make([]port.PriceSource, 0, len(cfgs))
	for _, c := range cfgs {
		kind := c.Kind
		if kind == "" {
			kind = KindHTTP
		}
		factory, ok := Get(kind)
		if !ok {
			log.Warn().Str("name", c.Name).Str("kind", kind).Msg("unknown source kind, skipped")
			continue
		}
		out = append(out, factory(c, timeoutSec))
	}
	return out
}
