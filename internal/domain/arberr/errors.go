package arberr

import "errors"

// ErrDataUnavailable 错误：没有可用数据源，降级到默认值
var ErrDataUnavailable = errors.New("no usable data source")

// ErrDataInconsistent 错误：数据源分歧超出容差，降低置信度
var ErrDataInconsistent = errors.New("sources disagree beyond tolerance")

// ErrOpportunityExpired 错误：机会已过期，必须丢弃
var ErrOpportunityExpired = errors.New("opportunity past its TTL")

// ErrExposureExceeded 错误：超过总敞口限制
var ErrExposureExceeded = errors.New("exposure limit exceeded")

// ErrLiquidityInsufficient 错误：流动性不足
var ErrLiquidityInsufficient = errors.New("insufficient liquidity")

// ErrSendTransient marks a send failure that is safe to retry.
var ErrSendTransient = errors.New("transient send failure")

// ErrSendTerminal marks a post-acceptance failure. Resubmitting after the
// network has accepted the message risks double execution.
var ErrSendTerminal = errors.New("terminal send failure")

// ErrStatusUnknown means a status poll returned nothing usable; callers
// treat the transaction as still pending and re-poll.
var ErrStatusUnknown = errors.New("transaction status unknown")

// Transient reports whether err is retryable during send.
func Transient(err error) bool {
	return errors.Is(err, ErrSendTransient)
}
