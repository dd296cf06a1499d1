// Package codec implements the three-value fixed-point wire encoding for
// externally transmitted results: scaled price, scaled confidence-or-
// volume, and a timestamp/horizon, each an unsigned integer at one
// decimal scale.
//
// The scale is NOT self-describing. The canonical deployment scale is 6
// decimals; 18-decimal deployments must agree on it out of band and
// construct the codec accordingly. The two are not interchangeable.
package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the canonical scale.
const DefaultDecimals = 6

// Codec scales floats into fixed-point unsigned integers and packs the
// triple for on-chain submission.
type Codec struct {
	decimals int32
}

func New(decimals int) (*Codec, error) {
	if decimals != 6 && decimals != 18 {
		return nil, fmt.Errorf("unsupported decimal scale %d (must be 6 or 18)", decimals)
	}
	return &Codec{decimals: int32(decimals)}, nil
}

func (c *Codec) Decimals() int { return int(c.decimals) }

// Encode converts a non-negative float into its fixed-point integer.
func (c *Codec) Encode(v float64) (*big.Int, error) {
	if v < 0 {
		return nil, fmt.Errorf("fixed-point encoding is unsigned, got %f", v)
	}
	d := decimal.NewFromFloat(v).Shift(c.decimals).Truncate(0)
	return d.BigInt(), nil
}

// Decode converts a fixed-point integer back into a float.
func (c *Codec) Decode(v *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(v, -c.decimals).Float64()
	return f
}

// Triple is one encoded result.
type Triple struct {
	Value       *big.Int // scaled price
	Weight      *big.Int // scaled confidence or volume
	TimestampOr *big.Int // unix timestamp or horizon, unscaled
}

// EncodeTriple builds the wire triple from raw values.
func (c *Codec) EncodeTriple(price, weight float64, ts int64) (*Triple, error) {
	p, err := c.Encode(price)
	if err != nil {
		return nil, err
	}
	w, err := c.Encode(weight)
	if err != nil {
		return nil, err
	}
	if ts < 0 {
		return nil, fmt.Errorf("timestamp must be non-negative, got %d", ts)
	}
	return &Triple{Value: p, Weight: w, TimestampOr: big.NewInt(ts)}, nil
}

var tripleArgs abi.Arguments

func init() {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	tripleArgs = abi.Arguments{
		{Name: "value", Type: uint256Ty},
		{Name: "weight", Type: uint256Ty},
		{Name: "ts", Type: uint256Ty},
	}
}

// Pack ABI-encodes the triple as (uint256, uint256, uint256).
func (c *Codec) Pack(t *Triple) ([]byte, error) {
	return tripleArgs.Pack(t.Value, t.Weight, t.TimestampOr)
}

// Unpack decodes an ABI-encoded triple.
func (c *Codec) Unpack(data []byte) (*Triple, error) {
	vals, err := tripleArgs.Unpack(data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("expected 3 values, got %d", len(vals))
	}
	out := &Triple{}
	var ok bool
	if out.Value, ok = vals[0].(*big.Int); !ok {
		return nil, fmt.Errorf("value is not uint256")
	}
	if out.Weight, ok = vals[1].(*big.Int); !ok {
		return nil, fmt.Errorf("weight is not uint256")
	}
	if out.TimestampOr, ok = vals[2].(*big.Int); !ok {
		return nil, fmt.Errorf("ts is not uint256")
	}
	return out, nil
}
