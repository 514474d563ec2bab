// Package models defines the core domain entities: liquidity distributions,
// scoring snapshots and results, and the host records persisted around them.
package models

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInputShape reports a malformed input: mismatched distribution lengths,
// unsorted ticks, negative liquidity or an invalid engine configuration.
var ErrInputShape = errors.New("input shape error")

// Point is the liquidity held at a single tick.
type Point struct {
	Tick      int64    `json:"tick" yaml:"tick"`
	Liquidity *big.Int `json:"liquidity" yaml:"liquidity"`
}

// Distribution is a liquidity-by-tick snapshot ordered by strictly
// increasing tick. Liquidity is in raw units.
type Distribution []Point

// Validate checks ordering and sign constraints.
func (d Distribution) Validate() error {
	if len(d) == 0 {
		return fmt.Errorf("%w: empty distribution", ErrInputShape)
	}
	for i, p := range d {
		if p.Liquidity == nil {
			return fmt.Errorf("%w: missing liquidity at tick %d", ErrInputShape, p.Tick)
		}
		if p.Liquidity.Sign() < 0 {
			return fmt.Errorf("%w: negative liquidity at tick %d", ErrInputShape, p.Tick)
		}
		if i > 0 && p.Tick <= d[i-1].Tick {
			return fmt.Errorf("%w: ticks not strictly increasing at index %d", ErrInputShape, i)
		}
	}
	return nil
}

// Liquidity returns the liquidity column.
func (d Distribution) Liquidity() []*big.Int {
	out := make([]*big.Int, len(d))
	for i, p := range d {
		out[i] = p.Liquidity
	}
	return out
}

// Total returns the sum of all liquidity.
func (d Distribution) Total() *big.Int {
	s := new(big.Int)
	for _, p := range d {
		s.Add(s, p.Liquidity)
	}
	return s
}

// Clone returns a deep copy.
func (d Distribution) Clone() Distribution {
	out := make(Distribution, len(d))
	for i, p := range d {
		out[i] = Point{Tick: p.Tick, Liquidity: new(big.Int).Set(p.Liquidity)}
	}
	return out
}

// SameShape reports whether two distributions can be compared pairwise:
// equal length and the same tick at every index.
func SameShape(a, b Distribution) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: distribution lengths %d and %d do not match", ErrInputShape, len(a), len(b))
	}
	for i := range a {
		if a[i].Tick != b[i].Tick {
			return fmt.Errorf("%w: tick %d at index %d does not match tick %d", ErrInputShape, b[i].Tick, i, a[i].Tick)
		}
	}
	return nil
}

// FromRange builds a distribution from liquidity values sampled every
// spacing ticks over [start, end].
func FromRange(liquidity []*big.Int, start, end, spacing int64) (Distribution, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: tick spacing must be positive, got %d", ErrInputShape, spacing)
	}
	if end < start {
		return nil, fmt.Errorf("%w: end tick %d before start tick %d", ErrInputShape, end, start)
	}
	expected := (end-start)/spacing + 1
	if int64(len(liquidity)) != expected {
		return nil, fmt.Errorf("%w: distribution length %d does not match expected length %d",
			ErrInputShape, len(liquidity), expected)
	}

	d := make(Distribution, len(liquidity))
	for i, l := range liquidity {
		d[i] = Point{Tick: start + int64(i)*spacing, Liquidity: new(big.Int).Set(l)}
	}
	return d, d.Validate()
}

// Align zero-pads two distributions onto the union of their tick ranges so
// they can be compared pairwise. Both must lie on the same spacing grid.
func Align(a, b Distribution, spacing int64) (Distribution, Distribution, error) {
	if spacing <= 0 {
		return nil, nil, fmt.Errorf("%w: tick spacing must be positive, got %d", ErrInputShape, spacing)
	}
	if len(a) == 0 || len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: cannot align empty distributions", ErrInputShape)
	}

	lo := min(a[0].Tick, b[0].Tick)
	hi := max(a[len(a)-1].Tick, b[len(b)-1].Tick)

	pad := func(d Distribution) (Distribution, error) {
		n := (hi-lo)/spacing + 1
		out := make(Distribution, n)
		for i := range out {
			out[i] = Point{Tick: lo + int64(i)*spacing, Liquidity: new(big.Int)}
		}
		for _, p := range d {
			if (p.Tick-lo)%spacing != 0 {
				return nil, fmt.Errorf("%w: tick %d is not on the %d-tick grid", ErrInputShape, p.Tick, spacing)
			}
			out[(p.Tick-lo)/spacing].Liquidity.Set(p.Liquidity)
		}
		return out, nil
	}

	pa, err := pad(a)
	if err != nil {
		return nil, nil, err
	}
	pb, err := pad(b)
	if err != nil {
		return nil, nil, err
	}
	return pa, pb, nil
}
