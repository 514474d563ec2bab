package models

import "math/big"

// Snapshot is one window entry: a distribution and the transition score
// that led to it.
type Snapshot struct {
	Distribution Distribution
	Transition   *big.Int
}

// VolatilityResult holds the five volatility components and their weighted
// aggregate, each in [0, Scale].
type VolatilityResult struct {
	Overall    *big.Int `json:"overall"`
	Transition *big.Int `json:"transition"`
	PerTick    *big.Int `json:"per_tick"`
	Entropy    *big.Int `json:"entropy"`
	Temporal   *big.Int `json:"temporal"`
	Aggregate  *big.Int `json:"aggregate"`
}

// ZeroVolatility is the placeholder returned while the window fills.
func ZeroVolatility() VolatilityResult {
	return VolatilityResult{
		Overall:    new(big.Int),
		Transition: new(big.Int),
		PerTick:    new(big.Int),
		Entropy:    new(big.Int),
		Temporal:   new(big.Int),
		Aggregate:  new(big.Int),
	}
}

// IsZero reports whether every component is zero.
func (v VolatilityResult) IsZero() bool {
	for _, x := range []*big.Int{v.Overall, v.Transition, v.PerTick, v.Entropy, v.Temporal, v.Aggregate} {
		if x != nil && x.Sign() != 0 {
			return false
		}
	}
	return true
}

// StructureResult holds the single-snapshot structure metrics.
// Concentration is in [0, Scale]; depth is in liquidity units and spread
// in scaled ticks, neither bounded.
type StructureResult struct {
	Concentration *big.Int `json:"concentration"`
	Depth         *big.Int `json:"depth"`
	Spread        *big.Int `json:"spread"`
}

// Result is the combined output of one analyzer step.
type Result struct {
	Transition *big.Int         `json:"transition"`
	Volatility VolatilityResult `json:"volatility"`
	Structure  StructureResult  `json:"structure"`
}
