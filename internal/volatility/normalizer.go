package volatility

import (
	"math/big"

	"github.com/rewired-gh/liqoracle/internal/fixedpoint"
)

// Lambda is the decay of every moving statistic in the engine, in Scale units.
const Lambda = 9000

var (
	bigScale  = big.NewInt(fixedpoint.Scale)
	bigLambda = big.NewInt(Lambda)
	bigDecay  = big.NewInt(fixedpoint.Scale - Lambda)
)

// Normalizer carries one decaying moving maximum per unbounded statistic.
// All slots start at zero.
type Normalizer struct {
	RollingStd  *big.Int `json:"rolling_std"`
	RealizedVol *big.Int `json:"realized_vol"`
	Range       *big.Int `json:"range"`
	Transition  *big.Int `json:"transition"`
	PerTick     *big.Int `json:"per_tick"`
}

// NewNormalizer returns a zeroed normalizer.
func NewNormalizer() Normalizer {
	return Normalizer{
		RollingStd:  new(big.Int),
		RealizedVol: new(big.Int),
		Range:       new(big.Int),
		Transition:  new(big.Int),
		PerTick:     new(big.Int),
	}
}

// Clone returns a deep copy.
func (n Normalizer) Clone() Normalizer {
	return Normalizer{
		RollingStd:  new(big.Int).Set(n.RollingStd),
		RealizedVol: new(big.Int).Set(n.RealizedVol),
		Range:       new(big.Int).Set(n.Range),
		Transition:  new(big.Int).Set(n.Transition),
		PerTick:     new(big.Int).Set(n.PerTick),
	}
}

// EWMX scores curr against the decaying maximum ma and returns the score in
// [0, Scale] together with the next maximum.
//
//	next  = max(curr, λ·ma + (1-λ)·curr)
//	score = log(1 + curr) / log(1 + next)
//
// curr and ma are ScaledValues. The log ratio does not depend on the base, so
// it is taken over fixedpoint.Log2Scaled and stays in integer arithmetic.
func EWMX(curr, ma *big.Int) (score, next *big.Int, err error) {
	calculated := new(big.Int).Mul(bigLambda, ma)
	calculated.Quo(calculated, bigScale)
	weighted := new(big.Int).Mul(bigDecay, curr)
	calculated.Add(calculated, weighted.Quo(weighted, bigScale))
	next = fixedpoint.Max(curr, calculated)

	if next.Sign() == 0 {
		if curr.Sign() == 0 {
			return big.NewInt(fixedpoint.Scale), next, nil
		}
		return new(big.Int), next, nil
	}

	num, err := fixedpoint.Log2Scaled(new(big.Int).Add(bigScale, curr))
	if err != nil {
		return nil, nil, err
	}
	den, err := fixedpoint.Log2Scaled(new(big.Int).Add(bigScale, next))
	if err != nil {
		return nil, nil, err
	}
	if den.Sign() == 0 {
		return new(big.Int), next, nil
	}
	score = num.Mul(num, bigScale)
	score.Quo(score, den)
	return fixedpoint.ClampUnit(score), next, nil
}
