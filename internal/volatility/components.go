package volatility

import (
	"fmt"
	"math/big"

	"github.com/rewired-gh/liqoracle/internal/fixedpoint"
	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/structure"
	"github.com/rewired-gh/liqoracle/internal/transition"
)

// globalLiquidity returns the total liquidity of every snapshot.
func globalLiquidity(snaps []models.Snapshot) []*big.Int {
	out := make([]*big.Int, len(snaps))
	for i, s := range snaps {
		out[i] = s.Distribution.Total()
	}
	return out
}

// ratio returns num·Scale/den, or 0 when den is 0.
func ratio(num, den *big.Int) *big.Int {
	if den.Sign() == 0 {
		return new(big.Int)
	}
	r := new(big.Int).Mul(num, bigScale)
	return r.Quo(r, den)
}

// overallRatios returns the three raw statistics of the global liquidity
// series: standard deviation over the root of the sum of squares, realized
// volatility over the series maximum, and range over the maximum.
func overallRatios(series []*big.Int) (rsd, rv, rng *big.Int, err error) {
	std, err := fixedpoint.StdDev(series)
	if err != nil {
		return nil, nil, nil, err
	}
	sumSq := new(big.Int)
	sq := new(big.Int)
	for _, g := range series {
		sumSq.Add(sumSq, sq.Mul(g, g))
	}
	norm, err := fixedpoint.Sqrt(sumSq)
	if err != nil {
		return nil, nil, nil, err
	}
	rsd = ratio(std, norm)

	diffSq := new(big.Int)
	for i := 1; i < len(series); i++ {
		d := fixedpoint.AbsDiff(series[i], series[i-1])
		diffSq.Add(diffSq, d.Mul(d, d))
	}
	realized, err := fixedpoint.Sqrt(diffSq)
	if err != nil {
		return nil, nil, nil, err
	}
	hi := fixedpoint.MaxOf(series)
	lo := fixedpoint.MinOf(series)
	rv = ratio(realized, hi)
	rng = ratio(new(big.Int).Sub(hi, lo), hi)
	return rsd, rv, rng, nil
}

// overall smooths the three overall ratios through their normalizer slots
// and averages them. norm is updated in place.
func overall(series []*big.Int, norm *Normalizer) (*big.Int, error) {
	rsd, rv, rng, err := overallRatios(series)
	if err != nil {
		return nil, err
	}

	sum := new(big.Int)
	for _, slot := range []struct {
		curr  *big.Int
		state **big.Int
	}{
		{rsd, &norm.RollingStd},
		{rv, &norm.RealizedVol},
		{rng, &norm.Range},
	} {
		score, next, err := EWMX(slot.curr, *slot.state)
		if err != nil {
			return nil, err
		}
		*slot.state = next
		sum.Add(sum, score)
	}
	return sum.Quo(sum, big.NewInt(3)), nil
}

// transitionVolatility is the recursive volatility of the transition scores
// in the window:
//
//	n < 3:  0
//	n == 3: |t2 - t1|
//	else:   sqrt(λ·prev² + (1-λ)·(t[n-1] - t[n-2])²)
func transitionVolatility(snaps []models.Snapshot, prev *big.Int) (*big.Int, error) {
	n := len(snaps)
	switch {
	case n < 3:
		return new(big.Int), nil
	case n == 3:
		return fixedpoint.AbsDiff(snapshotTransition(snaps[2]), snapshotTransition(snaps[1])), nil
	}

	diff := fixedpoint.AbsDiff(snapshotTransition(snaps[n-1]), snapshotTransition(snaps[n-2]))
	a := new(big.Int).Mul(prev, prev)
	a.Mul(a, bigLambda).Quo(a, bigScale)
	b := new(big.Int).Mul(diff, diff)
	b.Mul(b, bigDecay).Quo(b, bigScale)
	return fixedpoint.Sqrt(a.Add(a, b))
}

func snapshotTransition(s models.Snapshot) *big.Int {
	if s.Transition == nil || transition.IsUndefined(s.Transition) {
		return new(big.Int)
	}
	return s.Transition
}

// perTick returns the distance-weighted average of the standard deviation of
// liquidity at every tick position over the window. A position at index
// distance d from the current tick has weight Scale/(d+1).
func perTick(snaps []models.Snapshot, currentTick int64) (*big.Int, error) {
	latest := snaps[len(snaps)-1].Distribution
	center := structure.CenterIndex(latest, currentTick)

	weighted := new(big.Int)
	weights := new(big.Int)
	column := make([]*big.Int, len(snaps))
	for i := range latest {
		for j, s := range snaps {
			column[j] = s.Distribution[i].Liquidity
		}
		std, err := fixedpoint.StdDev(column)
		if err != nil {
			return nil, err
		}

		dist := i - center
		if dist < 0 {
			dist = -dist
		}
		w := big.NewInt(fixedpoint.Scale / int64(dist+1))
		term := std.Mul(std, w)
		weighted.Add(weighted, term.Quo(term, bigScale))
		weights.Add(weights, w)
	}
	return ratio(weighted, weights), nil
}

// Entropy returns the Shannon entropy of d in bits, as a ScaledValue. An
// all-zero distribution has zero entropy.
func Entropy(d models.Distribution) (*big.Int, error) {
	total := d.Total()
	h := new(big.Int)
	if total.Sign() == 0 {
		return h, nil
	}
	for _, pt := range d {
		p := new(big.Int).Mul(pt.Liquidity, bigScale)
		p.Quo(p, total)
		if p.Sign() <= 0 {
			continue
		}
		lg, err := fixedpoint.Log2Scaled(p)
		if err != nil {
			return nil, err
		}
		term := lg.Mul(lg, p)
		h.Sub(h, term.Quo(term, bigScale))
	}
	return h, nil
}

// entropy returns the standard deviation of the snapshot entropies divided
// by log2 of the tick count.
func entropy(snaps []models.Snapshot) (*big.Int, error) {
	n := len(snaps[0].Distribution)
	if n < 2 {
		return nil, fmt.Errorf("%w: entropy normalization needs at least 2 ticks, got %d", fixedpoint.ErrDomain, n)
	}

	hs := make([]*big.Int, len(snaps))
	for i, s := range snaps {
		h, err := Entropy(s.Distribution)
		if err != nil {
			return nil, err
		}
		hs[i] = h
	}
	std, err := fixedpoint.StdDev(hs)
	if err != nil {
		return nil, err
	}
	maxEntropy, err := fixedpoint.Log2Scaled(fixedpoint.Scaled(int64(n)))
	if err != nil {
		return nil, err
	}
	score, err := fixedpoint.Div(std, maxEntropy)
	if err != nil {
		return nil, err
	}
	return fixedpoint.ClampUnit(score), nil
}

// temporal returns Scale - |lag-1 autocorrelation| of the global liquidity
// series. Products are accumulated from absolute deviations with a separate
// sign so that the root is always taken of a non-negative value.
func temporal(series []*big.Int) (*big.Int, error) {
	if len(series) < 2 {
		return big.NewInt(fixedpoint.Scale), nil
	}
	x := series[1:]
	y := series[:len(series)-1]

	meanX, err := fixedpoint.Mean(x)
	if err != nil {
		return nil, err
	}
	meanY, err := fixedpoint.Mean(y)
	if err != nil {
		return nil, err
	}

	cov, varX, varY := new(big.Int), new(big.Int), new(big.Int)
	for i := range x {
		dx := fixedpoint.AbsDiff(x[i], meanX)
		dy := fixedpoint.AbsDiff(y[i], meanY)
		p := new(big.Int).Mul(dx, dy)
		if (x[i].Cmp(meanX) >= 0) != (y[i].Cmp(meanY) >= 0) {
			p.Neg(p)
		}
		cov.Add(cov, p)
		varX.Add(varX, new(big.Int).Mul(dx, dx))
		varY.Add(varY, new(big.Int).Mul(dy, dy))
	}

	corr := new(big.Int)
	if varX.Sign() != 0 && varY.Sign() != 0 {
		den, err := fixedpoint.Sqrt(new(big.Int).Mul(varX, varY))
		if err != nil {
			return nil, err
		}
		if den.Sign() != 0 {
			corr = fixedpoint.ClampSigned(ratio(cov, den))
		}
	}
	return new(big.Int).Sub(bigScale, corr.Abs(corr)), nil
}

// aggregate returns the weighted sum of the clamped components.
func aggregate(r models.VolatilityResult, w Weights) *big.Int {
	out := new(big.Int)
	for _, term := range []struct {
		weight int64
		value  *big.Int
	}{
		{w.Overall, r.Overall},
		{w.Transition, r.Transition},
		{w.PerTick, r.PerTick},
		{w.Entropy, r.Entropy},
		{w.Temporal, r.Temporal},
	} {
		t := fixedpoint.ClampUnit(term.value)
		t.Mul(t, big.NewInt(term.weight))
		out.Add(out, t.Quo(t, bigScale))
	}
	return fixedpoint.ClampUnit(out)
}
