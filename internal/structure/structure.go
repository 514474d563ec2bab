// Package structure computes single-snapshot shape metrics of a liquidity
// distribution: concentration, depth around the current tick and spread.
package structure

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/rewired-gh/liqoracle/internal/fixedpoint"
	"github.com/rewired-gh/liqoracle/internal/models"
)

// decayPrec is the mantissa precision, in bits, of depth weight arithmetic.
const decayPrec = 256

var (
	bigScale = big.NewInt(fixedpoint.Scale)

	// ln10 to 100 significant digits.
	ln10 = mustParseFloat("2.302585092994045684017991454684364207601101488628772976033327900967572609677352480235997205089598298")
)

func mustParseFloat(s string) *big.Float {
	f, _, err := big.ParseFloat(s, 10, decayPrec, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	return f
}

func newFloat() *big.Float {
	return new(big.Float).SetPrec(decayPrec)
}

// expFloat returns e^x for 0 <= x <= ln10. x is halved expHalvings times so
// the Taylor series converges in a few dozen terms, then the sum is squared
// back.
func expFloat(x *big.Float) *big.Float {
	const expHalvings = 8
	r := newFloat().SetMantExp(x, -expHalvings)
	sum := newFloat().SetInt64(1)
	term := newFloat().SetInt64(1)
	for n := int64(1); ; n++ {
		term.Mul(term, r)
		term.Quo(term, newFloat().SetInt64(n))
		if term.Sign() == 0 || term.MantExp(nil) < -decayPrec {
			break
		}
		sum.Add(sum, term)
	}
	for i := 0; i < expHalvings; i++ {
		sum.Mul(sum, sum)
	}
	return sum
}

// CenterIndex returns the index of the point whose tick is nearest to tick.
// Ties go to the lower index.
func CenterIndex(d models.Distribution, tick int64) int {
	if len(d) == 0 {
		return 0
	}
	i := sort.Search(len(d), func(i int) bool { return d[i].Tick >= tick })
	switch {
	case i == 0:
		return 0
	case i == len(d):
		return len(d) - 1
	case tick-d[i-1].Tick <= d[i].Tick-tick:
		return i - 1
	default:
		return i
	}
}

// weights sum-normalizes d to Scale.
func weights(d models.Distribution) ([]*big.Int, error) {
	total := d.Total()
	if total.Sign() == 0 {
		return nil, fmt.Errorf("%w: cannot normalize a distribution with zero total liquidity", fixedpoint.ErrDomain)
	}
	out := make([]*big.Int, len(d))
	for i, p := range d {
		w := new(big.Int).Mul(p.Liquidity, bigScale)
		out[i] = w.Quo(w, total)
	}
	return out, nil
}

// Concentration returns the normalized Herfindahl-Hirschman index of d in
// [0, Scale]: 0 for a uniform distribution, Scale when all liquidity sits on
// one tick.
func Concentration(d models.Distribution) (*big.Int, error) {
	n := int64(len(d))
	if n < 2 {
		return nil, fmt.Errorf("%w: concentration is undefined for %d ticks", fixedpoint.ErrDomain, n)
	}
	ws, err := weights(d)
	if err != nil {
		return nil, err
	}

	// Scale² units throughout
	scaleSq := new(big.Int).Mul(bigScale, bigScale)
	sumSq := new(big.Int)
	for _, w := range ws {
		sumSq.Add(sumSq, new(big.Int).Mul(w, w))
	}
	invN := new(big.Int).Quo(scaleSq, big.NewInt(n))

	num := new(big.Int).Sub(sumSq, invN)
	num.Mul(num, bigScale)
	num.Quo(num, new(big.Int).Sub(scaleSq, invN))
	return fixedpoint.ClampUnit(num), nil
}

// DecayWeights returns the depth weight of every index of d, in Scale units.
// Weights decay exponentially with the index distance from the point nearest
// currentTick and fall to one tenth at halfWidth. The table is derived in
// big.Float at a fixed precision and rounded half up, so it is identical on
// every platform.
func DecayWeights(d models.Distribution, currentTick, halfWidth int64) ([]int64, error) {
	if halfWidth <= 0 {
		return nil, fmt.Errorf("%w: half width must be positive, got %d", models.ErrInputShape, halfWidth)
	}
	center := CenterIndex(d, currentTick)
	maxDist := center
	if far := len(d) - 1 - center; far > maxDist {
		maxDist = far
	}

	// step = 10^(-1/halfWidth), the ratio between neighbouring weights
	lambda := newFloat().Quo(ln10, newFloat().SetInt64(halfWidth))
	step := newFloat().Quo(newFloat().SetInt64(1), expFloat(lambda))

	scale := newFloat().SetInt64(fixedpoint.Scale)
	half := newFloat().SetFloat64(0.5)
	table := make([]int64, maxDist+1)
	pow := newFloat().SetInt64(1)
	for dist := 0; dist <= maxDist; dist++ {
		w := newFloat().Mul(pow, scale)
		table[dist], _ = w.Add(w, half).Int64()
		if table[dist] == 0 {
			break
		}
		pow.Mul(pow, step)
	}

	out := make([]int64, len(d))
	for i := range d {
		dist := i - center
		if dist < 0 {
			dist = -dist
		}
		out[i] = table[dist]
	}
	return out, nil
}

// Depth returns the decay-weighted liquidity around currentTick, in
// liquidity units.
func Depth(d models.Distribution, currentTick, halfWidth int64) (*big.Int, error) {
	ws, err := DecayWeights(d, currentTick, halfWidth)
	if err != nil {
		return nil, err
	}
	sum := new(big.Int)
	t := new(big.Int)
	for i, p := range d {
		sum.Add(sum, t.Mul(big.NewInt(ws[i]), p.Liquidity))
	}
	return sum.Quo(sum, bigScale), nil
}

// Spread returns the liquidity-weighted standard deviation of the distance
// between each tick and currentTick, in scaled ticks.
func Spread(d models.Distribution, currentTick int64) (*big.Int, error) {
	ws, err := weights(d)
	if err != nil {
		return nil, err
	}

	dists := make([]*big.Int, len(d))
	mean := new(big.Int)
	for i, p := range d {
		dists[i] = new(big.Int).Mul(fixedpoint.AbsDiff(big.NewInt(p.Tick), big.NewInt(currentTick)), bigScale)
		t := new(big.Int).Mul(dists[i], ws[i])
		mean.Add(mean, t.Quo(t, bigScale))
	}

	variance := new(big.Int)
	for i := range d {
		dev := new(big.Int).Sub(dists[i], mean)
		dev.Mul(dev, dev).Mul(dev, ws[i])
		variance.Add(variance, dev.Quo(dev, bigScale))
	}
	return fixedpoint.Sqrt(variance)
}

// Compute returns all three structure metrics of d.
func Compute(d models.Distribution, currentTick, halfWidth int64) (models.StructureResult, error) {
	c, err := Concentration(d)
	if err != nil {
		return models.StructureResult{}, fmt.Errorf("concentration: %w", err)
	}
	depth, err := Depth(d, currentTick, halfWidth)
	if err != nil {
		return models.StructureResult{}, fmt.Errorf("depth: %w", err)
	}
	spread, err := Spread(d, currentTick)
	if err != nil {
		return models.StructureResult{}, fmt.Errorf("spread: %w", err)
	}
	return models.StructureResult{Concentration: c, Depth: depth, Spread: spread}, nil
}
