// Package distance measures how far apart two liquidity distributions are.
//
// Every function takes two distributions of equal length, compares them by
// position and returns a ScaledValue. Inputs are never modified.
package distance

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/rewired-gh/liqoracle/internal/fixedpoint"
	"github.com/rewired-gh/liqoracle/internal/models"
)

var bigScale = big.NewInt(fixedpoint.Scale)

func checkPair(p, q models.Distribution) error {
	if err := models.SameShape(p, q); err != nil {
		return err
	}
	if len(p) == 0 {
		return fmt.Errorf("%w: empty distributions", models.ErrInputShape)
	}
	return nil
}

func sortedLiquidity(d models.Distribution) []*big.Int {
	out := d.Liquidity()
	slices.SortFunc(out, func(a, b *big.Int) int { return a.Cmp(b) })
	return out
}

// Wasserstein returns the first Wasserstein distance between the empirical
// distributions of the two liquidity columns, in liquidity units.
//
// Both columns are merged and sorted; over every gap between successive
// values the absolute difference of the two empirical CDFs is accumulated.
// CDFs are held in Scale units and the sum is descaled once at the end.
func Wasserstein(p, q models.Distribution) (*big.Int, error) {
	if err := checkPair(p, q); err != nil {
		return nil, err
	}

	u := sortedLiquidity(p)
	v := sortedLiquidity(q)
	all := append(slices.Clone(u), v...)
	slices.SortFunc(all, func(a, b *big.Int) int { return a.Cmp(b) })

	n := big.NewInt(int64(len(u)))
	sum := new(big.Int)
	cdfU, cdfV := new(big.Int), new(big.Int)
	gap, term := new(big.Int), new(big.Int)

	iu, iv := 0, 0
	for k := 0; k < len(all)-1; k++ {
		x := all[k]
		for iu < len(u) && u[iu].Cmp(x) <= 0 {
			iu++
		}
		for iv < len(v) && v[iv].Cmp(x) <= 0 {
			iv++
		}
		gap.Sub(all[k+1], x)
		if gap.Sign() == 0 {
			continue
		}
		cdfU.Mul(big.NewInt(int64(iu)), bigScale).Quo(cdfU, n)
		cdfV.Mul(big.NewInt(int64(iv)), bigScale).Quo(cdfV, n)
		term.Sub(cdfU, cdfV).Abs(term).Mul(term, gap)
		sum.Add(sum, term)
	}
	return sum.Quo(sum, bigScale), nil
}

// PairwiseRange returns the smallest and largest |p_i - q_j| over all cross
// pairs of liquidity values. It bounds the Wasserstein distance for
// min-max normalization.
func PairwiseRange(p, q models.Distribution) (lo, hi *big.Int, err error) {
	if err := checkPair(p, q); err != nil {
		return nil, nil, err
	}

	u := sortedLiquidity(p)
	v := sortedLiquidity(q)

	hi = fixedpoint.Max(
		new(big.Int).Sub(u[len(u)-1], v[0]),
		new(big.Int).Sub(v[len(v)-1], u[0]),
	)

	lo = fixedpoint.AbsDiff(u[0], v[0])
	diff := new(big.Int)
	i, j := 0, 0
	for i < len(u) && j < len(v) {
		diff.Sub(u[i], v[j])
		if new(big.Int).Abs(diff).Cmp(lo) < 0 {
			lo.Abs(diff)
		}
		if diff.Sign() < 0 {
			i++
		} else {
			j++
		}
	}
	return lo, hi, nil
}

// sqrtMasses sum-normalizes d to Scale and returns the scaled square root of
// every mass.
func sqrtMasses(d models.Distribution) ([]*big.Int, error) {
	total := d.Total()
	if total.Sign() == 0 {
		return nil, fmt.Errorf("%w: cannot normalize a distribution with zero total liquidity", fixedpoint.ErrDomain)
	}
	out := make([]*big.Int, len(d))
	for i, pt := range d {
		mass := new(big.Int).Mul(pt.Liquidity, bigScale)
		mass.Quo(mass, total)
		r, err := fixedpoint.SqrtScaled(mass)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Hellinger returns the Hellinger distance between the sum-normalized
// distributions, in [0, Scale].
func Hellinger(p, q models.Distribution) (*big.Int, error) {
	if err := checkPair(p, q); err != nil {
		return nil, err
	}

	sp, err := sqrtMasses(p)
	if err != nil {
		return nil, err
	}
	sq, err := sqrtMasses(q)
	if err != nil {
		return nil, err
	}

	sum := new(big.Int)
	d := new(big.Int)
	for i := range sp {
		d.Sub(sp[i], sq[i])
		sum.Add(sum, d.Mul(d, d))
	}
	h, err := fixedpoint.Sqrt(sum.Quo(sum, big.NewInt(2)))
	if err != nil {
		return nil, err
	}
	return fixedpoint.ClampUnit(h), nil
}

// Cosine returns the cosine similarity of the two liquidity vectors in
// [-Scale, Scale]. A zero vector has similarity 0 with everything.
func Cosine(p, q models.Distribution) (*big.Int, error) {
	if err := checkPair(p, q); err != nil {
		return nil, err
	}

	dot, pp, qq := new(big.Int), new(big.Int), new(big.Int)
	t := new(big.Int)
	for i := range p {
		a, b := p[i].Liquidity, q[i].Liquidity
		dot.Add(dot, t.Mul(a, b))
		pp.Add(pp, t.Mul(a, a))
		qq.Add(qq, t.Mul(b, b))
	}
	if pp.Sign() == 0 || qq.Sign() == 0 {
		return new(big.Int), nil
	}

	// |p|·|q|·Scale, with the extra digits kept inside the root
	denom := new(big.Int).Mul(pp, qq)
	denom.Mul(denom, bigScale).Mul(denom, bigScale)
	denom, err := fixedpoint.Sqrt(denom)
	if err != nil {
		return nil, err
	}
	if denom.Sign() == 0 {
		return new(big.Int), nil
	}

	sim := dot.Mul(dot, bigScale).Mul(dot, bigScale)
	sim.Quo(sim, denom)
	return fixedpoint.ClampSigned(sim), nil
}
