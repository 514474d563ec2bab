// Package transition scores how much a pool's distribution changed between
// two consecutive observations.
package transition

import (
	"fmt"
	"math/big"

	"github.com/rewired-gh/liqoracle/internal/distance"
	"github.com/rewired-gh/liqoracle/internal/fixedpoint"
	"github.com/rewired-gh/liqoracle/internal/models"
)

// Undefined is returned for the first observation of a session, when there
// is nothing to compare against.
const Undefined = -1

var bigScale = big.NewInt(fixedpoint.Scale)

// IsUndefined reports whether v is the first-observation sentinel.
func IsUndefined(v *big.Int) bool {
	return v != nil && v.IsInt64() && v.Int64() == Undefined
}

// Weights are the per-metric contributions to the composite score, in Scale
// units.
type Weights struct {
	Wasserstein int64 `mapstructure:"wasserstein" yaml:"wasserstein"`
	Hellinger   int64 `mapstructure:"hellinger" yaml:"hellinger"`
	Cosine      int64 `mapstructure:"cosine" yaml:"cosine"`
}

// DefaultWeights returns 0.4 / 0.3 / 0.3.
func DefaultWeights() Weights {
	return Weights{Wasserstein: 4000, Hellinger: 3000, Cosine: 3000}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	if w.Wasserstein < 0 || w.Hellinger < 0 || w.Cosine < 0 {
		return fmt.Errorf("%w: transition weights must be non-negative, got %+v", models.ErrInputShape, w)
	}
	return nil
}

// Metric holds the previous distribution of a session. Not safe for
// concurrent use.
type Metric struct {
	weights Weights
	prev    models.Distribution
}

// New creates a metric with no previous distribution.
func New(weights Weights) (*Metric, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Metric{weights: weights}, nil
}

// Add scores dist against the previous distribution and makes dist the new
// previous one. The first call returns Undefined. On error the state is
// unchanged.
func (m *Metric) Add(dist models.Distribution) (*big.Int, error) {
	v, err := m.Peek(dist)
	if err != nil {
		return nil, err
	}
	m.Commit(dist)
	return v, nil
}

// Commit makes dist the previous distribution without scoring it.
func (m *Metric) Commit(dist models.Distribution) {
	m.prev = dist.Clone()
}

// Peek returns what Add would return without changing state.
func (m *Metric) Peek(dist models.Distribution) (*big.Int, error) {
	if m.prev == nil {
		return big.NewInt(Undefined), nil
	}
	return Composite(m.prev, dist, m.weights)
}

// Previous returns the stored distribution, or nil before the first Add.
func (m *Metric) Previous() models.Distribution {
	return m.prev
}

// Reset forgets the previous distribution.
func (m *Metric) Reset() {
	m.prev = nil
}

// NormalizedWasserstein min-max scales the Wasserstein distance between p
// and q by the pairwise value range of the two distributions.
func NormalizedWasserstein(p, q models.Distribution) (*big.Int, error) {
	d, err := distance.Wasserstein(p, q)
	if err != nil {
		return nil, err
	}
	lo, hi, err := distance.PairwiseRange(p, q)
	if err != nil {
		return nil, err
	}
	span := new(big.Int).Sub(hi, lo)
	if span.Sign() == 0 {
		return new(big.Int), nil
	}
	n := new(big.Int).Sub(d, lo)
	n.Mul(n, bigScale).Quo(n, span)
	return fixedpoint.ClampUnit(n), nil
}

// Composite returns the weighted transition score between p and q in
// [0, Scale].
func Composite(p, q models.Distribution, w Weights) (*big.Int, error) {
	wd, err := NormalizedWasserstein(p, q)
	if err != nil {
		return nil, err
	}
	hd, err := distance.Hellinger(p, q)
	if err != nil {
		return nil, err
	}
	sim, err := distance.Cosine(p, q)
	if err != nil {
		return nil, err
	}
	// similarity in [-1, 1] mapped onto a distance in [0, 1]
	cd := new(big.Int).Sub(bigScale, sim)
	cd.Quo(cd, big.NewInt(2))

	out := new(big.Int)
	for _, term := range []struct {
		weight int64
		value  *big.Int
	}{
		{w.Wasserstein, wd},
		{w.Hellinger, hd},
		{w.Cosine, cd},
	} {
		t := new(big.Int).Mul(big.NewInt(term.weight), term.value)
		out.Add(out, t.Quo(t, bigScale))
	}
	return fixedpoint.ClampUnit(out), nil
}
