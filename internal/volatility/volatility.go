// Package volatility scores how unstable a pool's liquidity has been over a
// sliding window of snapshots.
//
// The engine produces five components (overall, transition, per-tick,
// entropy and temporal) and their weighted aggregate, all in [0, Scale].
// Unbounded statistics are scored against a decaying historical maximum
// kept in a Normalizer, so the engine is stateful across calls.
package volatility

import (
	"fmt"
	"math/big"

	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/transition"
	"github.com/rewired-gh/liqoracle/internal/window"
)

// Weights are the aggregate contributions of the five components, in Scale
// units.
type Weights struct {
	Overall    int64 `mapstructure:"overall" yaml:"overall"`
	Transition int64 `mapstructure:"transition" yaml:"transition"`
	PerTick    int64 `mapstructure:"per_tick" yaml:"per_tick"`
	Entropy    int64 `mapstructure:"entropy" yaml:"entropy"`
	Temporal   int64 `mapstructure:"temporal" yaml:"temporal"`
}

// DefaultWeights returns 0.35 / 0.25 / 0.20 / 0.10 / 0.10.
func DefaultWeights() Weights {
	return Weights{Overall: 3500, Transition: 2500, PerTick: 2000, Entropy: 1000, Temporal: 1000}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	for _, v := range []int64{w.Overall, w.Transition, w.PerTick, w.Entropy, w.Temporal} {
		if v < 0 {
			return fmt.Errorf("%w: volatility weights must be non-negative, got %+v", models.ErrInputShape, w)
		}
	}
	return nil
}

// Engine owns the snapshot window, the normalizer and the previous
// transition volatility of one pool session. Not safe for concurrent use.
type Engine struct {
	weights Weights
	window  *window.Manager
	norm    Normalizer
	prevVol *big.Int
}

// New creates an engine whose window holds capacity snapshots.
func New(capacity int, weights Weights) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	w, err := window.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Engine{
		weights: weights,
		window:  w,
		norm:    NewNormalizer(),
		prevVol: new(big.Int),
	}, nil
}

// Add records dist with the transition score that led to it and returns the
// volatility of the window. Until the window is full, and for the first
// observation of a session, the result is all zeros.
//
// The update is all-or-nothing: on error the window, normalizer and
// previous transition volatility are left as they were.
func (e *Engine) Add(currentTick int64, dist models.Distribution, score *big.Int) (models.VolatilityResult, error) {
	if err := dist.Validate(); err != nil {
		return models.VolatilityResult{}, err
	}
	if latest, ok := e.window.Latest(); ok {
		if err := models.SameShape(latest.Distribution, dist); err != nil {
			return models.VolatilityResult{}, err
		}
	}

	if score == nil || transition.IsUndefined(score) {
		e.window.Push(models.Snapshot{Distribution: dist.Clone(), Transition: new(big.Int)})
		e.prevVol = new(big.Int)
		return models.ZeroVolatility(), nil
	}

	snap := models.Snapshot{Distribution: dist.Clone(), Transition: new(big.Int).Set(score)}
	snaps := e.window.Preview(snap)
	if len(snaps) < e.window.Cap() {
		e.window.Push(snap)
		return models.ZeroVolatility(), nil
	}

	res, norm, prevVol, err := e.compute(snaps, currentTick)
	if err != nil {
		return models.VolatilityResult{}, err
	}
	e.window.Push(snap)
	e.norm = norm
	e.prevVol = prevVol
	return res, nil
}

func (e *Engine) compute(snaps []models.Snapshot, currentTick int64) (models.VolatilityResult, Normalizer, *big.Int, error) {
	var res models.VolatilityResult
	norm := e.norm.Clone()
	series := globalLiquidity(snaps)

	var err error
	if res.Overall, err = overall(series, &norm); err != nil {
		return res, norm, nil, fmt.Errorf("overall volatility: %w", err)
	}

	prevVol, err := transitionVolatility(snaps, e.prevVol)
	if err != nil {
		return res, norm, nil, fmt.Errorf("transition volatility: %w", err)
	}
	if res.Transition, norm.Transition, err = EWMX(prevVol, norm.Transition); err != nil {
		return res, norm, nil, fmt.Errorf("transition volatility: %w", err)
	}

	raw, err := perTick(snaps, currentTick)
	if err != nil {
		return res, norm, nil, fmt.Errorf("per-tick volatility: %w", err)
	}
	if res.PerTick, norm.PerTick, err = EWMX(raw, norm.PerTick); err != nil {
		return res, norm, nil, fmt.Errorf("per-tick volatility: %w", err)
	}

	if res.Entropy, err = entropy(snaps); err != nil {
		return res, norm, nil, fmt.Errorf("entropy volatility: %w", err)
	}
	if res.Temporal, err = temporal(series); err != nil {
		return res, norm, nil, fmt.Errorf("temporal dependence: %w", err)
	}

	res.Aggregate = aggregate(res, e.weights)
	return res, norm, prevVol, nil
}

// Window returns the live snapshots, oldest first.
func (e *Engine) Window() []models.Snapshot {
	return e.window.All()
}

// Latest returns the most recently added distribution.
func (e *Engine) Latest() (models.Distribution, bool) {
	s, ok := e.window.Latest()
	return s.Distribution, ok
}

// Normalizer returns a copy of the current normalizer state.
func (e *Engine) Normalizer() Normalizer {
	return e.norm.Clone()
}

// Reset clears the window, the normalizer and the previous transition
// volatility.
func (e *Engine) Reset() {
	e.window.Clear()
	e.norm = NewNormalizer()
	e.prevVol = new(big.Int)
}
