// Package analyzer runs the full scoring pipeline for one pool session:
// transition, volatility and structure metrics for every new distribution.
package analyzer

import (
	"fmt"

	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/structure"
	"github.com/rewired-gh/liqoracle/internal/transition"
	"github.com/rewired-gh/liqoracle/internal/volatility"
	"github.com/rewired-gh/liqoracle/internal/window"
)

// Config holds the engine parameters supplied by the host.
type Config struct {
	MaxWindowSize     int
	HalfWidth         int64
	TransitionWeights transition.Weights
	VolatilityWeights volatility.Weights
}

// DefaultConfig returns a five-snapshot window with a 50-index depth half
// width and the default weights.
func DefaultConfig() Config {
	return Config{
		MaxWindowSize:     5,
		HalfWidth:         50,
		TransitionWeights: transition.DefaultWeights(),
		VolatilityWeights: volatility.DefaultWeights(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxWindowSize < window.MinCapacity {
		return fmt.Errorf("%w: max window size must be at least %d, got %d",
			models.ErrInputShape, window.MinCapacity, c.MaxWindowSize)
	}
	if c.HalfWidth <= 0 {
		return fmt.Errorf("%w: half width must be positive, got %d", models.ErrInputShape, c.HalfWidth)
	}
	if err := c.TransitionWeights.Validate(); err != nil {
		return err
	}
	return c.VolatilityWeights.Validate()
}

// Analyzer is the scoring session of one pool. Calls must be serialized and
// made in the order distributions were observed.
type Analyzer struct {
	cfg        Config
	transition *transition.Metric
	volatility *volatility.Engine
}

// New creates an analyzer with empty state.
func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tm, err := transition.New(cfg.TransitionWeights)
	if err != nil {
		return nil, err
	}
	ve, err := volatility.New(cfg.MaxWindowSize, cfg.VolatilityWeights)
	if err != nil {
		return nil, err
	}
	return &Analyzer{cfg: cfg, transition: tm, volatility: ve}, nil
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// ProcessDistribution scores dist observed at currentTick. On error no
// state changes, so the caller may retry with a corrected input.
func (a *Analyzer) ProcessDistribution(dist models.Distribution, currentTick int64) (models.Result, error) {
	if err := dist.Validate(); err != nil {
		return models.Result{}, err
	}

	score, err := a.transition.Peek(dist)
	if err != nil {
		return models.Result{}, fmt.Errorf("transition: %w", err)
	}
	st, err := structure.Compute(dist, currentTick, a.cfg.HalfWidth)
	if err != nil {
		return models.Result{}, fmt.Errorf("structure: %w", err)
	}
	vol, err := a.volatility.Add(currentTick, dist, score)
	if err != nil {
		return models.Result{}, fmt.Errorf("volatility: %w", err)
	}
	a.transition.Commit(dist)

	return models.Result{Transition: score, Volatility: vol, Structure: st}, nil
}

// Reset starts a new session: the next distribution is treated as the first.
func (a *Analyzer) Reset() {
	a.transition.Reset()
	a.volatility.Reset()
}

// LatestDistribution returns the last successfully processed distribution.
func (a *Analyzer) LatestDistribution() (models.Distribution, bool) {
	return a.volatility.Latest()
}

// VolatilityWindow returns the volatility window, oldest first.
func (a *Analyzer) VolatilityWindow() []models.Snapshot {
	return a.volatility.Window()
}
