// Package replay scores a recorded sequence of distributions offline.
package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/liqoracle/internal/analyzer"
	"github.com/rewired-gh/liqoracle/internal/models"
)

// Fixture is a recorded pool history.
//
//	pool_id: eth-usdc
//	tick_spacing: 10
//	observations:
//	  - block: 100
//	    current_tick: 5
//	    start_tick: -20
//	    end_tick: 20
//	    liquidity: ["1000", "2500", "4000", "2500", "1000"]
type Fixture struct {
	PoolID       string               `yaml:"pool_id"`
	TickSpacing  int64                `yaml:"tick_spacing"`
	Observations []FixtureObservation `yaml:"observations"`
}

// FixtureObservation is one recorded block. Liquidity values are decimal
// strings because they routinely exceed 64 bits.
type FixtureObservation struct {
	Block       int64    `yaml:"block"`
	CurrentTick int64    `yaml:"current_tick"`
	StartTick   int64    `yaml:"start_tick"`
	EndTick     int64    `yaml:"end_tick"`
	Liquidity   []string `yaml:"liquidity"`
}

// Load decodes a fixture and converts it into observations.
func Load(r io.Reader) ([]models.Observation, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	if f.PoolID == "" {
		return nil, errors.New("fixture: pool_id is required")
	}

	out := make([]models.Observation, 0, len(f.Observations))
	for i, fo := range f.Observations {
		liq := make([]*big.Int, len(fo.Liquidity))
		for j, s := range fo.Liquidity {
			v, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, fmt.Errorf("fixture: observation %d: %w: liquidity %q", i, models.ErrInputShape, s)
			}
			liq[j] = v
		}
		dist, err := models.FromRange(liq, fo.StartTick, fo.EndTick, f.TickSpacing)
		if err != nil {
			return nil, fmt.Errorf("fixture: observation %d: %w", i, err)
		}
		out = append(out, models.Observation{
			PoolID:       f.PoolID,
			BlockNumber:  fo.Block,
			CurrentTick:  fo.CurrentTick,
			Distribution: dist,
			ObservedAt:   time.Unix(0, 0).UTC(),
		})
	}
	return out, nil
}

// Line is one JSON line of replay output.
type Line struct {
	PoolID string         `json:"pool_id"`
	Block  int64          `json:"block"`
	Reset  bool           `json:"reset,omitempty"`
	Result *models.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Run feeds observations through a fresh analyzer and writes one JSON line
// per observation. A tick range change restarts the session; scoring errors
// are reported in the line and the replay continues with the session intact.
func Run(cfg analyzer.Config, observations []models.Observation, w io.Writer) error {
	a, err := analyzer.New(cfg)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for _, obs := range observations {
		line := Line{PoolID: obs.PoolID, Block: obs.BlockNumber}

		res, err := a.ProcessDistribution(obs.Distribution, obs.CurrentTick)
		if errors.Is(err, models.ErrInputShape) && obs.Distribution.Validate() == nil {
			// keep the current session unless the new one accepts the block
			fresh, ferr := analyzer.New(cfg)
			if ferr != nil {
				return ferr
			}
			if res, err = fresh.ProcessDistribution(obs.Distribution, obs.CurrentTick); err == nil {
				a = fresh
				line.Reset = true
			}
		}
		if err != nil {
			line.Error = err.Error()
		} else {
			line.Result = &res
		}

		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}
