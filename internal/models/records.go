package models

import (
	"errors"
	"math/big"
	"time"
)

// Pool is a tracked market. One analyzer session exists per pool.
type Pool struct {
	ID          string    `json:"id"`
	TickSpacing int64     `json:"tick_spacing"`
	CreatedAt   time.Time `json:"created_at"`
}

// Observation is a distribution snapshot as delivered by the indexer.
type Observation struct {
	ID           string       `json:"id"`
	PoolID       string       `json:"pool_id"`
	BlockNumber  int64        `json:"block_number"`
	CurrentTick  int64        `json:"current_tick"`
	Distribution Distribution `json:"distribution"`
	ObservedAt   time.Time    `json:"observed_at"`
}

// Validate checks observation field constraints.
func (o *Observation) Validate() error {
	if o.PoolID == "" {
		return errors.New("pool ID must not be empty")
	}
	if o.BlockNumber < 0 {
		return errors.New("block number must not be negative")
	}
	if o.ObservedAt.IsZero() {
		return errors.New("observed at must be set")
	}
	return o.Distribution.Validate()
}

// ScoreRecord is a persisted analyzer result.
type ScoreRecord struct {
	ID          string    `json:"id"`
	PoolID      string    `json:"pool_id"`
	BlockNumber int64     `json:"block_number"`
	Result      Result    `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}

// Alert is raised when a pool's aggregate volatility crosses the threshold.
type Alert struct {
	ID            string    `json:"id"`
	PoolID        string    `json:"pool_id"`
	BlockNumber   int64     `json:"block_number"`
	Aggregate     *big.Int  `json:"aggregate"`
	Previous      *big.Int  `json:"previous"`
	Transition    *big.Int  `json:"transition"`
	Concentration *big.Int  `json:"concentration"`
	DetectedAt    time.Time `json:"detected_at"`
	Notified      bool      `json:"notified"`
}
