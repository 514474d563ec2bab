// Package storage provides SQLite-backed persistence for pools, observations,
// scores and alerts.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/liqoracle/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db              *sqlx.DB
	maxObservations int
}

// New opens or creates the SQLite database at dbPath. maxObservations caps
// the observations, scores and alerts kept per pool.
// An empty dbPath defaults to $TMPDIR/liqoracle/data.db.
func New(maxObservations int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "liqoracle", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxObservations: maxObservations}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping() error {
	return s.db.Ping()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pools (
			id              TEXT PRIMARY KEY,
			tick_spacing    INTEGER NOT NULL,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id              TEXT PRIMARY KEY,
			pool_id         TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
			block_number    INTEGER NOT NULL,
			current_tick    INTEGER NOT NULL,
			distribution    TEXT NOT NULL,
			observed_at     INTEGER NOT NULL,
			UNIQUE (pool_id, block_number)
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id              TEXT PRIMARY KEY,
			pool_id         TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
			block_number    INTEGER NOT NULL,
			aggregate       INTEGER NOT NULL,
			result          TEXT NOT NULL,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			pool_id         TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
			block_number    INTEGER NOT NULL,
			aggregate       INTEGER NOT NULL,
			previous        INTEGER NOT NULL,
			transition      INTEGER NOT NULL,
			concentration   INTEGER NOT NULL,
			detected_at     INTEGER NOT NULL,
			notified        INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_pool_block ON observations(pool_id, block_number DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_pool_block ON scores(pool_id, block_number DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_aggregate ON alerts(aggregate DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPool registers a pool or updates its tick spacing.
func (s *Storage) UpsertPool(pool *models.Pool) error {
	if pool.ID == "" {
		return errors.New("invalid pool: ID must not be empty")
	}
	if pool.CreatedAt.IsZero() {
		pool.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO pools (id, tick_spacing, created_at) VALUES (?,?,?)
		ON CONFLICT(id) DO UPDATE SET tick_spacing = excluded.tick_spacing`,
		pool.ID, pool.TickSpacing, pool.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pool: %w", err)
	}
	return nil
}

type poolRow struct {
	ID          string `db:"id"`
	TickSpacing int64  `db:"tick_spacing"`
	CreatedAt   int64  `db:"created_at"`
}

// GetPools returns every registered pool.
func (s *Storage) GetPools() ([]models.Pool, error) {
	var rows []poolRow
	if err := s.db.Select(&rows, `SELECT id, tick_spacing, created_at FROM pools ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	pools := make([]models.Pool, 0, len(rows))
	for _, r := range rows {
		pools = append(pools, models.Pool{ID: r.ID, TickSpacing: r.TickSpacing, CreatedAt: time.Unix(0, r.CreatedAt)})
	}
	return pools, nil
}

type observationRow struct {
	ID           string `db:"id"`
	PoolID       string `db:"pool_id"`
	BlockNumber  int64  `db:"block_number"`
	CurrentTick  int64  `db:"current_tick"`
	Distribution string `db:"distribution"`
	ObservedAt   int64  `db:"observed_at"`
}

func (r observationRow) toModel() (models.Observation, error) {
	obs := models.Observation{
		ID:          r.ID,
		PoolID:      r.PoolID,
		BlockNumber: r.BlockNumber,
		CurrentTick: r.CurrentTick,
		ObservedAt:  time.Unix(0, r.ObservedAt),
	}
	if err := json.Unmarshal([]byte(r.Distribution), &obs.Distribution); err != nil {
		return obs, fmt.Errorf("failed to unmarshal distribution: %w", err)
	}
	return obs, nil
}

// AddObservation stores an observation and trims the pool's history to the
// configured cap. An observation for an already stored block is ignored.
func (s *Storage) AddObservation(obs *models.Observation) error {
	return s.withObservation(obs, true, nil)
}

// AddScoredObservation stores an observation and its score in one
// transaction. The block must not be stored yet; on any failure neither row
// is written.
func (s *Storage) AddScoredObservation(obs *models.Observation, rec *models.ScoreRecord) error {
	rec.PoolID = obs.PoolID
	rec.BlockNumber = obs.BlockNumber
	return s.withObservation(obs, false, func(tx *sqlx.Tx) error {
		return insertScore(tx, rec)
	})
}

func (s *Storage) withObservation(obs *models.Observation, ignoreDuplicate bool, then func(tx *sqlx.Tx) error) error {
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}
	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	distJSON, err := json.Marshal(obs.Distribution)
	if err != nil {
		return fmt.Errorf("failed to marshal distribution: %w", err)
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	verb := "INSERT"
	if ignoreDuplicate {
		verb = "INSERT OR IGNORE"
	}
	_, err = tx.Exec(verb+` INTO observations
			(id, pool_id, block_number, current_tick, distribution, observed_at)
		VALUES (?,?,?,?,?,?)`,
		obs.ID, obs.PoolID, obs.BlockNumber, obs.CurrentTick, string(distJSON), obs.ObservedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	if then != nil {
		if err := then(tx); err != nil {
			return err
		}
	}

	if _, err = tx.Exec(`
		DELETE FROM observations WHERE pool_id = ? AND id NOT IN (
			SELECT id FROM observations WHERE pool_id = ? ORDER BY block_number DESC LIMIT ?
		)`, obs.PoolID, obs.PoolID, s.maxObservations); err != nil {
		return fmt.Errorf("failed to enforce observation cap: %w", err)
	}

	return tx.Commit()
}

// RecentObservations returns up to n of the pool's newest observations,
// oldest first.
func (s *Storage) RecentObservations(poolID string, n int) ([]models.Observation, error) {
	var rows []observationRow
	err := s.db.Select(&rows, `
		SELECT id, pool_id, block_number, current_tick, distribution, observed_at
		FROM (
			SELECT * FROM observations WHERE pool_id = ? ORDER BY block_number DESC LIMIT ?
		) ORDER BY block_number ASC`, poolID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	out := make([]models.Observation, 0, len(rows))
	for _, r := range rows {
		obs, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}

// LatestBlock returns the newest stored block number of a pool.
func (s *Storage) LatestBlock(poolID string) (int64, bool, error) {
	var block sql.NullInt64
	if err := s.db.Get(&block, `SELECT MAX(block_number) FROM observations WHERE pool_id = ?`, poolID); err != nil {
		return 0, false, fmt.Errorf("failed to query latest block: %w", err)
	}
	return block.Int64, block.Valid, nil
}

type scoreRow struct {
	ID          string `db:"id"`
	PoolID      string `db:"pool_id"`
	BlockNumber int64  `db:"block_number"`
	Aggregate   int64  `db:"aggregate"`
	Result      string `db:"result"`
	CreatedAt   int64  `db:"created_at"`
}

// SaveScore stores an analyzer result.
func (s *Storage) SaveScore(rec *models.ScoreRecord) error {
	return insertScore(s.db, rec)
}

func insertScore(ex sqlx.Execer, rec *models.ScoreRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	var aggregate int64
	if rec.Result.Volatility.Aggregate != nil {
		aggregate = rec.Result.Volatility.Aggregate.Int64()
	}

	_, err = ex.Exec(`
		INSERT INTO scores (id, pool_id, block_number, aggregate, result, created_at)
		VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.PoolID, rec.BlockNumber, aggregate, string(resultJSON), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// LatestScore returns the newest score of a pool, or nil if none exists.
func (s *Storage) LatestScore(poolID string) (*models.ScoreRecord, error) {
	var row scoreRow
	err := s.db.Get(&row, `
		SELECT id, pool_id, block_number, aggregate, result, created_at
		FROM scores WHERE pool_id = ? ORDER BY block_number DESC, created_at DESC LIMIT 1`, poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load score: %w", err)
	}

	rec := &models.ScoreRecord{
		ID:          row.ID,
		PoolID:      row.PoolID,
		BlockNumber: row.BlockNumber,
		CreatedAt:   time.Unix(0, row.CreatedAt),
	}
	if err := json.Unmarshal([]byte(row.Result), &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return rec, nil
}

type alertRow struct {
	ID            string `db:"id"`
	PoolID        string `db:"pool_id"`
	BlockNumber   int64  `db:"block_number"`
	Aggregate     int64  `db:"aggregate"`
	Previous      int64  `db:"previous"`
	Transition    int64  `db:"transition"`
	Concentration int64  `db:"concentration"`
	DetectedAt    int64  `db:"detected_at"`
	Notified      int    `db:"notified"`
}

func int64Of(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}

func (s *Storage) AddAlert(alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO alerts
			(id, pool_id, block_number, aggregate, previous, transition,
			 concentration, detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.PoolID, alert.BlockNumber,
		int64Of(alert.Aggregate), int64Of(alert.Previous), int64Of(alert.Transition),
		int64Of(alert.Concentration), alert.DetectedAt.UnixNano(), boolToInt(alert.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *Storage) GetTopAlerts(k int) ([]models.Alert, error) {
	var rows []alertRow
	err := s.db.Select(&rows, `
		SELECT id, pool_id, block_number, aggregate, previous, transition,
		       concentration, detected_at, notified
		FROM alerts ORDER BY aggregate DESC, detected_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	alerts := make([]models.Alert, 0, len(rows))
	for _, r := range rows {
		alerts = append(alerts, models.Alert{
			ID:            r.ID,
			PoolID:        r.PoolID,
			BlockNumber:   r.BlockNumber,
			Aggregate:     big.NewInt(r.Aggregate),
			Previous:      big.NewInt(r.Previous),
			Transition:    big.NewInt(r.Transition),
			Concentration: big.NewInt(r.Concentration),
			DetectedAt:    time.Unix(0, r.DetectedAt),
			Notified:      r.Notified != 0,
		})
	}
	return alerts, nil
}

// RotateAlerts keeps at most maxObservations newest alerts per pool.
func (s *Storage) RotateAlerts() error {
	_, err := s.db.Exec(`
		DELETE FROM alerts WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY pool_id ORDER BY block_number DESC, detected_at DESC
				) AS rn FROM alerts
			) WHERE rn > ?
		)`, s.maxObservations)
	if err != nil {
		return fmt.Errorf("failed to rotate alerts: %w", err)
	}
	return nil
}

// RotateScores keeps at most maxObservations newest scores per pool.
func (s *Storage) RotateScores() error {
	_, err := s.db.Exec(`
		DELETE FROM scores WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY pool_id ORDER BY block_number DESC, created_at DESC
				) AS rn FROM scores
			) WHERE rn > ?
		)`, s.maxObservations)
	if err != nil {
		return fmt.Errorf("failed to rotate scores: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
