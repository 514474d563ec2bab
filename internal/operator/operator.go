// Package operator drives one analyzer session per pool: it fetches
// distributions, scores them, persists the results and raises alerts.
package operator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/liqoracle/internal/analyzer"
	"github.com/rewired-gh/liqoracle/internal/indexer"
	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/storage"
)

// Fetcher returns the current distribution of a pool.
type Fetcher interface {
	FetchDistribution(ctx context.Context, poolID string) (*indexer.Snapshot, error)
}

// Notifier delivers alerts and cycle health messages.
type Notifier interface {
	SendAlerts(alerts []models.Alert) error
	SendError(cycleErr error) error
	SendRecovery(failureCount int) error
}

// Recorder receives operational measurements.
type Recorder interface {
	ObserveCycle(d time.Duration, err error)
	FetchError(poolID string)
	SessionReset(poolID string)
	AlertsSent(n int)
	ObserveResult(poolID string, r models.Result)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCycle(time.Duration, error) {}
func (nopRecorder) FetchError(string) {}
func (nopRecorder) SessionReset(string) {}
func (nopRecorder) AlertsSent(int) {}
func (nopRecorder) ObserveResult(string, models.Result) {}

type Config struct {
	Pools              []string
	Analyzer           analyzer.Config
	AggregateThreshold int64 // scaled
	TopK               int
	Cooldown           time.Duration
	AlertsEnabled      bool
	// Warmup is how many stored observations are replayed into a new
	// session. Values below the analyzer window size are raised to it.
	Warmup int
}

type notifiedRecord struct {
	Aggregate *big.Int
	SentAt    time.Time
}

type Operator struct {
	store    *storage.Storage
	fetcher  Fetcher
	notifier Notifier
	metrics  Recorder
	config   Config
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*analyzer.Analyzer
	notified map[string]notifiedRecord
	failures int
}

// New creates an operator. notifier and rec may be nil.
func New(s *storage.Storage, f Fetcher, notifier Notifier, rec Recorder, cfg Config) (*Operator, error) {
	if err := cfg.Analyzer.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer config: %w", err)
	}
	if cfg.Warmup < cfg.Analyzer.MaxWindowSize {
		cfg.Warmup = cfg.Analyzer.MaxWindowSize
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Operator{
		store:    s,
		fetcher:  f,
		notifier: notifier,
		metrics:  rec,
		config:   cfg,
		now:      time.Now,
		sessions: make(map[string]*analyzer.Analyzer),
		notified: make(map[string]notifiedRecord),
	}, nil
}

// Run polls every interval until ctx is cancelled.
func (o *Operator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug("Running initial scoring cycle")
	_, err := o.RunCycle(ctx)
	o.handleCycleResult(err)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Operator stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled scoring cycle")
			_, err := o.RunCycle(ctx)
			o.handleCycleResult(err)
			o.rotate()
		}
	}
}

// rotate trims stored scores and alerts to the per-pool retention cap.
func (o *Operator) rotate() {
	if err := o.store.RotateScores(); err != nil {
		logger.Warn("Failed to rotate scores: %v", err)
	}
	if err := o.store.RotateAlerts(); err != nil {
		logger.Warn("Failed to rotate alerts: %v", err)
	}
}

// handleCycleResult notifies on the first failure of a run of failures and
// again on recovery.
func (o *Operator) handleCycleResult(err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		o.failures++
		logger.Error("Scoring cycle failed: %v", err)
		if o.failures == 1 && o.notifier != nil {
			if sendErr := o.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification: %v", sendErr)
			}
		}
		return
	}

	if o.failures > 0 && o.notifier != nil {
		if sendErr := o.notifier.SendRecovery(o.failures); sendErr != nil {
			logger.Warn("Failed to send recovery notification: %v", sendErr)
		}
	}
	o.failures = 0
}

// RunCycle scores every configured pool once and dispatches the resulting
// alerts. It fails only when no pool could be scored.
func (o *Operator) RunCycle(ctx context.Context) ([]models.Alert, error) {
	start := time.Now()
	logger.Info("Starting scoring cycle for %d pools", len(o.config.Pools))

	var candidates []models.Alert
	var failed int
	var lastErr error
	for _, poolID := range o.config.Pools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		alert, err := o.processPool(ctx, poolID)
		if err != nil {
			failed++
			lastErr = err
			logger.WithPool(poolID).WithError(err).Warn("Failed to score pool")
			continue
		}
		if alert != nil {
			candidates = append(candidates, *alert)
		}
	}

	var err error
	if failed > 0 && failed == len(o.config.Pools) {
		err = fmt.Errorf("all %d pools failed: %w", failed, lastErr)
	}

	sent := o.dispatch(candidates)
	o.metrics.ObserveCycle(time.Since(start), err)
	logger.Info("Scoring cycle completed in %v: %d candidates, %d dispatched, %d failed",
		time.Since(start), len(candidates), len(sent), failed)
	return sent, err
}

func (o *Operator) processPool(ctx context.Context, poolID string) (*models.Alert, error) {
	snap, err := o.fetcher.FetchDistribution(ctx, poolID)
	if err != nil {
		o.metrics.FetchError(poolID)
		return nil, err
	}
	obs := snap.Observation
	obs.PoolID = poolID

	latest, ok, err := o.store.LatestBlock(poolID)
	if err != nil {
		return nil, err
	}
	if ok && obs.BlockNumber <= latest {
		logger.WithPool(poolID).Debugf("Block %d already scored (latest %d)", obs.BlockNumber, latest)
		return nil, nil
	}

	pool := snap.Pool
	pool.ID = poolID
	if err := o.store.UpsertPool(&pool); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.session(poolID)
	if err != nil {
		return nil, err
	}
	a, res, err := o.feed(poolID, a, obs)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", obs.BlockNumber, err)
	}
	o.sessions[poolID] = a

	prev, err := o.store.LatestScore(poolID)
	if err == nil {
		err = o.store.AddScoredObservation(&obs, &models.ScoreRecord{Result: res, CreatedAt: o.now()})
	}
	if err != nil {
		// the session has moved past what storage holds; rebuild it next time
		delete(o.sessions, poolID)
		return nil, err
	}

	o.metrics.ObserveResult(poolID, res)
	logger.WithPool(poolID).Debugf("Block %d scored: transition=%s aggregate=%s concentration=%s",
		obs.BlockNumber, res.Transition, res.Volatility.Aggregate, res.Structure.Concentration)

	return o.evaluate(obs, res, prev), nil
}

// session returns the pool's analyzer, rebuilding it from stored history
// when the operator has not seen the pool since it started.
func (o *Operator) session(poolID string) (*analyzer.Analyzer, error) {
	if a, ok := o.sessions[poolID]; ok {
		return a, nil
	}

	a, err := analyzer.New(o.config.Analyzer)
	if err != nil {
		return nil, err
	}
	history, err := o.store.RecentObservations(poolID, o.config.Warmup)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for _, h := range history {
		next, _, err := o.feed(poolID, a, h)
		if err != nil {
			logger.WithPool(poolID).WithError(err).Warnf("Skipping stored block %d during warm-up", h.BlockNumber)
			continue
		}
		a = next
	}
	if len(history) > 0 {
		logger.WithPool(poolID).Infof("Session rebuilt from %d stored observations", len(history))
	}

	o.sessions[poolID] = a
	return a, nil
}

// feed scores one observation and returns the session to keep. A
// distribution whose tick range differs from the session's is scored by a
// new session, which replaces a only if that succeeds.
func (o *Operator) feed(poolID string, a *analyzer.Analyzer, obs models.Observation) (*analyzer.Analyzer, models.Result, error) {
	if err := obs.Distribution.Validate(); err != nil {
		return a, models.Result{}, err
	}

	res, err := a.ProcessDistribution(obs.Distribution, obs.CurrentTick)
	if !errors.Is(err, models.ErrInputShape) {
		return a, res, err
	}

	fresh, err := analyzer.New(a.Config())
	if err != nil {
		return a, models.Result{}, err
	}
	if res, err = fresh.ProcessDistribution(obs.Distribution, obs.CurrentTick); err != nil {
		return a, models.Result{}, err
	}
	logger.WithPool(poolID).Infof("Tick range changed at block %d, started a new session", obs.BlockNumber)
	o.metrics.SessionReset(poolID)
	return fresh, res, nil
}

func (o *Operator) evaluate(obs models.Observation, res models.Result, prev *models.ScoreRecord) *models.Alert {
	agg := res.Volatility.Aggregate
	if !o.config.AlertsEnabled || agg == nil || agg.Cmp(big.NewInt(o.config.AggregateThreshold)) < 0 {
		return nil
	}

	previous := new(big.Int)
	if prev != nil && prev.Result.Volatility.Aggregate != nil {
		previous.Set(prev.Result.Volatility.Aggregate)
	}
	return &models.Alert{
		PoolID:        obs.PoolID,
		BlockNumber:   obs.BlockNumber,
		Aggregate:     new(big.Int).Set(agg),
		Previous:      previous,
		Transition:    res.Transition,
		Concentration: res.Structure.Concentration,
		DetectedAt:    o.now(),
	}
}

// dispatch ranks candidates, drops pools notified within the cooldown
// unless their score escalated, notifies and stores what remains.
func (o *Operator) dispatch(candidates []models.Alert) []models.Alert {
	alerts := o.filterRecentlySent(o.rank(candidates))
	if len(alerts) == 0 {
		return nil
	}

	if o.notifier != nil {
		if err := o.notifier.SendAlerts(alerts); err != nil {
			logger.Error("Failed to send alert notification: %v", err)
		} else {
			o.recordNotified(alerts)
			o.metrics.AlertsSent(len(alerts))
			logger.Info("Sent notification for %d pools", len(alerts))
		}
	}

	for i := range alerts {
		if err := o.store.AddAlert(&alerts[i]); err != nil {
			logger.WithPool(alerts[i].PoolID).WithError(err).Warn("Failed to store alert")
		}
	}
	return alerts
}

// rank orders alerts by aggregate, highest first, and keeps the top K.
func (o *Operator) rank(alerts []models.Alert) []models.Alert {
	out := append([]models.Alert(nil), alerts...)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Aggregate.Cmp(out[j].Aggregate); c != 0 {
			return c > 0
		}
		return out[i].PoolID < out[j].PoolID
	})
	if o.config.TopK > 0 && len(out) > o.config.TopK {
		out = out[:o.config.TopK]
	}
	return out
}

func (o *Operator) filterRecentlySent(alerts []models.Alert) []models.Alert {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	var result []models.Alert
	for _, a := range alerts {
		rec, exists := o.notified[a.PoolID]
		if exists && now.Sub(rec.SentAt) < o.config.Cooldown && a.Aggregate.Cmp(rec.Aggregate) <= 0 {
			continue
		}
		result = append(result, a)
	}
	return result
}

func (o *Operator) recordNotified(alerts []models.Alert) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	for i := range alerts {
		alerts[i].Notified = true
		o.notified[alerts[i].PoolID] = notifiedRecord{
			Aggregate: new(big.Int).Set(alerts[i].Aggregate),
			SentAt:    now,
		}
	}
}

// Window returns a copy of the pool's volatility window, oldest first.
func (o *Operator) Window(poolID string) ([]models.Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.sessions[poolID]
	if !ok {
		return nil, false
	}
	return a.VolatilityWindow(), true
}

// Pools returns the configured pool IDs.
func (o *Operator) Pools() []string {
	return append([]string(nil), o.config.Pools...)
}
