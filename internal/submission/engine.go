package submission

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/einvoice-networks/einvoice-gateway/internal/metrics"
)

const (
	defaultBaseDelay     = time.Minute
	defaultBackoffFactor = 2.0
	defaultMaxAttempts   = 5
	defaultMaxDelay      = time.Hour
	defaultClaimLimit    = 50
)

// EngineConfig configures the retry engine.
type EngineConfig struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64

	// MaxAttempts bounds the retries after the initial transmission.
	MaxAttempts int

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// SweepInterval is how often the engine looks for due records.
	SweepInterval time.Duration

	// ClaimLimit bounds how many records one sweep claims.
	ClaimLimit int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = defaultBackoffFactor
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.ClaimLimit <= 0 {
		c.ClaimLimit = defaultClaimLimit
	}
	return c
}

// Engine transmits certified invoices to the regulator and retries transient
// failures until acknowledgment, permanent rejection, or budget exhaustion.
type Engine struct {
	store  Store
	client RegulatorClient
	cfg    EngineConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a retry engine over the given store and client.
func NewEngine(store Store, client RegulatorClient, cfg EngineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Submit transmits the invoice immediately and records the result. On a
// retryable failure the record is scheduled for its first retry.
func (e *Engine) Submit(ctx context.Context, irn string, payload json.RawMessage) (*Record, Outcome, error) {
	if irn == "" {
		return nil, nil, NewValidationError("IRN is required")
	}
	if len(payload) == 0 {
		return nil, nil, NewValidationError("payload is required")
	}

	now := e.now().UTC()
	rec := &Record{
		ID:          uuid.New().String(),
		IRN:         irn,
		Payload:     payload,
		Status:      StatusInProgress,
		MaxAttempts: e.cfg.MaxAttempts,
		Severity:    SeverityInfo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, nil, err
	}

	outcome := e.attempt(ctx, rec)
	if err := e.store.Update(ctx, rec); err != nil {
		return nil, nil, err
	}
	e.updatePendingGauge(ctx)
	return rec, outcome, nil
}

// Run sweeps for due records until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "retry engine started",
		"sweep_interval", e.cfg.SweepInterval, "max_attempts", e.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "retry engine stopped")
			return
		case <-ticker.C:
			if _, err := e.SweepOnce(ctx); err != nil {
				e.logger.ErrorContext(ctx, "retry sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce claims all due records and attempts each one, returning the
// number of records processed.
func (e *Engine) SweepOnce(ctx context.Context) (int, error) {
	claimed, err := e.store.ClaimDue(ctx, e.now().UTC(), e.cfg.ClaimLimit)
	if err != nil {
		return 0, err
	}

	for _, rec := range claimed {
		e.attempt(ctx, rec)
		if err := e.store.Update(ctx, rec); err != nil {
			e.logger.ErrorContext(ctx, "failed to persist retry result",
				"record_id", rec.ID, "irn", rec.IRN, "error", err)
		}
	}
	if len(claimed) > 0 {
		e.updatePendingGauge(ctx)
	}
	return len(claimed), nil
}

// ForceRetry schedules an immediate attempt regardless of the backoff
// schedule. A PENDING record keeps its consumed budget and only has its next
// attempt moved up; FAILED and EXHAUSTED records re-enter the schedule with
// a fresh budget.
func (e *Engine) ForceRetry(ctx context.Context, id string) (*Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case StatusPending:
	case StatusFailed, StatusExhausted:
		rec.Attempts = 0
		rec.Severity = SeverityInfo
	default:
		return nil, NewStateError("only PENDING, FAILED or EXHAUSTED submissions can be force retried")
	}

	now := e.now().UTC()
	rec.Status = StatusPending
	rec.NextAttemptAt = now
	rec.UpdatedAt = now
	if err := e.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "submission force retried", "record_id", rec.ID, "irn", rec.IRN)
	e.updatePendingGauge(ctx)
	return rec, nil
}

// attempt performs one transmission and applies the outcome to the record.
func (e *Engine) attempt(ctx context.Context, rec *Record) Outcome {
	outcome := e.client.Submit(ctx, rec.IRN, rec.Payload)
	now := e.now().UTC()

	rec.Attempts++
	rec.UpdatedAt = now
	metrics.SubmissionOutcomesTotal.WithLabelValues(outcomeLabel(outcome)).Inc()

	switch o := outcome.(type) {
	case Accepted:
		rec.Status = StatusSucceeded
		rec.ReceiptID = o.ReceiptID
		rec.LastError = ""
		rec.Severity = SeverityInfo
		e.logger.InfoContext(ctx, "submission acknowledged",
			"record_id", rec.ID, "irn", rec.IRN, "receipt_id", o.ReceiptID, "attempts", rec.Attempts)

	case PermanentFailure:
		rec.Status = StatusFailed
		rec.LastError = o.Reason
		rec.Severity = SeverityCritical
		e.logger.ErrorContext(ctx, "submission permanently rejected",
			"record_id", rec.ID, "irn", rec.IRN, "reason", o.Reason, "status_code", o.StatusCode)

	case RetryableFailure:
		rec.LastError = o.Reason
		rec.Severity = severityForAttempts(rec.Attempts, rec.MaxAttempts)
		// The initial transmission does not consume the retry budget:
		// MaxAttempts retries follow it before the record exhausts.
		if rec.Attempts > rec.MaxAttempts {
			rec.Status = StatusExhausted
			metrics.SubmissionsExhaustedTotal.Inc()
			e.logger.ErrorContext(ctx, "submission retry budget exhausted",
				"record_id", rec.ID, "irn", rec.IRN, "attempts", rec.Attempts, "reason", o.Reason)
		} else {
			delay := e.backoffDelay(rec.Attempts)
			rec.Status = StatusPending
			rec.NextAttemptAt = now.Add(delay)
			logFn := e.logger.WarnContext
			if rec.Severity == SeverityInfo {
				logFn = e.logger.InfoContext
			}
			logFn(ctx, "submission attempt failed, scheduling retry",
				"record_id", rec.ID, "irn", rec.IRN, "attempts", rec.Attempts,
				"next_attempt_in", delay, "severity", rec.Severity, "reason", o.Reason)
		}
	}
	return outcome
}

// backoffDelay computes the delay before the next attempt after the given
// number of completed attempts, capped at MaxDelay.
func (e *Engine) backoffDelay(attempts int) time.Duration {
	delay := time.Duration(float64(e.cfg.BaseDelay) * math.Pow(e.cfg.BackoffFactor, float64(attempts-1)))
	if delay > e.cfg.MaxDelay || delay <= 0 {
		delay = e.cfg.MaxDelay
	}
	return delay
}

func (e *Engine) updatePendingGauge(ctx context.Context) {
	count, err := e.store.CountPending(ctx)
	if err != nil {
		return
	}
	metrics.PendingSubmissions.Set(float64(count))
}
