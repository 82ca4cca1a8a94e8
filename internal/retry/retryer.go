// Package retry runs operations repeatedly until they succeed, fail with a
// non-retryable error or a deadline expires.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/logfields"
)

const DefTimeout = time.Minute

const loggerName = "retryer"

// Retryer executes a function repeatedly until it was successful or a cancel
// condition happened.
type Retryer struct {
	logger       *zap.Logger
	shutdownChan chan struct{}

	// defTimeout is applied when the context passed to Run has no
	// deadline.
	defTimeout                 time.Duration
	backoffInitialInterval     time.Duration
	backoffRandomizationFactor float64
}

// WithTimeout sets the maximum duration Run retries an operation when the
// passed context has no deadline.
func WithTimeout(d time.Duration) func(*Retryer) {
	return func(r *Retryer) {
		r.defTimeout = d
	}
}

func NewRetryer(opts ...func(*Retryer)) *Retryer {
	r := Retryer{
		logger:                     zap.L().Named(loggerName),
		shutdownChan:               make(chan struct{}),
		defTimeout:                 DefTimeout,
		backoffInitialInterval:     time.Second,
		backoffRandomizationFactor: backoff.DefaultRandomizationFactor,
	}

	for _, opt := range opts {
		opt(&r)
	}

	return &r
}

func logFieldActionResult(val string) zap.Field {
	return zap.String("action_result", val)
}

// Run executes fn until it was successful, it returned an error that does not
// wrap amerr.RetryableError, the context was cancelled or Stop() was called.
// If ctx has no deadline, the default timeout of the Retryer is applied.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, r.defTimeout)
		defer cancelFn()
	}

	deadline, _ := ctx.Deadline()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval
	bo.RandomizationFactor = r.backoffRandomizationFactor
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		tryCnt++
		logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt))

		select {
		case <-ctx.Done():
			logger.Info(
				"giving up retrying, context is done",
				logfields.Event("retry_cancelled"),
				logFieldActionResult("cancelled"),
				zap.Duration("age", bo.GetElapsedTime()),
				zap.Error(ctx.Err()),
			)

			return ctx.Err()

		case <-r.shutdownChan:
			logger.Info(
				"retryer terminating, operation not executed",
				logfields.Event("retry_cancelled_retryer_terminated"),
				logFieldActionResult("cancelled"),
			)

			return errors.New("retryer was stopped")

		case <-retryTimer.C:
			err := fn(ctx)
			if err == nil {
				if tryCnt > 1 {
					logger.Info(
						"operation succeeded after retrying",
						logfields.Event("retry_succeeded"),
						logFieldActionResult("success"),
					)
				}

				return nil
			}

			logger = logger.With(zap.Error(err))

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			var retryError *amerr.RetryableError
			if !errors.As(err, &retryError) {
				return err
			}

			retryIn := bo.NextBackOff()
			if until := time.Until(retryError.After); until > retryIn {
				retryIn = until
			}

			if time.Now().Add(retryIn).After(deadline) {
				logger.Warn(
					"operation failed, next possible retry is after the deadline",
					logfields.Event("retry_deadline_exceeded"),
					logFieldActionResult("failure"),
					zap.Time("earliest_allowed_retry", retryError.After),
					zap.Time("deadline", deadline),
				)

				return err
			}

			logger.Info(
				"operation failed, retry scheduled",
				logfields.Event("retry_scheduled"),
				zap.Duration("retry_in", retryIn),
			)

			retryTimer.Reset(retryIn)
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
