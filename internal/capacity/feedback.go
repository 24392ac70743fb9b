package capacity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/session"
)

// LoadingMessage is published while a snapshot fetch is in flight. An
// absent snapshot is never treated as zero workload.
const LoadingMessage = "loading"

// FeedbackInput is one keystroke's worth of state from an assignment form.
type FeedbackInput struct {
	UserID              int64
	CurrentPercentage   decimal.Decimal
	RequestedPercentage decimal.Decimal
	Update              bool
}

// FeedbackLoop debounces interactive percentage input and re-validates it
// against a fresh snapshot. Display is last-write-wins: an in-flight
// validation superseded by newer input is discarded. Nothing is ever
// submitted from here.
type FeedbackLoop struct {
	provider  SnapshotSource
	validator *Validator
	window    time.Duration
	publish   func(ValidationResult)
	logger    *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
}

func NewFeedbackLoop(provider SnapshotSource, validator *Validator, window time.Duration, publish func(ValidationResult), logger *slog.Logger) *FeedbackLoop {
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	return &FeedbackLoop{
		provider:  provider,
		validator: validator,
		window:    window,
		publish:   publish,
		logger:    logger,
	}
}

// Input schedules a (re)validation after the debounce window, superseding
// any pending one.
func (f *FeedbackLoop) Input(ctx context.Context, sess *session.Session, in FeedbackInput) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	f.gen++
	gen := f.gen

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.window, func() {
		f.run(ctx, sess, gen, in)
	})
}

// Close stops the loop. Pending timers are cancelled and late results
// from superseded validations are dropped.
func (f *FeedbackLoop) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
	}
}

func (f *FeedbackLoop) run(ctx context.Context, sess *session.Session, gen uint64, in FeedbackInput) {
	f.emit(gen, ValidationResult{
		IsValid:           true,
		Severity:          SeverityWarning,
		RequestedWorkload: in.RequestedPercentage,
		Message:           LoadingMessage,
	})

	snapshot, err := f.provider.GetUserCapacity(ctx, sess, in.UserID)
	if err != nil {
		f.emit(gen, f.resultFromError(err, in))
		return
	}

	var result *ValidationResult
	if in.Update {
		result, err = f.validator.ValidateUpdate(snapshot, in.CurrentPercentage, in.RequestedPercentage)
	} else {
		result, err = f.validator.ValidateAddition(snapshot, in.RequestedPercentage)
	}
	if err != nil {
		f.emit(gen, f.resultFromError(err, in))
		return
	}

	f.emit(gen, *result)
}

// emit publishes unless the result belongs to a superseded input.
func (f *FeedbackLoop) emit(gen uint64, result ValidationResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || gen != f.gen {
		return
	}
	f.publish(result)
}

// resultFromError maps failures onto display results. An unreachable
// backend means capacity is unknown, so validation degrades to a
// non-blocking warning rather than a hard error.
func (f *FeedbackLoop) resultFromError(err error, in FeedbackInput) ValidationResult {
	result := ValidationResult{
		RequestedWorkload: in.RequestedPercentage,
		Message:           err.Error(),
	}

	if internal.IsCode(err, internal.ErrCodeRemoteUnavailable) {
		result.IsValid = true
		result.Severity = SeverityWarning
		return result
	}

	f.logger.Debug("feedback validation failed", "error", err, "user_id", in.UserID)
	result.IsValid = false
	result.Severity = SeverityError
	return result
}
