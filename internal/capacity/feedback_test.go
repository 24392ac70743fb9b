package capacity_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/session"
)

// resultSink collects published validation results.
type resultSink struct {
	mu      sync.Mutex
	results []capacity.ValidationResult
}

func (s *resultSink) publish(result capacity.ValidationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *resultSink) all() []capacity.ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capacity.ValidationResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *resultSink) last() (capacity.ValidationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return capacity.ValidationResult{}, false
	}
	return s.results[len(s.results)-1], true
}

var _ = Describe("FeedbackLoop", func() {
	var (
		source    *mockSnapshotSource
		validator *capacity.Validator
		sink      *resultSink
		loop      *capacity.FeedbackLoop
		sess      *session.Session
		ctx       context.Context
	)

	BeforeEach(func() {
		source = newMockSnapshotSource()
		validator = capacity.NewValidator(capacity.DefaultThresholds())
		sink = &resultSink{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		loop = capacity.NewFeedbackLoop(source, validator, 20*time.Millisecond, sink.publish, logger)
		sess = &session.Session{Token: "test-token", UserID: 1}
		ctx = context.Background()
	})

	AfterEach(func() {
		loop.Close()
	})

	Describe("Input", func() {
		Context("when input settles", func() {
			It("should publish a loading result before the graded one", func() {
				// Given
				source.set(42, 65)

				// When
				loop.Input(ctx, sess, capacity.FeedbackInput{
					UserID:              42,
					RequestedPercentage: decimal.NewFromInt(20),
				})

				// Then: loading first, then the warning for 65 + 20
				Eventually(func() int {
					return len(sink.all())
				}, time.Second, 5*time.Millisecond).Should(Equal(2))

				results := sink.all()
				Expect(results[0].Message).To(Equal(capacity.LoadingMessage))
				Expect(results[1].Severity).To(Equal(capacity.SeverityWarning))
				Expect(results[1].TotalAfterAssignment).To(testDecimal("85"))
			})
		})

		Context("when input arrives faster than the debounce window", func() {
			It("should only validate the final value", func() {
				// Given
				source.set(42, 50)

				// When: three keystrokes in quick succession
				for _, requested := range []int64{1, 15, 30} {
					loop.Input(ctx, sess, capacity.FeedbackInput{
						UserID:              42,
						RequestedPercentage: decimal.NewFromInt(requested),
					})
				}

				// Then: exactly one fetch, and the final result is for 30
				Eventually(func() bool {
					last, ok := sink.last()
					return ok && last.Message != capacity.LoadingMessage
				}, time.Second, 5*time.Millisecond).Should(BeTrue())

				Expect(source.fetches()).To(Equal(1))
				last, _ := sink.last()
				Expect(last.RequestedWorkload).To(testDecimal("30"))
				Expect(last.TotalAfterAssignment).To(testDecimal("80"))
			})
		})

		Context("when newer input supersedes an in-flight validation", func() {
			It("should not publish results for the stale input", func() {
				// Given
				source.set(42, 50)
				loop.Input(ctx, sess, capacity.FeedbackInput{
					UserID:              42,
					RequestedPercentage: decimal.NewFromInt(10),
				})

				// When: new input lands right after the first fires
				time.Sleep(25 * time.Millisecond)
				loop.Input(ctx, sess, capacity.FeedbackInput{
					UserID:              42,
					RequestedPercentage: decimal.NewFromInt(40),
				})

				// Then: the last published result always reflects 40
				Eventually(func() bool {
					last, ok := sink.last()
					return ok && last.Message != capacity.LoadingMessage && last.RequestedWorkload.Equal(decimal.NewFromInt(40))
				}, time.Second, 5*time.Millisecond).Should(BeTrue())

				last, _ := sink.last()
				Expect(last.TotalAfterAssignment).To(testDecimal("90"))
			})
		})

		Context("when the backend is unreachable", func() {
			It("should degrade to a non-blocking warning", func() {
				// Given
				source.fetchError = internal.ErrRemoteUnavailable

				// When
				loop.Input(ctx, sess, capacity.FeedbackInput{
					UserID:              42,
					RequestedPercentage: decimal.NewFromInt(20),
				})

				// Then
				Eventually(func() bool {
					last, ok := sink.last()
					return ok && last.Message != capacity.LoadingMessage
				}, time.Second, 5*time.Millisecond).Should(BeTrue())

				last, _ := sink.last()
				Expect(last.IsValid).To(BeTrue())
				Expect(last.Severity).To(Equal(capacity.SeverityWarning))
			})
		})

		Context("when the requested percentage is malformed", func() {
			It("should publish an error result", func() {
				// Given
				source.set(42, 50)

				// When
				loop.Input(ctx, sess, capacity.FeedbackInput{
					UserID:              42,
					RequestedPercentage: decimal.NewFromInt(-5),
				})

				// Then
				Eventually(func() bool {
					last, ok := sink.last()
					return ok && last.Message != capacity.LoadingMessage
				}, time.Second, 5*time.Millisecond).Should(BeTrue())

				last, _ := sink.last()
				Expect(last.IsValid).To(BeFalse())
				Expect(last.Severity).To(Equal(capacity.SeverityError))
			})
		})

		Context("when editing an existing allocation", func() {
			It("should validate against the adjusted baseline", func() {
				// Given: 70% total, 30% from the edited allocation
				source.set(42, 70)

				// When: lowering to 10%
				loop.Input(ctx, sess, capacity.FeedbackInput{
					UserID:              42,
					CurrentPercentage:   decimal.NewFromInt(30),
					RequestedPercentage: decimal.NewFromInt(10),
					Update:              true,
				})

				// Then
				Eventually(func() bool {
					last, ok := sink.last()
					return ok && last.Message != capacity.LoadingMessage
				}, time.Second, 5*time.Millisecond).Should(BeTrue())

				last, _ := sink.last()
				Expect(last.Severity).To(Equal(capacity.SeveritySuccess))
				Expect(last.TotalAfterAssignment).To(testDecimal("50"))
			})
		})
	})

	Describe("Close", func() {
		It("should drop pending validations", func() {
			// Given
			source.set(42, 50)
			loop.Input(ctx, sess, capacity.FeedbackInput{
				UserID:              42,
				RequestedPercentage: decimal.NewFromInt(20),
			})

			// When: closed before the debounce window elapses
			loop.Close()

			// Then: nothing is ever published
			Consistently(func() int {
				return len(sink.all())
			}, 100*time.Millisecond, 10*time.Millisecond).Should(BeZero())
		})
	})
})
