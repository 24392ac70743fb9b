package capacity_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
	"github.com/teamtrackhq/workload-management/internal/session"
)

// Mock snapshot source for testing
type mockSnapshotSource struct {
	mu         sync.Mutex
	snapshots  map[int64]*capacity.Snapshot
	fetchError error
	fetchCount int
}

func newMockSnapshotSource() *mockSnapshotSource {
	return &mockSnapshotSource{snapshots: make(map[int64]*capacity.Snapshot)}
}

func (m *mockSnapshotSource) GetUserCapacity(ctx context.Context, sess *session.Session, userID int64) (*capacity.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCount++
	if m.fetchError != nil {
		return nil, m.fetchError
	}
	snapshot, exists := m.snapshots[userID]
	if !exists {
		return nil, internal.ErrUserNotFound
	}
	return snapshot, nil
}

func (m *mockSnapshotSource) fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCount
}

func (m *mockSnapshotSource) set(userID int64, total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := user.User{ID: userID, Name: "Test User", Email: "test@teamtrack.dev", Role: user.RoleDeveloper}
	m.snapshots[userID] = capacity.NewSnapshot(u, decimal.NewFromFloat(total), 1)
}

var _ = Describe("Provider", func() {
	var (
		source   *mockSnapshotSource
		provider *capacity.Provider
		sess     *session.Session
		ctx      context.Context
		logger   *slog.Logger
	)

	BeforeEach(func() {
		source = newMockSnapshotSource()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		provider = capacity.NewProvider(source, 30*time.Second, 16, logger)
		sess = &session.Session{Token: "test-token", UserID: 1}
		ctx = context.Background()
	})

	Describe("GetUserCapacity", func() {
		Context("when the snapshot is not cached", func() {
			It("should fetch from the backend", func() {
				// Given
				source.set(42, 65)

				// When
				snapshot, err := provider.GetUserCapacity(ctx, sess, 42)

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(snapshot.UserID).To(Equal(int64(42)))
				Expect(snapshot.TotalWorkload).To(testDecimal("65"))
				Expect(source.fetches()).To(Equal(1))
			})
		})

		Context("when a fresh snapshot is cached", func() {
			It("should not contact the backend again", func() {
				// Given
				source.set(42, 65)
				_, err := provider.GetUserCapacity(ctx, sess, 42)
				Expect(err).ToNot(HaveOccurred())

				// When
				_, err = provider.GetUserCapacity(ctx, sess, 42)

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(source.fetches()).To(Equal(1))
			})
		})

		Context("when the freshness window has passed", func() {
			It("should refetch", func() {
				// Given a very short TTL
				provider = capacity.NewProvider(source, 20*time.Millisecond, 16, logger)
				source.set(42, 65)
				_, err := provider.GetUserCapacity(ctx, sess, 42)
				Expect(err).ToNot(HaveOccurred())

				// When the entry expires
				Eventually(func() int {
					_, err := provider.GetUserCapacity(ctx, sess, 42)
					Expect(err).ToNot(HaveOccurred())
					return source.fetches()
				}, time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 2))
			})
		})

		Context("when the backend is unreachable", func() {
			It("should surface RemoteUnavailable, never a zero snapshot", func() {
				// Given
				source.fetchError = errors.New("connection refused")

				// When
				snapshot, err := provider.GetUserCapacity(ctx, sess, 42)

				// Then
				Expect(snapshot).To(BeNil())
				Expect(internal.IsCode(err, internal.ErrCodeRemoteUnavailable)).To(BeTrue())
			})

			It("should not cache the failure", func() {
				// Given
				source.fetchError = errors.New("connection refused")
				_, err := provider.GetUserCapacity(ctx, sess, 42)
				Expect(err).To(HaveOccurred())

				// When the backend recovers
				source.mu.Lock()
				source.fetchError = nil
				source.mu.Unlock()
				source.set(42, 50)
				snapshot, err := provider.GetUserCapacity(ctx, sess, 42)

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(snapshot.TotalWorkload).To(testDecimal("50"))
			})
		})

		Context("when the backend reports a taxonomy error", func() {
			It("should pass it through unchanged", func() {
				// When: user 99 does not exist
				snapshot, err := provider.GetUserCapacity(ctx, sess, 99)

				// Then
				Expect(snapshot).To(BeNil())
				Expect(internal.IsCode(err, internal.ErrCodeUserNotFound)).To(BeTrue())
			})
		})
	})

	Describe("Invalidate", func() {
		It("should force the next read back to the backend", func() {
			// Given
			source.set(42, 65)
			_, err := provider.GetUserCapacity(ctx, sess, 42)
			Expect(err).ToNot(HaveOccurred())

			// When
			provider.Invalidate(42)
			source.set(42, 85)
			snapshot, err := provider.GetUserCapacity(ctx, sess, 42)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(snapshot.TotalWorkload).To(testDecimal("85"))
			Expect(source.fetches()).To(Equal(2))
		})

		It("should leave other users' entries alone", func() {
			// Given
			source.set(1, 10)
			source.set(2, 20)
			_, err := provider.GetUserCapacity(ctx, sess, 1)
			Expect(err).ToNot(HaveOccurred())
			_, err = provider.GetUserCapacity(ctx, sess, 2)
			Expect(err).ToNot(HaveOccurred())

			// When
			provider.Invalidate(1)
			_, err = provider.GetUserCapacity(ctx, sess, 2)

			// Then: user 2 still served from cache
			Expect(err).ToNot(HaveOccurred())
			Expect(source.fetches()).To(Equal(2))
		})
	})

	Describe("InvalidateAll", func() {
		It("should drop every cached snapshot", func() {
			// Given
			source.set(1, 10)
			source.set(2, 20)
			_, err := provider.GetUserCapacity(ctx, sess, 1)
			Expect(err).ToNot(HaveOccurred())
			_, err = provider.GetUserCapacity(ctx, sess, 2)
			Expect(err).ToNot(HaveOccurred())

			// When
			provider.InvalidateAll()
			_, err = provider.GetUserCapacity(ctx, sess, 1)
			Expect(err).ToNot(HaveOccurred())
			_, err = provider.GetUserCapacity(ctx, sess, 2)
			Expect(err).ToNot(HaveOccurred())

			// Then
			Expect(source.fetches()).To(Equal(4))
		})
	})
})
