package backendstub_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/backendstub"
	projectmodel "github.com/teamtrackhq/workload-management/internal/core/datamodel/project"
	usermodel "github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
	"github.com/teamtrackhq/workload-management/internal/gateway"
	"github.com/teamtrackhq/workload-management/internal/session"
)

// These specs run the real gateway client against the stub over HTTP, so
// the wire contract is exercised from both sides.
var _ = Describe("Server", func() {
	var (
		store  *backendstub.Store
		server *httptest.Server
		client *gateway.Client
		sess   *session.Session
		ctx    context.Context
	)

	BeforeEach(func() {
		store = openTestStore()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		server = httptest.NewServer(backendstub.NewServer(store, logger).Router())
		client = gateway.NewClient(gateway.Config{BaseURL: server.URL}, logger)
		sess = &session.Session{Token: "test-token", UserID: 1}
		ctx = context.Background()

		Expect(store.CreateUser(&usermodel.User{
			Name: "Dewi Lestari", Email: "dewi@teamtrack.dev", Role: usermodel.RoleDeveloper,
		})).To(Succeed())
		Expect(store.CreateUser(&usermodel.User{
			Name: "Budi Santoso", Email: "budi@teamtrack.dev", Role: usermodel.RoleQA,
		})).To(Succeed())
		Expect(store.CreateProject(&projectmodel.Project{
			Name: "Dashboard", Code: "DASH", Status: projectmodel.StatusInProgress,
		})).To(Succeed())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should round-trip a snapshot through the wire contract", func() {
		// Given
		_, err := store.AddMember(1, 1, decimal.RequireFromString("65.5"))
		Expect(err).ToNot(HaveOccurred())

		// When
		snapshot, err := client.GetUserCapacity(ctx, sess, 1)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshot.UserID).To(Equal(int64(1)))
		Expect(snapshot.UserName).To(Equal("Dewi Lestari"))
		Expect(snapshot.Role).To(Equal(usermodel.RoleDeveloper))
		Expect(snapshot.TotalWorkload.Equal(decimal.RequireFromString("65.5"))).To(BeTrue())
		Expect(snapshot.AvailableCapacity.Equal(decimal.RequireFromString("34.5"))).To(BeTrue())
	})

	It("should surface a commit-time rejection verbatim through the client", func() {
		// Given: user 1 is at 90% already
		_, err := store.AddMember(1, 1, decimal.NewFromInt(90))
		Expect(err).ToNot(HaveOccurred())

		// When: a competing client tries to add 30% more elsewhere
		Expect(store.CreateProject(&projectmodel.Project{
			Name: "Mobile App", Code: "MOB",
		})).To(Succeed())
		created, err := client.AddProjectMember(ctx, sess, 2, 1, decimal.NewFromInt(30))

		// Then: the stub's message arrives untouched
		Expect(created).To(BeNil())
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(internal.ErrCodeRemoteRejected))
		Expect(appErr.Message).To(ContainSubstring("120.00%"))
		Expect(appErr.Message).To(ContainSubstring("available 10.00%"))
	})

	It("should mutate and read back through the full member lifecycle", func() {
		// When: add, rebalance, then remove
		created, err := client.AddProjectMember(ctx, sess, 1, 2, decimal.NewFromInt(40))
		Expect(err).ToNot(HaveOccurred())
		Expect(created.IsActive).To(BeTrue())

		_, err = client.UpdateMemberWorkload(ctx, sess, 1, 2, decimal.NewFromInt(55), "sprint rebalance")
		Expect(err).ToNot(HaveOccurred())

		// Then: the history records the change with the session's actor
		changes, err := client.GetWorkloadHistory(ctx, sess, 1, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(changes).To(HaveLen(1))
		Expect(changes[0].OldWorkloadPercentage.Equal(decimal.NewFromInt(40))).To(BeTrue())
		Expect(changes[0].NewWorkloadPercentage.Equal(decimal.NewFromInt(55))).To(BeTrue())
		Expect(changes[0].Reason).To(Equal("sprint rebalance"))

		Expect(client.RemoveProjectMember(ctx, sess, 1, 2)).To(Succeed())
		snapshot, err := client.GetUserCapacity(ctx, sess, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshot.TotalWorkload.Equal(decimal.Zero)).To(BeTrue())
	})

	It("should list the population for analytics", func() {
		// Given
		_, err := store.AddMember(1, 1, decimal.NewFromInt(80))
		Expect(err).ToNot(HaveOccurred())

		// When
		snapshots, err := client.GetWorkloadSnapshots(ctx, sess)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshots).To(HaveLen(2))
	})

	It("should answer the health probe", func() {
		Expect(client.Ping(ctx)).To(Succeed())
	})

	It("should map unknown users onto the taxonomy over the wire", func() {
		// When
		snapshot, err := client.GetUserCapacity(ctx, sess, 99)

		// Then
		Expect(snapshot).To(BeNil())
		Expect(internal.IsCode(err, internal.ErrCodeUserNotFound)).To(BeTrue())
	})

	It("should list project members with their user details", func() {
		// Given
		_, err := store.AddMember(1, 1, decimal.NewFromInt(40))
		Expect(err).ToNot(HaveOccurred())
		_, err = store.AddMember(1, 2, decimal.NewFromInt(25))
		Expect(err).ToNot(HaveOccurred())

		// When
		members, err := client.GetProjectMembers(ctx, sess, 1)

		// Then
		Expect(err).ToNot(HaveOccurred())
		Expect(members).To(HaveLen(2))
		Expect(members[0].UserName).To(Equal("Dewi Lestari"))
		Expect(members[1].WorkloadPercentage.Equal(decimal.NewFromInt(25))).To(BeTrue())
	})
})
