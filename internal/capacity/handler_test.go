package capacity_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/session"
)

var _ = Describe("Handler", func() {
	var (
		source  *mockSnapshotSource
		handler *capacity.Handler
		router  *chi.Mux
		sess    *session.Session
	)

	sessionMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess != nil {
				r = r.WithContext(session.WithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	}

	BeforeEach(func() {
		source = newMockSnapshotSource()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		provider := capacity.NewProvider(source, 30*time.Second, 16, logger)
		validator := capacity.NewValidator(capacity.DefaultThresholds())
		handler = capacity.NewHandler(provider, validator)
		sess = &session.Session{Token: "test-token", UserID: 7}

		router = chi.NewRouter()
		router.With(sessionMiddleware).Route("/users/{id}/capacity", func(r chi.Router) {
			r.Get("/", handler.GetUserCapacity)
			r.Post("/validate", handler.ValidateWorkload)
		})
	})

	Describe("GetUserCapacity", func() {
		It("should return the snapshot as JSON", func() {
			// Given
			source.set(42, 65)

			// When
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/users/42/capacity", nil)
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			var body map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("userId", float64(42)))
			Expect(body).To(HaveKeyWithValue("totalWorkload", float64(65)))
			Expect(body).To(HaveKeyWithValue("availableCapacity", float64(35)))
			Expect(body).To(HaveKeyWithValue("isOverloaded", false))
		})

		It("should reject calls without a session", func() {
			// Given
			sess = nil

			// When
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/users/42/capacity", nil)
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should reject a non-numeric user ID", func() {
			// When
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/users/abc/capacity", nil)
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should map taxonomy errors onto their status codes", func() {
			// When: user 99 does not exist
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/users/99/capacity", nil)
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			var body map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKey("error"))
		})
	})

	Describe("ValidateWorkload", func() {
		It("should grade an addition against a fresh snapshot", func() {
			// Given
			source.set(42, 65)
			payload, _ := json.Marshal(map[string]interface{}{"requested_percentage": 20})

			// When
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/users/42/capacity/validate", bytes.NewReader(payload))
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			var body map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("isValid", true))
			Expect(body).To(HaveKeyWithValue("severity", "warning"))
			Expect(body).To(HaveKeyWithValue("totalAfterAssignment", float64(85)))
		})

		It("should grade an update against the adjusted baseline", func() {
			// Given: 70% total, 30% from the edited allocation
			source.set(42, 70)
			payload, _ := json.Marshal(map[string]interface{}{
				"requested_percentage": 10,
				"current_percentage":   30,
				"update":               true,
			})

			// When
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/users/42/capacity/validate", bytes.NewReader(payload))
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusOK))
			var body map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("severity", "success"))
			Expect(body).To(HaveKeyWithValue("totalAfterAssignment", float64(50)))
		})

		Context("when the backend is unreachable", func() {
			It("should degrade to a non-blocking warning instead of failing", func() {
				// Given
				source.fetchError = internal.ErrRemoteUnavailable
				payload, _ := json.Marshal(map[string]interface{}{"requested_percentage": 20})

				// When
				rec := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodPost, "/users/42/capacity/validate", bytes.NewReader(payload))
				router.ServeHTTP(rec, req)

				// Then: capacity is unknown, the form stays submittable
				Expect(rec.Code).To(Equal(http.StatusOK))
				var body map[string]interface{}
				Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
				Expect(body).To(HaveKeyWithValue("isValid", true))
				Expect(body).To(HaveKeyWithValue("severity", "warning"))
				Expect(body).To(HaveKeyWithValue("requestedWorkload", float64(20)))
			})

			It("should still surface other backend failures as errors", func() {
				// Given: user 99 does not exist
				payload, _ := json.Marshal(map[string]interface{}{"requested_percentage": 20})

				// When
				rec := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodPost, "/users/99/capacity/validate", bytes.NewReader(payload))
				router.ServeHTTP(rec, req)

				// Then
				Expect(rec.Code).To(Equal(http.StatusNotFound))
			})
		})

		It("should return 400 for an out-of-range percentage", func() {
			// Given
			source.set(42, 10)
			payload, _ := json.Marshal(map[string]interface{}{"requested_percentage": 150})

			// When
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/users/42/capacity/validate", bytes.NewReader(payload))
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return 400 for a malformed body", func() {
			// When
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/users/42/capacity/validate", bytes.NewReader([]byte("{")))
			router.ServeHTTP(rec, req)

			// Then
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
