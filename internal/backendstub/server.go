package backendstub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal/gateway"
	"github.com/teamtrackhq/workload-management/internal/session"
	"github.com/teamtrackhq/workload-management/internal/transport"
	"github.com/teamtrackhq/workload-management/pkg/logger"
)

// Server exposes the store over the backend REST contract.
type Server struct {
	*transport.BaseHandler
	store *Store
}

func NewServer(store *Store, lg *slog.Logger) *Server {
	if lg == nil {
		lg = logger.L()
	}
	return &Server{
		BaseHandler: transport.NewBaseHandler(lg),
		store:       store,
	}
}

// Router builds the stub's route tree.
func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/users/{id}/capacity", s.userCapacity)
		r.Get("/analytics/workload", s.workloadAnalytics)
		r.Route("/projects/{id}/members", func(mr chi.Router) {
			mr.Get("/", s.projectMembers)
			mr.Post("/", s.addMember)
			mr.Put("/{userId}/workload", s.updateWorkload)
			mr.Delete("/{userId}", s.removeMember)
			mr.Get("/{userId}/workload-history", s.workloadHistory)
		})
	})

	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) userCapacity(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	snapshot, err := s.store.UserSnapshot(userID)
	if err != nil {
		s.HandleServiceError(w, err)
		return
	}
	s.WriteJSON(w, http.StatusOK, snapshot)
}

func (s *Server) workloadAnalytics(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.store.AllSnapshots()
	if err != nil {
		s.HandleServiceError(w, err)
		return
	}
	s.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": snapshots})
}

func (s *Server) projectMembers(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	allocations, users, err := s.store.ProjectMembers(projectID)
	if err != nil {
		s.HandleServiceError(w, err)
		return
	}

	members := make([]gateway.Member, 0, len(allocations))
	for i, a := range allocations {
		members = append(members, gateway.Member{
			UserID:             a.UserID,
			UserName:           users[i].Name,
			Role:               users[i].Role,
			WorkloadPercentage: a.WorkloadPercentage,
			IsActive:           a.IsActive,
			JoinedDate:         a.JoinedDate,
		})
	}
	s.WriteJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

type addMemberRequest struct {
	UserID             int64           `json:"userId"`
	WorkloadPercentage decimal.Decimal `json:"workloadPercentage"`
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.store.AddMember(projectID, req.UserID, req.WorkloadPercentage)
	if err != nil {
		s.HandleServiceError(w, err)
		return
	}

	s.Logger.Info("stub: member added", "project_id", projectID, "user_id", req.UserID)
	s.WriteJSON(w, http.StatusCreated, created)
}

type updateWorkloadRequest struct {
	WorkloadPercentage decimal.Decimal `json:"workloadPercentage"`
	Reason             string          `json:"reason,omitempty"`
}

func (s *Server) updateWorkload(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := s.memberParams(w, r)
	if !ok {
		return
	}

	var req updateWorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.store.UpdateWorkload(projectID, userID, req.WorkloadPercentage, req.Reason, s.actorID(r))
	if err != nil {
		s.HandleServiceError(w, err)
		return
	}
	s.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := s.memberParams(w, r)
	if !ok {
		return
	}

	if err := s.store.RemoveMember(projectID, userID); err != nil {
		s.HandleServiceError(w, err)
		return
	}
	s.WriteJSON(w, http.StatusOK, map[string]interface{}{"deactivated": true})
}

func (s *Server) workloadHistory(w http.ResponseWriter, r *http.Request) {
	projectID, userID, ok := s.memberParams(w, r)
	if !ok {
		return
	}

	changes, err := s.store.History(projectID, userID)
	if err != nil {
		s.HandleServiceError(w, err)
		return
	}
	s.WriteJSON(w, http.StatusOK, map[string]interface{}{"changes": changes})
}

func (s *Server) memberParams(w http.ResponseWriter, r *http.Request) (projectID, userID int64, ok bool) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return 0, 0, false
	}
	userID, err = strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		s.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return 0, 0, false
	}
	return projectID, userID, true
}

// actorID extracts the acting user from the bearer token for audit
// entries. The stub does not verify signatures.
func (s *Server) actorID(r *http.Request) int64 {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return 0
	}
	sess, err := session.FromToken(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return 0
	}
	return sess.UserID
}
