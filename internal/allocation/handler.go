package allocation

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/teamtrackhq/workload-management/internal/session"
	"github.com/teamtrackhq/workload-management/internal/transport"
	"github.com/teamtrackhq/workload-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Service:     service,
	}
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	var dto AddMemberDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dto.ProjectID = projectID

	created, err := h.Service.Add(r.Context(), sess, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, created)
}

// BatchAddMembers reports per-user outcomes; a 207 response signals that
// some pairs failed while others committed.
func (h *Handler) BatchAddMembers(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	var req struct {
		Members []BatchAddItem `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Members) == 0 {
		h.WriteError(w, http.StatusBadRequest, "members list is empty")
		return
	}

	results := h.Service.BatchAdd(r.Context(), sess, projectID, req.Members)

	status := http.StatusCreated
	for _, result := range results {
		if !result.Succeeded {
			status = http.StatusMultiStatus
			break
		}
	}

	h.WriteJSON(w, status, map[string]interface{}{"results": results})
}

func (h *Handler) UpdateWorkload(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}

	var dto UpdateWorkloadDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dto.ProjectID = projectID
	dto.UserID = userID

	updated, err := h.Service.Update(r.Context(), sess, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}

	if err := h.Service.Remove(r.Context(), sess, projectID, userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"deactivated": true})
}

func (h *Handler) GetMembers(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	members, err := h.Service.GetProjectMembers(r.Context(), sess, projectID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (h *Handler) GetWorkloadHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}

	changes, err := h.Service.GetWorkloadHistory(r.Context(), sess, projectID, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"changes": changes})
}

func (h *Handler) memberParams(w http.ResponseWriter, r *http.Request) (projectID, userID int64, ok bool) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid project ID")
		return 0, 0, false
	}
	userID, err = strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return 0, 0, false
	}
	return projectID, userID, true
}
