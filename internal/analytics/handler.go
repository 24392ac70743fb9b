package analytics

import (
	"net/http"

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

func (h *Handler) GetWorkloadAnalytics(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rollup, err := h.Service.GetWorkloadAnalytics(r.Context(), sess)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, rollup)
}
