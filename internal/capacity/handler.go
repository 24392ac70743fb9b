package capacity

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	"github.com/teamtrackhq/workload-management/internal"
	"github.com/teamtrackhq/workload-management/internal/session"
	"github.com/teamtrackhq/workload-management/internal/transport"
	"github.com/teamtrackhq/workload-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Provider  *Provider
	Validator *Validator
}

func NewHandler(provider *Provider, validator *Validator) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Provider:    provider,
		Validator:   validator,
	}
}

// GetUserCapacity returns the user's current snapshot.
func (h *Handler) GetUserCapacity(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	snapshot, err := h.Provider.GetUserCapacity(r.Context(), sess, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, snapshot)
}

// ValidateRequest is one interactive validation call from an assignment
// form. Nothing is committed here.
type ValidateRequest struct {
	RequestedPercentage decimal.Decimal `json:"requested_percentage"`
	CurrentPercentage   decimal.Decimal `json:"current_percentage"`
	Update              bool            `json:"update"`
}

// ValidateWorkload runs the advisory check against a fresh snapshot and
// returns the severity-graded result.
func (h *Handler) ValidateWorkload(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := h.Provider.GetUserCapacity(r.Context(), sess, userID)
	if err != nil {
		// An unreachable backend means capacity is unknown, not zero:
		// validation degrades to a non-blocking warning instead of 503.
		if internal.IsCode(err, internal.ErrCodeRemoteUnavailable) {
			h.WriteJSON(w, http.StatusOK, &ValidationResult{
				IsValid:           true,
				Severity:          SeverityWarning,
				RequestedWorkload: req.RequestedPercentage,
				Message:           err.Error(),
			})
			return
		}
		h.HandleServiceError(w, err)
		return
	}

	var result *ValidationResult
	if req.Update {
		result, err = h.Validator.ValidateUpdate(snapshot, req.CurrentPercentage, req.RequestedPercentage)
	} else {
		result, err = h.Validator.ValidateAddition(snapshot, req.RequestedPercentage)
	}
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
