package httpx

import (
	"net/http"

	apperrors "github.com/ticketwise/enhancer/internal/errors"
	"github.com/ticketwise/enhancer/internal/service"
)

// JobHandlers serves job status lookups.
type JobHandlers struct {
	Svc *service.JobService
}

// Status handles GET /jobs/{execution_id}.
func (h *JobHandlers) Status(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")

	status, err := h.Svc.Status(r.Context(), executionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "unknown_execution_id", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, status)
}
