package httpx

import (
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/ticketwise/enhancer/internal/errors"
	"github.com/ticketwise/enhancer/internal/service"
)

// Webhook request headers.
const (
	HeaderSignature  = "X-Hub-Signature-256"
	HeaderTimestamp  = "X-Webhook-Timestamp"
	HeaderDeliveryID = "X-Delivery-ID"
)

// WebhookHandlers serves the inbound webhook admission endpoint.
type WebhookHandlers struct {
	Admission *service.AdmissionService
	Logger    *slog.Logger
}

// Admit handles POST /webhook/agents/{tenant_scope}.
func (h *WebhookHandlers) Admit(w http.ResponseWriter, r *http.Request) {
	tenantScope := r.PathValue("tenant_scope")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "unreadable_body", Err: err})
		return
	}

	resp, err := h.Admission.Admit(r.Context(), service.AdmitRequest{
		TenantScope:     tenantScope,
		Body:            body,
		SignatureHeader: r.Header.Get(HeaderSignature),
		TimestampHeader: r.Header.Get(HeaderTimestamp),
		DeliveryID:      r.Header.Get(HeaderDeliveryID),
	})
	if err != nil {
		h.writeAdmitError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, resp)
}

// writeAdmitError maps taxonomy codes onto the webhook status contract.
func (h *WebhookHandlers) writeAdmitError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	status := http.StatusInternalServerError
	errCode := "internal_error"

	switch code {
	case apperrors.ErrCodeNotFound:
		status, errCode = http.StatusNotFound, "unknown_tenant"
	case apperrors.ErrCodeForbidden:
		status, errCode = http.StatusForbidden, "tenant_forbidden"
	case apperrors.ErrCodeAuthentication:
		status, errCode = http.StatusUnauthorized, "invalid_signature"
	case apperrors.ErrCodeReplay:
		status, errCode = http.StatusUnauthorized, "replay_detected"
	case apperrors.ErrCodeValidation:
		status, errCode = http.StatusBadRequest, "invalid_payload"
	case apperrors.ErrCodeConflict:
		status, errCode = http.StatusConflict, "conflict"
	}

	if status >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.ErrorContext(r.Context(), "webhook admission failed",
			"path", r.URL.Path, "error", err)
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: errCode, Err: err})
}
