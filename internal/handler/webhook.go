package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
	"github.com/josh-kwaku/stay-reconciler/internal/service"
)

const maxWebhookBody = 1 << 20

type webhookProcessor interface {
	Process(ctx context.Context, provider string, body []byte, header http.Header) (service.WebhookResult, error)
}

type WebhookHandler struct {
	processor webhookProcessor
}

func NewWebhookHandler(processor webhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

type webhookResponse struct {
	EventID string                `json:"event_id,omitempty"`
	Outcome domain.WebhookOutcome `json:"outcome"`
	Detail  string                `json:"detail,omitempty"`
}

// Receive handles POST /payments/webhook/{provider}. Anything the provider
// should not retry is acknowledged with 200, including payloads we reject.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	res, err := h.processor.Process(r.Context(), r.PathValue("provider"), body, r.Header)
	switch {
	case err == nil:
		RespondSuccess(w, http.StatusOK, webhookResponse{EventID: res.EventID, Outcome: res.Outcome, Detail: res.Detail})
	case errors.Is(err, domain.ErrUnknownProvider):
		RespondAppError(w, ErrUnknownProvider, nil)
	case errors.Is(err, domain.ErrAuthentication):
		RespondAppError(w, ErrInvalidSignature, nil)
	case errors.Is(err, domain.ErrValidation):
		outcome := res.Outcome
		if outcome == "" {
			outcome = domain.WebhookOutcomeRejected
		}
		RespondSuccess(w, http.StatusOK, webhookResponse{EventID: res.EventID, Outcome: outcome, Detail: err.Error()})
	default:
		RespondAppError(w, ErrInternalError, nil)
	}
}
