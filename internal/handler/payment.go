package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
	"github.com/josh-kwaku/stay-reconciler/internal/service/payment"
)

type paymentService interface {
	BeginCharge(ctx context.Context, req payment.ChargeRequest) (*domain.Payment, *domain.Commission, error)
	RequestRefund(ctx context.Context, req payment.RefundRequest) (*domain.Refund, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	BookingID             string          `json:"booking_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Provider              string          `json:"provider"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.BookingID == "" {
		errs = append(errs, FieldError{Field: "booking_id", Message: "required"})
	} else if _, err := uuid.Parse(r.BookingID); err != nil {
		errs = append(errs, FieldError{Field: "booking_id", Message: "must be a valid UUID"})
	}

	errs = append(errs, validateAmount(r.Amount)...)

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}

	if strings.TrimSpace(r.Provider) == "" {
		errs = append(errs, FieldError{Field: "provider", Message: "required"})
	}
	if strings.TrimSpace(r.ProviderTransactionID) == "" {
		errs = append(errs, FieldError{Field: "provider_transaction_id", Message: "required"})
	}

	return errs
}

type createRefundRequest struct {
	Amount                decimal.Decimal `json:"amount"`
	Reason                string          `json:"reason"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
}

func (r createRefundRequest) Validate() []FieldError {
	errs := validateAmount(r.Amount)
	if strings.TrimSpace(r.ProviderTransactionID) == "" {
		errs = append(errs, FieldError{Field: "provider_transaction_id", Message: "required"})
	}
	return errs
}

func validateAmount(amount decimal.Decimal) []FieldError {
	switch {
	case !amount.IsPositive():
		return []FieldError{{Field: "amount", Message: "must be greater than 0"}}
	case !amount.Equal(amount.Round(2)):
		return []FieldError{{Field: "amount", Message: "at most two decimal places"}}
	}
	return nil
}

type paymentDTO struct {
	ID                    uuid.UUID       `json:"id"`
	BookingID             uuid.UUID       `json:"booking_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                string          `json:"status"`
	Provider              string          `json:"provider"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
	ErrorCode             *string         `json:"error_code,omitempty"`
	ErrorMessage          *string         `json:"error_message,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:                    p.ID,
		BookingID:             p.BookingID,
		Amount:                p.Amount,
		Currency:              string(p.Currency),
		Status:                string(p.Status),
		Provider:              p.Provider,
		ProviderTransactionID: p.ProviderTransactionID,
		ErrorCode:             p.ErrorCode,
		ErrorMessage:          p.ErrorMessage,
		CreatedAt:             p.CreatedAt,
		CompletedAt:           p.CompletedAt,
	}
}

type refundDTO struct {
	ID                    uuid.UUID       `json:"id"`
	PaymentID             uuid.UUID       `json:"payment_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                string          `json:"status"`
	Reason                *string         `json:"reason,omitempty"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
	CreatedAt             time.Time       `json:"created_at"`
}

func toRefundDTO(r *domain.Refund) refundDTO {
	return refundDTO{
		ID:                    r.ID,
		PaymentID:             r.PaymentID,
		Amount:                r.Amount,
		Currency:              string(r.Currency),
		Status:                string(r.Status),
		Reason:                r.Reason,
		ProviderTransactionID: r.ProviderTransactionID,
		CreatedAt:             r.CreatedAt,
	}
}

type chargeResponse struct {
	Payment    paymentDTO    `json:"payment"`
	Commission commissionDTO `json:"commission"`
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, c, err := h.payments.BeginCharge(r.Context(), payment.ChargeRequest{
		BookingID:             uuid.MustParse(req.BookingID),
		Amount:                req.Amount,
		Currency:              domain.Currency(req.Currency),
		Provider:              req.Provider,
		ProviderTransactionID: req.ProviderTransactionID,
	})
	if err != nil {
		log.Warn("payment creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", p.ID))
	RespondSuccess(w, http.StatusCreated, chargeResponse{Payment: toPaymentDTO(p), Commission: toCommissionDTO(c)})
}

func (h *PaymentHandler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req createRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	refund, err := h.payments.RequestRefund(r.Context(), payment.RefundRequest{
		PaymentID:             paymentID,
		Amount:                req.Amount,
		Reason:                req.Reason,
		ProviderTransactionID: req.ProviderTransactionID,
	})
	if err != nil {
		log.Warn("refund request failed", "error", err, "payment_id", paymentID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toRefundDTO(refund))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.GetPayment(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}
