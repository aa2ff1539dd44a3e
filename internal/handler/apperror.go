package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken      = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken      = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInsufficientScope = &AppError{http.StatusForbidden, "INSUFFICIENT_SCOPE", "Token does not grant access to this resource"}
	ErrInvalidRequest    = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed  = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound  = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError     = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidSignature = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature could not be verified"}
	ErrUnknownProvider  = &AppError{http.StatusNotFound, "UNKNOWN_PROVIDER", "Unknown payment provider"}

	ErrBookingFinal          = &AppError{http.StatusUnprocessableEntity, "BOOKING_FINAL", "Booking is cancelled or checked out"}
	ErrPaymentNotSucceeded   = &AppError{http.StatusUnprocessableEntity, "PAYMENT_NOT_SUCCEEDED", "Payment has not succeeded"}
	ErrRefundExceedsPayment  = &AppError{http.StatusUnprocessableEntity, "REFUND_EXCEEDS_PAYMENT", "Refund exceeds the unrefunded amount"}
	ErrDuplicateTransaction  = &AppError{http.StatusConflict, "DUPLICATE_TRANSACTION", "Provider transaction id already recorded"}
	ErrInvalidCurrency       = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrCurrencyMismatch      = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
