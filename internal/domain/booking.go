package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending       BookingStatus = "pending"
	BookingStatusConfirmed     BookingStatus = "confirmed"
	BookingStatusPaymentFailed BookingStatus = "payment_failed"
	BookingStatusCancelled     BookingStatus = "cancelled"
	BookingStatusRefunded      BookingStatus = "refunded"
	BookingStatusCheckedIn     BookingStatus = "checked_in"
	BookingStatusCheckedOut    BookingStatus = "checked_out"
)

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusPaymentFailed,
		BookingStatusCancelled, BookingStatusRefunded, BookingStatusCheckedIn, BookingStatusCheckedOut:
		return true
	}
	return false
}

// IsFinal reports whether no webhook may move the booking out of this status.
func (s BookingStatus) IsFinal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCheckedOut
}

type BookingPaymentStatus string

const (
	BookingPaymentPending  BookingPaymentStatus = "pending"
	BookingPaymentPaid     BookingPaymentStatus = "paid"
	BookingPaymentFailed   BookingPaymentStatus = "failed"
	BookingPaymentRefunded BookingPaymentStatus = "refunded"
)

func (s BookingPaymentStatus) IsValid() bool {
	switch s {
	case BookingPaymentPending, BookingPaymentPaid, BookingPaymentFailed, BookingPaymentRefunded:
		return true
	}
	return false
}

type Booking struct {
	ID                 uuid.UUID
	GuestName          string
	GuestEmail         string
	GuestPhone         *string
	HotelID            uuid.UUID
	RoomID             uuid.UUID
	CheckIn            time.Time
	CheckOut           time.Time
	TotalAmount        decimal.Decimal
	Currency           Currency
	Status             BookingStatus
	PaymentStatus      BookingPaymentStatus
	CancelledAt        *time.Time
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
