package domain

import (
	"time"

	"github.com/google/uuid"
)

type StatusHistory struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	PreviousStatus BookingStatus
	NewStatus      BookingStatus
	Reason         string
	Actor          string
	CreatedAt      time.Time
}
