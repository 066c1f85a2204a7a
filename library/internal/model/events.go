package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmailJob is the outbox message published to the email topic.
type EmailJob struct {
	ID        string    `json:"id"`
	LogID     int       `json:"logId"`
	To        []string  `json:"to"`
	Bcc       []string  `json:"bcc,omitempty"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	HTML      string    `json:"html,omitempty"`
	Attempt   int       `json:"attempt"`
	NotBefore time.Time `json:"notBefore"`
}

type CirculationEventType string

const (
	EventBorrowed            CirculationEventType = "borrowed"
	EventReturned            CirculationEventType = "returned"
	EventRenewed             CirculationEventType = "renewed"
	EventCancelled           CirculationEventType = "cancelled"
	EventReservationPromoted CirculationEventType = "reservation_promoted"
	EventReservationExpired  CirculationEventType = "reservation_expired"
)

type CirculationEvent struct {
	Timestamp   time.Time            `json:"timestamp"`
	Type        CirculationEventType `json:"type"`
	UserID      int                  `json:"userId"`
	BookID      int                  `json:"bookId"`
	BorrowingID int                  `json:"borrowingId,omitempty"`
	Fine        decimal.Decimal      `json:"fine"`
}
