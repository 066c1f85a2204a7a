package model

import (
	"time"
)

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}

type ListNotifications struct {
	Paging `json:",inline"`
	Unread int            `json:"unread"`
	Items  []Notification `json:"items"`
}

type User struct {
	ID       int    `json:"id" db:"id"`
	Email    string `json:"email" db:"email"`
	FullName string `json:"fullName" db:"full_name"`
	Role     string `json:"role" db:"role"`
	IsActive bool   `json:"isActive" db:"is_active"`
}

type Book struct {
	ID              int    `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	Author          string `json:"author" db:"author"`
	ISBN            string `json:"isbn" db:"isbn"`
	Description     string `json:"description" db:"description"`
	TotalCopies     int    `json:"totalCopies" db:"total_copies"`
	AvailableCopies int    `json:"availableCopies" db:"available_copies"`
	Category        string `json:"category" db:"category"`
	Department      string `json:"department" db:"department"`
	IsActive        bool   `json:"isActive" db:"is_active"`
}

func (b Book) IsAvailable() bool {
	return b.IsActive && b.AvailableCopies > 0
}

type Availability string

const (
	AvailabilityAll         Availability = ""
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

type BookFilter struct {
	Search       string       `query:"search"`
	Category     string       `query:"category"`
	Department   string       `query:"department"`
	Availability Availability `query:"availability" validate:"omitempty,oneof=available unavailable"`
	Page         int          `query:"page" validate:"gte=0"`
	Size         int          `query:"size" validate:"gte=0,lte=100"`
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// ReservationHoldDays is how long a promoted reservation holds a returned copy.
const ReservationHoldDays = 3

type Reservation struct {
	ID         int               `json:"id" db:"id"`
	UserID     int               `json:"userId" db:"user_id"`
	BookID     int               `json:"bookId" db:"book_id"`
	Status     ReservationStatus `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"createdAt" db:"created_at"`
	ExpiryDate *time.Time        `json:"expiryDate" db:"expiry_date"`
	Notified   bool              `json:"notified" db:"notified"`
}

type NotificationType string

const (
	NotificationBorrow      NotificationType = "borrow"
	NotificationReturn      NotificationType = "return"
	NotificationRenewal     NotificationType = "renewal"
	NotificationReservation NotificationType = "reservation"
	NotificationFine        NotificationType = "fine"
	NotificationSystem      NotificationType = "system"
)

type Notification struct {
	ID        int              `json:"id" db:"id"`
	UserID    int              `json:"userId" db:"user_id"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Type      NotificationType `json:"type" db:"notification_type"`
	RelatedID *int             `json:"relatedId,omitempty" db:"related_id"`
	ActionURL string           `json:"actionUrl" db:"action_url"`
	IsRead    bool             `json:"isRead" db:"is_read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

type EmailLog struct {
	ID           int         `json:"id" db:"id"`
	Recipient    string      `json:"recipient" db:"recipient"`
	Subject      string      `json:"subject" db:"subject"`
	Status       EmailStatus `json:"status" db:"status"`
	ErrorMessage string      `json:"errorMessage" db:"error_message"`
	Attempts     int         `json:"attempts" db:"attempts"`
	CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
	SentAt       *time.Time  `json:"sentAt" db:"sent_at"`
}
