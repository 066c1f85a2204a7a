package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BorrowingStatus string

const (
	BorrowingPending       BorrowingStatus = "pending"
	BorrowingBorrowed      BorrowingStatus = "borrowed"
	BorrowingPendingReturn BorrowingStatus = "pending_return"
	BorrowingReturned      BorrowingStatus = "returned"
	BorrowingCancelled     BorrowingStatus = "cancelled"
)

type Borrowing struct {
	ID           int             `json:"id" db:"id"`
	UserID       int             `json:"userId" db:"user_id"`
	BookID       int             `json:"bookId" db:"book_id"`
	Status       BorrowingStatus `json:"status" db:"status"`
	BorrowDate   *time.Time      `json:"borrowDate" db:"borrow_date"`
	DueDate      time.Time       `json:"dueDate" db:"due_date"`
	ReturnDate   *time.Time      `json:"returnDate" db:"return_date"`
	RenewedCount int             `json:"renewedCount" db:"renewed_count"`
	// FineAmount is the fine charged so far: fixed at return, or as of the
	// last payment while the copy is still out.
	FineAmount decimal.Decimal `json:"fineAmount" db:"fine_amount"`
	// FinePaidAmount is the sum of all payments made against this borrowing.
	FinePaidAmount decimal.Decimal `json:"finePaidAmount" db:"fine_paid_amount"`
	// FinePaid is set while payments cover FineAmount.
	FinePaid  bool      `json:"finePaid" db:"fine_paid"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// IsActive reports whether the borrowing counts toward the user's limit.
func (b Borrowing) IsActive() bool {
	switch b.Status {
	case BorrowingPending, BorrowingBorrowed, BorrowingPendingReturn:
		return true
	}
	return false
}

// IsOverdue is true for copies still out after their due date.
func (b Borrowing) IsOverdue(now time.Time) bool {
	if b.ReturnDate != nil || !b.IsActive() {
		return false
	}
	return now.After(b.DueDate)
}

// DaysOverdue counts whole calendar days between the due date and at.
func (b Borrowing) DaysOverdue(at time.Time) int {
	due := truncateDay(b.DueDate)
	day := truncateDay(at)
	if !day.After(due) {
		return 0
	}
	return int(day.Sub(due).Hours() / 24)
}

// AccruedFine is the fine as of at, at perDay per overdue day.
func (b Borrowing) AccruedFine(at time.Time, perDay decimal.Decimal) decimal.Decimal {
	days := b.DaysOverdue(at)
	if days <= 0 {
		return decimal.Zero
	}
	return perDay.Mul(decimal.NewFromInt(int64(days)))
}

// ChargedFine is the whole fine for this borrowing as of now, paid or not.
// It keeps growing while the copy is out and overdue.
func (b Borrowing) ChargedFine(now time.Time, perDay decimal.Decimal) decimal.Decimal {
	if b.Status == BorrowingReturned {
		return b.FineAmount
	}
	if b.IsOverdue(now) {
		return b.AccruedFine(now, perDay)
	}
	return decimal.Zero
}

// OutstandingFine is what the user still owes on this borrowing as of now.
func (b Borrowing) OutstandingFine(now time.Time, perDay decimal.Decimal) decimal.Decimal {
	owed := b.ChargedFine(now, perDay).Sub(b.FinePaidAmount)
	if !owed.IsPositive() {
		return decimal.Zero
	}
	return owed
}

// ApplyPayment records amount against the fine charged as of now.
func (b *Borrowing) ApplyPayment(amount decimal.Decimal, now time.Time, perDay decimal.Decimal) {
	b.FineAmount = b.ChargedFine(now, perDay)
	b.FinePaidAmount = b.FinePaidAmount.Add(amount)
	b.FinePaid = b.FinePaidAmount.GreaterThanOrEqual(b.FineAmount)
}

// CloseFine fixes the fine at fine when the copy comes back.
func (b *Borrowing) CloseFine(fine decimal.Decimal) {
	b.FineAmount = fine
	b.FinePaid = b.FinePaidAmount.IsPositive() && b.FinePaidAmount.GreaterThanOrEqual(fine)
}

func (b Borrowing) CanRenew(now time.Time, maxRenewals int) bool {
	return b.Status == BorrowingBorrowed && !b.IsOverdue(now) && b.RenewedCount < maxRenewals
}

func (b *Borrowing) Renew(days int) {
	b.DueDate = b.DueDate.AddDate(0, 0, days)
	b.RenewedCount++
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type TransactionType string

const (
	TransactionBorrow TransactionType = "borrow"
	TransactionReturn TransactionType = "return"
	TransactionRenew  TransactionType = "renew"
)

type TransactionVerification struct {
	ID               int             `json:"id" db:"id"`
	UserID           int             `json:"userId" db:"user_id"`
	BorrowingID      int             `json:"borrowingId" db:"borrowing_id"`
	TransactionType  TransactionType `json:"transactionType" db:"transaction_type"`
	VerificationCode string          `json:"-" db:"verification_code"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	ExpiresAt        time.Time       `json:"expiresAt" db:"expires_at"`
	IsVerified       bool            `json:"isVerified" db:"is_verified"`
	VerifiedAt       *time.Time      `json:"verifiedAt" db:"verified_at"`
}

func (v TransactionVerification) IsExpired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// TransactionResult is returned when a transaction is initiated.
type TransactionResult struct {
	Borrowing       Borrowing       `json:"borrowing"`
	TransactionType TransactionType `json:"transactionType"`
	ExpiresAt       time.Time       `json:"expiresAt,omitempty"`
	Message         string          `json:"message"`
}

// VerifyResult is returned when a verification code is redeemed.
type VerifyResult struct {
	TransactionType TransactionType `json:"transactionType"`
	Borrowing       Borrowing       `json:"borrowing"`
	Book            Book            `json:"book"`
	Message         string          `json:"message"`
}

type FineItem struct {
	BorrowingID int             `json:"borrowingId"`
	BookID      int             `json:"bookId"`
	DueDate     time.Time       `json:"dueDate"`
	DaysOverdue int             `json:"daysOverdue"`
	Amount      decimal.Decimal `json:"amount"`
	Returned    bool            `json:"returned"`
}

type FineSummary struct {
	Outstanding      []FineItem      `json:"outstanding"`
	Paid             []Borrowing     `json:"paid"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	TotalPaid        decimal.Decimal `json:"totalPaid"`
	TotalAllTime     decimal.Decimal `json:"totalAllTime"`
}

type SweepReport struct {
	CancelledBorrows     int `json:"cancelledBorrows"`
	RevertedReturns      int `json:"revertedReturns"`
	ExpiredReservations  int `json:"expiredReservations"`
	PromotedReservations int `json:"promotedReservations"`
}
