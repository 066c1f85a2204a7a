package errs

import (
	"errors"
)

var (
	ErrNotFound = errors.New("not found")

	ErrBookUnavailable  = errors.New("book is not available")
	ErrBorrowLimit      = errors.New("borrowing limit reached")
	ErrOutstandingFines = errors.New("outstanding fines must be paid before borrowing")
	ErrAlreadyBorrowed  = errors.New("book is already borrowed or pending")
	ErrRenewOverdue     = errors.New("overdue books cannot be renewed")
	ErrRenewLimit       = errors.New("maximum renewals reached")

	ErrCodeRequired     = errors.New("verification code is required")
	ErrCodeFormat       = errors.New("verification code must be 6 characters")
	ErrTooManyAttempts  = errors.New("too many verification attempts, try again later")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrCodeAlreadyUsed  = errors.New("verification code has already been used")
	ErrCodeExpired      = errors.New("verification code has expired")
	ErrBookExhausted    = errors.New("all copies were taken before your request was confirmed, please contact an administrator")
	ErrTransactionStale = errors.New("transaction is no longer awaiting verification")
	ErrBorrowingChanged = errors.New("borrowing was changed by another request, try again")
	ErrFinalize         = errors.New("error processing transaction")

	ErrBookAvailable   = errors.New("book is available, borrow it instead")
	ErrAlreadyReserved = errors.New("book is already reserved")
	ErrNoFine          = errors.New("no outstanding fine")
)
