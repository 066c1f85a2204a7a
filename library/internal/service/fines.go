package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	libraryRepo "github.com/Astemirdum/library-circulation/library/internal/repository"
)

func totalOutstanding(borrowings []model.Borrowing, now time.Time, perDay decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, b := range borrowings {
		total = total.Add(b.OutstandingFine(now, perDay))
	}
	return total
}

func (s *Service) Fines(ctx context.Context, userID int) (model.FineSummary, error) {
	settings := s.settings(ctx, s.repo)
	borrowings, err := s.repo.ListBorrowings(ctx, userID)
	if err != nil {
		return model.FineSummary{}, err
	}
	now := s.now()

	summary := model.FineSummary{
		Outstanding:      []model.FineItem{},
		Paid:             []model.Borrowing{},
		TotalOutstanding: decimal.Zero,
		TotalPaid:        decimal.Zero,
	}
	for _, b := range borrowings {
		if amount := b.OutstandingFine(now, settings.FinePerDay); amount.IsPositive() {
			at := now
			if b.ReturnDate != nil {
				at = *b.ReturnDate
			}
			summary.Outstanding = append(summary.Outstanding, model.FineItem{
				BorrowingID: b.ID,
				BookID:      b.BookID,
				DueDate:     b.DueDate,
				DaysOverdue: b.DaysOverdue(at),
				Amount:      amount,
				Returned:    b.Status == model.BorrowingReturned,
			})
			summary.TotalOutstanding = summary.TotalOutstanding.Add(amount)
		}
		if b.FinePaidAmount.IsPositive() {
			summary.Paid = append(summary.Paid, b)
			summary.TotalPaid = summary.TotalPaid.Add(b.FinePaidAmount)
		}
	}
	summary.TotalAllTime = summary.TotalOutstanding.Add(summary.TotalPaid)
	return summary, nil
}

// PayFine settles what is owed on one borrowing right now. A copy that stays
// out keeps accruing, and later days are owed on top of the payment.
func (s *Service) PayFine(ctx context.Context, userID, borrowingID int) (model.Borrowing, error) {
	var paid model.Borrowing
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		settings := s.settings(ctx, repo)
		b, err := repo.GetUserBorrowing(ctx, userID, borrowingID)
		if err != nil {
			return err
		}
		amount := b.OutstandingFine(s.now(), settings.FinePerDay)
		if !amount.IsPositive() {
			return errs.ErrNoFine
		}
		if err := s.settle(ctx, repo, &b, amount, settings); err != nil {
			return err
		}
		paid = b
		return nil
	})
	return paid, err
}

// PayAllFines settles every outstanding fine of the user and returns the total.
func (s *Service) PayAllFines(ctx context.Context, userID int) (decimal.Decimal, error) {
	total := decimal.Zero
	err := s.repo.InTx(ctx, func(repo libraryRepo.Repository) error {
		settings := s.settings(ctx, repo)
		borrowings, err := repo.ListBorrowings(ctx, userID)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range borrowings {
			amount := borrowings[i].OutstandingFine(now, settings.FinePerDay)
			if !amount.IsPositive() {
				continue
			}
			if err := s.settle(ctx, repo, &borrowings[i], amount, settings); err != nil {
				return err
			}
			total = total.Add(amount)
		}
		if !total.IsPositive() {
			return errs.ErrNoFine
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *Service) settle(
	ctx context.Context,
	repo libraryRepo.Repository,
	b *model.Borrowing,
	amount decimal.Decimal,
	settings model.Settings,
) error {
	b.ApplyPayment(amount, s.now(), settings.FinePerDay)
	if err := repo.UpdateBorrowing(ctx, *b, b.Status); err != nil {
		return err
	}
	return s.notify(ctx, repo, b.UserID, model.NotificationFine, b.ID,
		"Fine paid", fmt.Sprintf("Payment of %s received.", amount.StringFixed(2)))
}
