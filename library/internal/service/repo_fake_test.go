package service_test

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Astemirdum/library-circulation/library/internal/errs"
	"github.com/Astemirdum/library-circulation/library/internal/model"
	"github.com/Astemirdum/library-circulation/library/internal/repository"
)

type memState struct {
	seq           int
	users         map[int]model.User
	books         map[int]model.Book
	borrowings    map[int]model.Borrowing
	verifications map[int]model.TransactionVerification
	reservations  map[int]model.Reservation
	notifications map[int]model.Notification
	emailLogs     map[int]model.EmailLog
	settings      map[string]string
}

func newMemState() *memState {
	return &memState{
		users:         map[int]model.User{},
		books:         map[int]model.Book{},
		borrowings:    map[int]model.Borrowing{},
		verifications: map[int]model.TransactionVerification{},
		reservations:  map[int]model.Reservation{},
		notifications: map[int]model.Notification{},
		emailLogs:     map[int]model.EmailLog{},
		settings:      map[string]string{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		seq:           s.seq,
		users:         cloneMap(s.users),
		books:         cloneMap(s.books),
		borrowings:    cloneMap(s.borrowings),
		verifications: cloneMap(s.verifications),
		reservations:  cloneMap(s.reservations),
		notifications: cloneMap(s.notifications),
		emailLogs:     cloneMap(s.emailLogs),
		settings:      cloneMap(s.settings),
	}
}

func (s *memState) nextID() int {
	s.seq++
	return s.seq
}

type faults struct {
	updateBorrowing error
	settings        error
	// interleave runs against the shared state right before a borrowing is
	// written, standing in for another request that committed first.
	interleave func(st *memState)
}

// fakeRepo keeps state in maps; InTx works on a copy that replaces the
// state only when fn succeeds.
type fakeRepo struct {
	st     *memState
	faults *faults
	inTx   bool
	// base is the committed state behind a transaction's copy.
	base *memState
}

var _ repository.Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{st: newMemState(), faults: &faults{}}
}

func (f *fakeRepo) InTx(_ context.Context, fn func(repo repository.Repository) error) error {
	if f.inTx {
		return fn(f)
	}
	tx := &fakeRepo{st: f.st.clone(), faults: f.faults, inTx: true, base: f.st}
	if err := fn(tx); err != nil {
		return err
	}
	*f.st = *tx.st
	return nil
}

func (f *fakeRepo) GetUser(_ context.Context, id int) (model.User, error) {
	u, ok := f.st.users[id]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) GetSettings(context.Context) (map[string]string, error) {
	if f.faults.settings != nil {
		return nil, f.faults.settings
	}
	return cloneMap(f.st.settings), nil
}

func (f *fakeRepo) ListBooks(_ context.Context, filter model.BookFilter) (model.ListBooks, error) {
	var items []model.Book
	search := strings.ToLower(filter.Search)
	for _, b := range f.st.books {
		if !b.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.Title+" "+b.Author+" "+b.ISBN+" "+b.Description), search) {
			continue
		}
		if filter.Category != "" && b.Category != filter.Category {
			continue
		}
		if filter.Department != "" && b.Department != filter.Department {
			continue
		}
		if filter.Availability == model.AvailabilityAvailable && b.AvailableCopies == 0 ||
			filter.Availability == model.AvailabilityUnavailable && b.AvailableCopies > 0 {
			continue
		}
		items = append(items, b)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Title < items[j].Title })
	return model.ListBooks{
		Paging: model.Paging{Page: filter.Page, PageSize: filter.Size, TotalElements: len(items)},
		Items:  items,
	}, nil
}

func (f *fakeRepo) GetBook(_ context.Context, id int) (model.Book, error) {
	b, ok := f.st.books[id]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) DecrementAvailable(_ context.Context, bookID int) (bool, error) {
	b, ok := f.st.books[bookID]
	if !ok || b.AvailableCopies <= 0 {
		return false, nil
	}
	b.AvailableCopies--
	f.st.books[bookID] = b
	return true, nil
}

func (f *fakeRepo) IncrementAvailable(_ context.Context, bookID int) (bool, error) {
	b, ok := f.st.books[bookID]
	if !ok || b.AvailableCopies >= b.TotalCopies {
		return false, nil
	}
	b.AvailableCopies++
	f.st.books[bookID] = b
	return true, nil
}

func (f *fakeRepo) CreateBorrowing(_ context.Context, b model.Borrowing) (model.Borrowing, error) {
	for _, existing := range f.st.borrowings {
		if existing.UserID == b.UserID && existing.BookID == b.BookID && existing.IsActive() {
			return model.Borrowing{}, errs.ErrAlreadyBorrowed
		}
	}
	b.ID = f.st.nextID()
	f.st.borrowings[b.ID] = b
	return b, nil
}

func (f *fakeRepo) GetBorrowing(_ context.Context, id int) (model.Borrowing, error) {
	b, ok := f.st.borrowings[id]
	if !ok {
		return model.Borrowing{}, errs.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) GetUserBorrowing(ctx context.Context, userID, id int) (model.Borrowing, error) {
	b, err := f.GetBorrowing(ctx, id)
	if err != nil || b.UserID != userID {
		return model.Borrowing{}, errs.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) ListBorrowings(_ context.Context, userID int) ([]model.Borrowing, error) {
	var out []model.Borrowing
	for _, b := range f.st.borrowings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeRepo) UpdateBorrowing(_ context.Context, b model.Borrowing, from model.BorrowingStatus) error {
	if f.faults.updateBorrowing != nil {
		return f.faults.updateBorrowing
	}
	if interleave := f.faults.interleave; interleave != nil {
		f.faults.interleave = nil
		interleave(f.st)
		if f.base != nil {
			interleave(f.base)
		}
	}
	stored, ok := f.st.borrowings[b.ID]
	if !ok || stored.Status != from {
		return errs.ErrBorrowingChanged
	}
	f.st.borrowings[b.ID] = b
	return nil
}

func (f *fakeRepo) ListAbandonedBorrowings(_ context.Context, now time.Time) ([]model.Borrowing, error) {
	var out []model.Borrowing
	for _, b := range f.st.borrowings {
		var want model.TransactionType
		switch b.Status {
		case model.BorrowingPending:
			want = model.TransactionBorrow
		case model.BorrowingPendingReturn:
			want = model.TransactionReturn
		default:
			continue
		}
		var latest *model.TransactionVerification
		for _, v := range f.st.verifications {
			v := v
			if v.BorrowingID != b.ID || v.TransactionType != want {
				continue
			}
			if latest == nil || v.CreatedAt.After(latest.CreatedAt) ||
				v.CreatedAt.Equal(latest.CreatedAt) && v.ID > latest.ID {
				latest = &v
			}
		}
		if latest != nil && !latest.IsVerified && latest.ExpiresAt.Before(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) CreateVerification(_ context.Context, v model.TransactionVerification) (model.TransactionVerification, error) {
	v.ID = f.st.nextID()
	f.st.verifications[v.ID] = v
	return v, nil
}

func (f *fakeRepo) GetVerificationByCode(_ context.Context, userID int, code string) (model.TransactionVerification, error) {
	var (
		found model.TransactionVerification
		ok    bool
	)
	for _, v := range f.st.verifications {
		if v.UserID != userID || v.VerificationCode != code {
			continue
		}
		if !ok || v.CreatedAt.After(found.CreatedAt) || v.CreatedAt.Equal(found.CreatedAt) && v.ID > found.ID {
			found, ok = v, true
		}
	}
	if !ok {
		return model.TransactionVerification{}, errs.ErrNotFound
	}
	return found, nil
}

func (f *fakeRepo) MarkVerified(_ context.Context, id int, at time.Time) (bool, error) {
	v, ok := f.st.verifications[id]
	if !ok || v.IsVerified {
		return false, nil
	}
	v.IsVerified = true
	v.VerifiedAt = &at
	f.st.verifications[id] = v
	return true, nil
}

func (f *fakeRepo) ListRecentVerifications(_ context.Context, userID, limit int) ([]model.TransactionVerification, error) {
	var out []model.TransactionVerification
	for _, v := range f.st.verifications {
		if v.UserID == userID && v.IsVerified {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VerifiedAt.Equal(*out[j].VerifiedAt) {
			return out[i].VerifiedAt.After(*out[j].VerifiedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) CreateReservation(_ context.Context, r model.Reservation) (model.Reservation, error) {
	for _, existing := range f.st.reservations {
		if existing.UserID == r.UserID && existing.BookID == r.BookID && existing.Status == model.ReservationPending {
			return model.Reservation{}, errs.ErrAlreadyReserved
		}
	}
	r.ID = f.st.nextID()
	f.st.reservations[r.ID] = r
	return r, nil
}

func (f *fakeRepo) GetReservation(_ context.Context, id int) (model.Reservation, error) {
	r, ok := f.st.reservations[id]
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) GetPendingReservation(_ context.Context, userID, bookID int) (model.Reservation, error) {
	for _, r := range f.st.reservations {
		if r.UserID == userID && r.BookID == bookID && r.Status == model.ReservationPending {
			return r, nil
		}
	}
	return model.Reservation{}, errs.ErrNotFound
}

func (f *fakeRepo) OldestWaitingReservation(_ context.Context, bookID int) (model.Reservation, error) {
	var (
		oldest model.Reservation
		ok     bool
	)
	for _, r := range f.st.reservations {
		if r.BookID != bookID || r.Status != model.ReservationPending || r.Notified {
			continue
		}
		if !ok || r.CreatedAt.Before(oldest.CreatedAt) || r.CreatedAt.Equal(oldest.CreatedAt) && r.ID < oldest.ID {
			oldest, ok = r, true
		}
	}
	if !ok {
		return model.Reservation{}, errs.ErrNotFound
	}
	return oldest, nil
}

func (f *fakeRepo) UpdateReservation(_ context.Context, r model.Reservation) error {
	if _, ok := f.st.reservations[r.ID]; !ok {
		return errs.ErrNotFound
	}
	f.st.reservations[r.ID] = r
	return nil
}

func (f *fakeRepo) ListReservations(_ context.Context, userID int) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range f.st.reservations {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeRepo) ListLapsedReservations(_ context.Context, now time.Time) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range f.st.reservations {
		if r.Status == model.ReservationPending && r.Notified && r.ExpiryDate != nil && r.ExpiryDate.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) CreateNotification(_ context.Context, n model.Notification) (model.Notification, error) {
	n.ID = f.st.nextID()
	f.st.notifications[n.ID] = n
	return n, nil
}

func (f *fakeRepo) ListNotifications(_ context.Context, userID, page, size int) (model.ListNotifications, error) {
	var (
		items  []model.Notification
		unread int
	)
	for _, n := range f.st.notifications {
		if n.UserID != userID {
			continue
		}
		items = append(items, n)
		if !n.IsRead {
			unread++
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	total := len(items)
	if page > 0 && size > 0 {
		start := (page - 1) * size
		if start > len(items) {
			start = len(items)
		}
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		items = items[start:end]
	}
	return model.ListNotifications{
		Paging: model.Paging{Page: page, PageSize: size, TotalElements: total},
		Unread: unread,
		Items:  items,
	}, nil
}

func (f *fakeRepo) MarkNotificationRead(_ context.Context, userID, id int) error {
	n, ok := f.st.notifications[id]
	if !ok || n.UserID != userID {
		return errs.ErrNotFound
	}
	n.IsRead = true
	f.st.notifications[id] = n
	return nil
}

func (f *fakeRepo) MarkAllNotificationsRead(_ context.Context, userID int) (int, error) {
	count := 0
	for id, n := range f.st.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			f.st.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) DeleteNotification(_ context.Context, userID, id int) error {
	n, ok := f.st.notifications[id]
	if !ok || n.UserID != userID {
		return errs.ErrNotFound
	}
	delete(f.st.notifications, id)
	return nil
}

func (f *fakeRepo) CreateEmailLog(_ context.Context, l model.EmailLog) (model.EmailLog, error) {
	l.ID = f.st.nextID()
	f.st.emailLogs[l.ID] = l
	return l, nil
}

func (f *fakeRepo) UpdateEmailLog(_ context.Context, l model.EmailLog) error {
	existing, ok := f.st.emailLogs[l.ID]
	if !ok {
		return errs.ErrNotFound
	}
	existing.Status = l.Status
	existing.ErrorMessage = l.ErrorMessage
	existing.Attempts = l.Attempts
	existing.SentAt = l.SentAt
	f.st.emailLogs[l.ID] = existing
	return nil
}

// helpers for assertions

func (f *fakeRepo) book(id int) model.Book { return f.st.books[id] }
func (f *fakeRepo) borrowing(id int) model.Borrowing { return f.st.borrowings[id] }
func (f *fakeRepo) reservation(id int) model.Reservation { return f.st.reservations[id] }
func (f *fakeRepo) emailLog(id int) model.EmailLog { return f.st.emailLogs[id] }
func (f *fakeRepo) verificationFor(borrowingID int, typ model.TransactionType) model.TransactionVerification {
	var found model.TransactionVerification
	for _, v := range f.st.verifications {
		if v.BorrowingID == borrowingID && v.TransactionType == typ && v.ID > found.ID {
			found = v
		}
	}
	return found
}

func (f *fakeRepo) notificationsFor(userID int) []model.Notification {
	var out []model.Notification
	for _, n := range f.st.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
