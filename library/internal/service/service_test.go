package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/model"
	"github.com/Astemirdum/library-circulation/library/internal/service"
	mock_service "github.com/Astemirdum/library-circulation/library/internal/service/mocks"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
)

const (
	alice = 1
	bob   = 2
	carol = 3

	bookSingle = 10
	bookMany   = 11
	bookNone   = 12
)

type harness struct {
	repo        *fakeRepo
	svc         *service.Service
	now         time.Time
	codes       []string
	emails      []model.EmailJob
	emailTopics []string
	events      []model.CirculationEvent
}

func newHarness(t *testing.T, opts ...service.Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		repo: newFakeRepo(),
		now:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	seed(h.repo)

	enq := mock_service.NewMockEnqueuer(ctrl)
	enq.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(topic string, v any) error {
		switch msg := v.(type) {
		case model.EmailJob:
			require.Contains(t, []string{kafka.EmailTopic, kafka.EmailRetryTopic}, topic)
			h.emails = append(h.emails, msg)
			h.emailTopics = append(h.emailTopics, topic)
		case model.CirculationEvent:
			require.Equal(t, kafka.CirculationTopic, topic)
			h.events = append(h.events, msg)
		default:
			t.Fatalf("unexpected message %T", v)
		}
		return nil
	}).AnyTimes()

	opts = append([]service.Option{
		service.WithClock(func() time.Time { return h.now }),
		service.WithCodeGenerator(func() string {
			code := fmt.Sprintf("CODE%02d", len(h.codes)+1)
			h.codes = append(h.codes, code)
			return code
		}),
		service.WithConfig(service.Config{
			BaseURL:          "http://library.test",
			EmailMaxAttempts: 3,
			EmailBackoff:     time.Second,
			EmailMaxBackoff:  time.Minute,
		}),
	}, opts...)
	h.svc = service.NewService(h.repo, enq, zap.NewExample().Named("test"), opts...)
	return h
}

func seed(r *fakeRepo) {
	for id, name := range map[int]string{alice: "Alice", bob: "Bob", carol: "Carol"} {
		r.st.users[id] = model.User{ID: id, Email: fmt.Sprintf("%s@example.com", name), FullName: name, Role: "student", IsActive: true}
	}
	r.st.books[bookSingle] = model.Book{ID: bookSingle, Title: "Dune", Author: "Frank Herbert", ISBN: "111", TotalCopies: 1, AvailableCopies: 1, IsActive: true, Category: "fiction"}
	r.st.books[bookMany] = model.Book{ID: bookMany, Title: "SICP", Author: "Abelson", ISBN: "222", TotalCopies: 3, AvailableCopies: 3, IsActive: true, Category: "cs"}
	r.st.books[bookNone] = model.Book{ID: bookNone, Title: "Neuromancer", Author: "William Gibson", ISBN: "333", TotalCopies: 1, AvailableCopies: 0, IsActive: true, Category: "fiction"}
	r.st.seq = 100
	for k, v := range map[string]string{
		model.SettingMaxBorrowDays:   "14",
		model.SettingMaxBooksPerUser: "5",
		model.SettingFinePerDay:      "5",
		model.SettingMaxRenewals:     "2",
	} {
		r.st.settings[k] = v
	}
}

func (h *harness) lastCode() string {
	return h.codes[len(h.codes)-1]
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) eventTypes() []model.CirculationEventType {
	out := make([]model.CirculationEventType, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

// borrowAndVerify runs a full confirmed borrow and returns the borrowing id.
func (h *harness) borrowAndVerify(t *testing.T, userID, bookID int) int {
	t.Helper()
	res, err := h.svc.Borrow(context.Background(), userID, bookID)
	require.NoError(t, err)
	_, err = h.svc.Verify(context.Background(), userID, h.lastCode())
	require.NoError(t, err)
	return res.Borrowing.ID
}

// returnAndVerify runs a full confirmed return.
func (h *harness) returnAndVerify(t *testing.T, userID, borrowingID int) model.VerifyResult {
	t.Helper()
	_, err := h.svc.Return(context.Background(), userID, borrowingID)
	require.NoError(t, err)
	res, err := h.svc.Verify(context.Background(), userID, h.lastCode())
	require.NoError(t, err)
	return res
}

func requireCopiesInRange(t *testing.T, r *fakeRepo) {
	t.Helper()
	for _, b := range r.st.books {
		require.GreaterOrEqual(t, b.AvailableCopies, 0, b.Title)
		require.LessOrEqual(t, b.AvailableCopies, b.TotalCopies, b.Title)
	}
}
