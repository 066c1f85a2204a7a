package service

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/model"
	libraryRepo "github.com/Astemirdum/library-circulation/library/internal/repository"
	"github.com/Astemirdum/library-circulation/pkg/kafka"
	"github.com/Astemirdum/library-circulation/pkg/mailer"
)

var verificationSubjects = map[model.TransactionType]string{
	model.TransactionBorrow: "Verify Book Borrowing",
	model.TransactionReturn: "Verify Book Return",
	model.TransactionRenew:  "Verify Book Renewal",
}

var verificationActions = map[model.TransactionType]string{
	model.TransactionBorrow: "borrow",
	model.TransactionReturn: "return",
	model.TransactionRenew:  "renew",
}

type email struct {
	subject string
	text    string
	html    string
}

func verificationEmail(settings model.Settings, user model.User, book model.Book, v model.TransactionVerification, verifyURL string) email {
	action := verificationActions[v.TransactionType]
	text := fmt.Sprintf(
		"Hello %s,\n\nUse the code %s to confirm your request to %s %q by %s.\n"+
			"Enter it at %s. The code expires at %s.\n\n%s",
		user.FullName, v.VerificationCode, action, book.Title, book.Author,
		verifyURL, v.ExpiresAt.Format(time.RFC1123), settings.LibraryName,
	)
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Use the code <strong>%s</strong> to confirm your request to %s <em>%s</em> by %s.</p>"+
			"<p><a href=\"%s\">Verify transaction</a>. The code expires at %s.</p><p>%s</p>",
		html.EscapeString(user.FullName), v.VerificationCode, action, html.EscapeString(book.Title),
		html.EscapeString(book.Author), html.EscapeString(verifyURL),
		v.ExpiresAt.Format(time.RFC1123), html.EscapeString(settings.LibraryName),
	)
	return email{subject: verificationSubjects[v.TransactionType], text: text, html: body}
}

func reservationAvailableEmail(settings model.Settings, user model.User, book model.Book, expiry time.Time) email {
	text := fmt.Sprintf(
		"Hello %s,\n\n%q by %s is now available for you. Borrow it before %s or the hold lapses.\n\n%s",
		user.FullName, book.Title, book.Author, expiry.Format(time.RFC1123), settings.LibraryName,
	)
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p><em>%s</em> by %s is now available for you. Borrow it before %s or the hold lapses.</p><p>%s</p>",
		html.EscapeString(user.FullName), html.EscapeString(book.Title), html.EscapeString(book.Author),
		expiry.Format(time.RFC1123), html.EscapeString(settings.LibraryName),
	)
	return email{subject: "Book Available!", text: text, html: body}
}

func reservationConfirmedEmail(settings model.Settings, user model.User, book model.Book) email {
	text := fmt.Sprintf(
		"Hello %s,\n\nYou reserved %q by %s. We will email you as soon as a copy is available.\n\n%s",
		user.FullName, book.Title, book.Author, settings.LibraryName,
	)
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>You reserved <em>%s</em> by %s. We will email you as soon as a copy is available.</p><p>%s</p>",
		html.EscapeString(user.FullName), html.EscapeString(book.Title), html.EscapeString(book.Author),
		html.EscapeString(settings.LibraryName),
	)
	return email{subject: "Book Reserved", text: text, html: body}
}

// queueEmail records a pending email log inside the caller's transaction and
// stages the job for publishing after commit.
func (s *Service) queueEmail(ctx context.Context, repo libraryRepo.Repository, box *outbox, to model.User, e email) error {
	logEntry, err := repo.CreateEmailLog(ctx, model.EmailLog{
		Recipient: to.Email,
		Subject:   e.subject,
		Status:    model.EmailPending,
		CreatedAt: s.now(),
	})
	if err != nil {
		return err
	}
	job := model.EmailJob{
		ID:      uuid.NewString(),
		LogID:   logEntry.ID,
		To:      []string{to.Email},
		Subject: e.subject,
		Text:    e.text,
		HTML:    e.html,
	}
	if s.cfg.Debug && s.cfg.TestEmail != "" {
		job.Bcc = []string{s.cfg.TestEmail}
	}
	box.emails = append(box.emails, job)
	return nil
}

// flush publishes staged side effects. Failures never reach the caller.
func (s *Service) flush(ctx context.Context, box *outbox) {
	for _, job := range box.emails {
		if err := s.enqueuer.Enqueue(kafka.EmailTopic, job); err != nil {
			s.log.Error("enqueue email", zap.Error(err), zap.Int("log_id", job.LogID))
			s.recordEmail(ctx, model.EmailLog{
				ID:           job.LogID,
				Status:       model.EmailFailed,
				ErrorMessage: "enqueue: " + err.Error(),
				Attempts:     job.Attempt,
			})
		}
	}
	for _, ev := range box.events {
		if err := s.enqueuer.Enqueue(kafka.CirculationTopic, ev); err != nil {
			s.log.Warn("publish circulation event", zap.Error(err), zap.String("type", string(ev.Type)))
		}
	}
}

func (s *Service) recordEmail(ctx context.Context, l model.EmailLog) {
	if err := s.repo.UpdateEmailLog(ctx, l); err != nil {
		s.log.Error("update email log", zap.Error(err), zap.Int("log_id", l.ID))
	}
}

// DeliverEmail sends one outbox job. Failed sends are re-published to the
// retry topic with exponential backoff until the attempt budget is spent.
func (s *Service) DeliverEmail(ctx context.Context, job model.EmailJob) error {
	if s.sender == nil {
		return errors.New("email sender is not configured")
	}
	if wait := job.NotBefore.Sub(s.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	attempt := job.Attempt + 1
	err := s.sender.Send(ctx, mailer.Message{
		To:      job.To,
		Bcc:     job.Bcc,
		Subject: job.Subject,
		Text:    job.Text,
		HTML:    job.HTML,
	})
	now := s.now()
	if err == nil {
		s.recordEmail(ctx, model.EmailLog{ID: job.LogID, Status: model.EmailSent, Attempts: attempt, SentAt: &now})
		return nil
	}

	s.log.Warn("email delivery failed", zap.Error(err), zap.Int("log_id", job.LogID), zap.Int("attempt", attempt))
	if attempt >= s.cfg.EmailMaxAttempts {
		s.recordEmail(ctx, model.EmailLog{ID: job.LogID, Status: model.EmailFailed, ErrorMessage: err.Error(), Attempts: attempt})
		return nil
	}

	s.recordEmail(ctx, model.EmailLog{ID: job.LogID, Status: model.EmailPending, ErrorMessage: err.Error(), Attempts: attempt})
	job.Attempt = attempt
	job.NotBefore = now.Add(s.backoff(attempt))
	if qerr := s.enqueuer.Enqueue(kafka.EmailRetryTopic, job); qerr != nil {
		s.recordEmail(ctx, model.EmailLog{ID: job.LogID, Status: model.EmailFailed, ErrorMessage: "requeue: " + qerr.Error(), Attempts: attempt})
	}
	return nil
}

func (s *Service) backoff(attempt int) time.Duration {
	d := s.cfg.EmailBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if s.cfg.EmailMaxBackoff > 0 && d >= s.cfg.EmailMaxBackoff {
			return s.cfg.EmailMaxBackoff
		}
	}
	return d
}
