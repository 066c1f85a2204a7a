package handler

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-circulation/library/internal/model"
)

type deliverEmail func(ctx context.Context, job model.EmailJob) error

// EmailConsumer drains the email topic for the mailer consumer group.
type EmailConsumer struct {
	deliver deliverEmail
	log     *zap.Logger
}

func NewEmailConsumer(deliver deliverEmail, log *zap.Logger) *EmailConsumer {
	return &EmailConsumer{
		deliver: deliver,
		log:     log.Named("consumer"),
	}
}

func (consumer *EmailConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *EmailConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *EmailConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var job model.EmailJob
			if err := json.Unmarshal(message.Value, &job); err != nil {
				consumer.log.Error("decode email job", zap.Error(err), zap.Int64("offset", message.Offset))
				session.MarkMessage(message, "")
				continue
			}

			if err := consumer.deliver(session.Context(), job); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					// left unmarked so the job is redelivered after rebalance
					return nil
				}
				consumer.log.Error("deliver email", zap.Error(err), zap.String("job_id", job.ID))
			}

			consumer.log.Debug("message claimed",
				zap.String("job_id", job.ID), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
