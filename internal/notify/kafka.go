package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// credentialErrorEvent is the message published when a credential becomes
// unhealthy. The notification service owns delivery and content.
type credentialErrorEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccountEmail string    `json:"account_email"`
	Message      string    `json:"message"`
	OccurredAt   time.Time `json:"occurred_at"`
}

const eventTypeCredentialError = "calendar.credential_error"

// KafkaNotifier publishes credential failures to the platform notification topic
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaNotifier creates a notifier writing to the given brokers and topic
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// CredentialError publishes one terminal-error notification for the credential
func (n *KafkaNotifier) CredentialError(ctx context.Context, cred *domain.Credential, message string) error {
	event := credentialErrorEvent{
		ID:           uuid.New().String(),
		Type:         eventTypeCredentialError,
		UserID:       cred.UserID,
		Provider:     cred.Provider,
		AccountEmail: cred.AccountEmail,
		Message:      message,
		OccurredAt:   time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(cred.UserID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("credential error notification published",
		zap.String("user_id", cred.UserID),
	)
	return nil
}

// Close flushes and closes the underlying writer
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
