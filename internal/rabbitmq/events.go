package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// VerificationRequiredEvent is published when a tracked session is gated
// behind phone verification.
type VerificationRequiredEvent struct {
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	FingerprintHash string    `json:"fingerprint_hash"`
	IPAddress       string    `json:"ip_address"`
	OccurredAt      time.Time `json:"occurred_at"`
}

var ErrMalformedEvent = errors.New("malformed event")

func encodeEvent(evt VerificationRequiredEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Type:         RoutingKeyVerification,
		Timestamp:    evt.OccurredAt,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}, nil
}

// DecodeVerificationRequired parses a delivery body. Events without a user
// id or email are malformed.
func DecodeVerificationRequired(body []byte) (VerificationRequiredEvent, error) {
	var evt VerificationRequiredEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return evt, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.UserID == "" || evt.Email == "" {
		return evt, fmt.Errorf("%w: missing user_id or email", ErrMalformedEvent)
	}
	return evt, nil
}
