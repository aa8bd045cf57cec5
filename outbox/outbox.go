// Package outbox records change messages in the same transaction as the
// document write and forwards them to the change queue afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	TopicOutcomeCreated = "outcome.created"
	TopicOutcomeUpdated = "outcome.updated"
)

// Row statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusDead      = "dead"
)

// ChangeMessage is the body published for every create and patch.
type ChangeMessage struct {
	TitleMessage     string          `json:"TitleMessage"`
	CustomerGUID     string          `json:"CustomerGuid"`
	LastModifiedDate time.Time       `json:"LastModifiedDate"`
	URL              string          `json:"URL"`
	IsNewCustomer    bool            `json:"IsNewCustomer"`
	TouchpointID     string          `json:"TouchpointId"`
	Changes          json.RawMessage `json:"Changes,omitempty"`
}

// Message is one outbox row.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Enqueue inserts the message inside the caller's transaction.
func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic string, msg ChangeMessage) error {
	if topic == "" {
		return fmt.Errorf("outbox: missing topic")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (topic, payload)
VALUES ($1, $2);
`

	if _, err := tx.Exec(ctx, insertSQL, topic, payload); err != nil {
		return fmt.Errorf("outbox: insert message: %w", err)
	}
	return nil
}
