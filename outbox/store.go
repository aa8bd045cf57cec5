package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimResult counts what happened to one claimed batch.
type ClaimResult struct {
	Claimed   int
	Processed int
	Failed    int
	Dead      int
}

// PGStore hands pending rows to a callback under a row lock.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ClaimPending locks up to limit pending rows, calls fn for each and records
// the outcome. Rows locked by another forwarder are skipped. A row whose
// attempts reach maxAttempts is marked dead.
func (s *PGStore) ClaimPending(ctx context.Context, limit, maxAttempts int, fn func(context.Context, Message) error) (ClaimResult, error) {
	var res ClaimResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectSQL = `
		SELECT id::text, topic, payload::text, status, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	rows, err := tx.Query(ctx, selectSQL, limit)
	if err != nil {
		return res, fmt.Errorf("outbox: claim: %w", err)
	}
	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m       Message
			payload string
		)
		if err := rows.Scan(&m.ID, &m.Topic, &payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return res, fmt.Errorf("outbox: scan: %w", err)
		}
		m.Payload = []byte(payload)
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("outbox: iterate: %w", err)
	}
	res.Claimed = len(msgs)

	for _, m := range msgs {
		if ferr := fn(ctx, m); ferr != nil {
			status := StatusPending
			if m.Attempts+1 >= maxAttempts {
				status = StatusDead
				res.Dead++
			} else {
				res.Failed++
			}
			if _, err := tx.Exec(ctx, `
				UPDATE outbox
				SET attempts = attempts + 1, last_error = $1, status = $2, last_attempt = now()
				WHERE id = $3
			`, ferr.Error(), status, m.ID); err != nil {
				return res, fmt.Errorf("outbox: record failure: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox
			SET status = 'processed', attempts = attempts + 1, last_attempt = now(), processed_at = now()
			WHERE id = $1
		`, m.ID); err != nil {
			return res, fmt.Errorf("outbox: mark processed: %w", err)
		}
		res.Processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("outbox: commit: %w", err)
	}
	return res, nil
}
