package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound covers every lookup miss. Handlers answer it with 204.
	ErrNotFound = errors.New("outcome: not found")

	ErrCustomerNotFound    = fmt.Errorf("%w: customer", ErrNotFound)
	ErrInteractionNotFound = fmt.Errorf("%w: interaction", ErrNotFound)
	ErrActionPlanNotFound  = fmt.Errorf("%w: action plan", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("%w: session", ErrNotFound)
	ErrOutcomeNotFound     = fmt.Errorf("%w: outcome", ErrNotFound)

	// ErrCustomerReadOnly signals a terminated customer that no longer accepts writes.
	ErrCustomerReadOnly = errors.New("outcome: customer is read only")
)

// Repository is the document store plus the sibling lookups the routes need.
type Repository interface {
	CustomerExists(ctx context.Context, customerID string) (bool, error)
	CustomerReadOnly(ctx context.Context, customerID string) (bool, error)
	InteractionExistsForCustomer(ctx context.Context, interactionID, customerID string) (bool, error)
	ActionPlanExistsForCustomer(ctx context.Context, actionPlanID, interactionID, customerID string) (bool, error)
	SessionCreatedAt(ctx context.Context, customerID, sessionID string) (time.Time, error)

	List(ctx context.Context, customerID, actionPlanID string) ([]Outcome, error)
	Get(ctx context.Context, customerID, actionPlanID, outcomeID string) (Outcome, error)
	GetJSONForUpdate(ctx context.Context, tx pgx.Tx, scope Scope, outcomeID string) (string, error)
	Create(ctx context.Context, tx pgx.Tx, interactionID string, o Outcome) (Outcome, error)
	Replace(ctx context.Context, tx pgx.Tx, outcomeID, document string) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) exists(ctx context.Context, what, query string, args ...any) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("outcome: check %s: %w", what, err)
	}
	return ok, nil
}

func (r *PGRepository) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	return r.exists(ctx, "customer", `SELECT EXISTS (SELECT 1 FROM customers WHERE id=$1)`, customerID)
}

// CustomerReadOnly reports whether the customer has a termination date.
func (r *PGRepository) CustomerReadOnly(ctx context.Context, customerID string) (bool, error) {
	return r.exists(ctx, "customer read only",
		`SELECT EXISTS (SELECT 1 FROM customers WHERE id=$1 AND date_of_termination IS NOT NULL)`, customerID)
}

func (r *PGRepository) InteractionExistsForCustomer(ctx context.Context, interactionID, customerID string) (bool, error) {
	return r.exists(ctx, "interaction",
		`SELECT EXISTS (SELECT 1 FROM interactions WHERE id=$1 AND customer_id=$2)`, interactionID, customerID)
}

func (r *PGRepository) ActionPlanExistsForCustomer(ctx context.Context, actionPlanID, interactionID, customerID string) (bool, error) {
	return r.exists(ctx, "action plan",
		`SELECT EXISTS (SELECT 1 FROM action_plans WHERE id=$1 AND interaction_id=$2 AND customer_id=$3)`,
		actionPlanID, interactionID, customerID)
}

func (r *PGRepository) SessionCreatedAt(ctx context.Context, customerID, sessionID string) (time.Time, error) {
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, `SELECT created_at FROM sessions WHERE id=$1 AND customer_id=$2`, sessionID, customerID).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrSessionNotFound
		}
		return time.Time{}, fmt.Errorf("outcome: query session: %w", err)
	}
	return createdAt, nil
}

func (r *PGRepository) List(ctx context.Context, customerID, actionPlanID string) ([]Outcome, error) {
	const query = `
		SELECT document::text
		FROM outcomes
		WHERE customer_id = $1 AND action_plan_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, customerID, actionPlanID)
	if err != nil {
		return nil, fmt.Errorf("outcome: list: %w", err)
	}
	defer rows.Close()

	list := []Outcome{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("outcome: scan: %w", err)
		}
		o, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outcome: iterate: %w", err)
	}
	return list, nil
}

func (r *PGRepository) Get(ctx context.Context, customerID, actionPlanID, outcomeID string) (Outcome, error) {
	const query = `
		SELECT document::text
		FROM outcomes
		WHERE id = $1 AND customer_id = $2 AND action_plan_id = $3
	`

	var doc string
	if err := r.pool.QueryRow(ctx, query, outcomeID, customerID, actionPlanID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Outcome{}, ErrOutcomeNotFound
		}
		return Outcome{}, fmt.Errorf("outcome: get: %w", err)
	}
	return decodeDocument(doc)
}

// GetJSONForUpdate returns the raw stored document and locks the row until tx ends.
func (r *PGRepository) GetJSONForUpdate(ctx context.Context, tx pgx.Tx, scope Scope, outcomeID string) (string, error) {
	const query = `
		SELECT document::text
		FROM outcomes
		WHERE id = $1 AND customer_id = $2 AND interaction_id = $3 AND action_plan_id = $4
		FOR UPDATE
	`

	var doc string
	err := tx.QueryRow(ctx, query, outcomeID, scope.CustomerID, scope.InteractionID, scope.ActionPlanID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOutcomeNotFound
		}
		return "", fmt.Errorf("outcome: get for update: %w", err)
	}
	return doc, nil
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, interactionID string, o Outcome) (Outcome, error) {
	doc, err := json.Marshal(o)
	if err != nil {
		return Outcome{}, fmt.Errorf("outcome: encode: %w", err)
	}

	const insertSQL = `
		INSERT INTO outcomes (id, customer_id, interaction_id, action_plan_id, document)
		VALUES ($1, $2, $3, $4, $5::json)
	`
	if _, err := tx.Exec(ctx, insertSQL, o.OutcomeID, o.CustomerID, interactionID, o.ActionPlanID, string(doc)); err != nil {
		return Outcome{}, fmt.Errorf("outcome: insert: %w", err)
	}
	return o, nil
}

func (r *PGRepository) Replace(ctx context.Context, tx pgx.Tx, outcomeID, document string) error {
	tag, err := tx.Exec(ctx, `UPDATE outcomes SET document=$1::json, updated_at=now() WHERE id=$2`, document, outcomeID)
	if err != nil {
		return fmt.Errorf("outcome: replace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutcomeNotFound
	}
	return nil
}

func decodeDocument(doc string) (Outcome, error) {
	var o Outcome
	if err := json.Unmarshal([]byte(doc), &o); err != nil {
		return Outcome{}, fmt.Errorf("outcome: decode document: %w", err)
	}
	return o, nil
}
