package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns queries that must come back empty while the stress run is live.
func All(maxAttempts int) []Oracle {
	return []Oracle{
		{
			Name: "O1_document_matches_row",
			SQL: `SELECT id FROM outcomes
                  WHERE document->>'OutcomeId' IS DISTINCT FROM id::text
                     OR document->>'CustomerId' IS DISTINCT FROM customer_id::text
                     OR document->>'ActionPlanId' IS DISTINCT FROM action_plan_id::text`,
		},
		{
			Name: "O2_required_members_kept",
			SQL: `SELECT id FROM outcomes
                  WHERE document->>'TouchpointId' IS NULL
                     OR document->>'LastModifiedDate' IS NULL
                     OR document->>'LastModifiedTouchpointId' !~ '^[0-9]{10}$'`,
		},
		{
			Name: "O3_created_message_per_outcome",
			SQL: `SELECT o.id FROM outcomes o
                  WHERE NOT EXISTS (
                      SELECT 1 FROM outbox m
                      WHERE m.topic = 'outcome.created'
                        AND m.payload->>'URL' LIKE '%' || o.id::text)`,
		},
		{
			Name: "O4_no_write_to_read_only_customer",
			SQL: `SELECT o.id FROM outcomes o
                  JOIN customers c ON c.id = o.customer_id
                  WHERE c.date_of_termination IS NOT NULL`,
		},
		{
			Name: "O5_outbox_progress",
			SQL: fmt.Sprintf(`SELECT id::text FROM outbox
                  WHERE (status = 'pending' AND now() - created_at > interval '5 minutes')
                     OR (status = 'pending' AND attempts >= %d)
                     OR (status = 'processed' AND processed_at IS NULL)`, maxAttempts),
		},
		{
			Name: "O6_update_messages_carry_changes",
			SQL: `SELECT id::text FROM outbox
                  WHERE topic = 'outcome.updated' AND payload->'Changes' IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool, maxAttempts int) (string, string, error) {
	for _, o := range All(maxAttempts) {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
