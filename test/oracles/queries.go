// Package oracles defines the SQL invariants checked continuously during
// the stress run. A non-empty result set means an invariant broke.
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

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_contact_per_day",
			SQL: `SELECT entity_id, occurred_on, COUNT(*) FROM contact_events
                  GROUP BY entity_id, occurred_on HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_stage_bounds",
			SQL:  `SELECT id, stage FROM entities WHERE stage < 0 OR stage > 4`,
		},
		{
			Name: "O3_orphan_contact_events",
			SQL: `SELECT c.id FROM contact_events c
                  LEFT JOIN entities e ON e.id = c.entity_id
                  WHERE e.id IS NULL`,
		},
		{
			Name: "O4_trigger_never_on_weekend",
			SQL: `SELECT id, next_trigger_date FROM entities
                  WHERE stage > 0
                    AND next_trigger_date IS NOT NULL
                    AND EXTRACT(ISODOW FROM next_trigger_date) IN (6, 7)`,
		},
		{
			Name: "O5_stage_advance_implies_contact",
			SQL: `SELECT e.id, e.stage FROM entities e
                  WHERE e.stage > 0
                    AND NOT EXISTS (SELECT 1 FROM contact_events c WHERE c.entity_id = e.id)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
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
