package postgres

import (
	"context"
	"fmt"
	"time"
)

// BalanceDrift is an account whose stored balance differs from the sum of its applied
// transactions. Balances seeded outside the ledger show up here too.
type BalanceDrift struct {
	AccountID int64
	UTORid    string
	Stored    int64
	Ledger    int64
}

// PoolMismatch is an event whose awarded counter disagrees with its award records.
type PoolMismatch struct {
	EventID  int64
	Name     string
	Awarded  int64
	Recorded int64
}

type PendingRedemption struct {
	TransactionID int64
	AccountID     int64
	Amount        int64
	CreatedAt     time.Time
}

// Auditor runs read-only consistency checks over the ledger tables.
type Auditor struct {
	r *Repository
}

func (r *Repository) Auditor() *Auditor {
	return &Auditor{r: r}
}

const balanceDriftQuery = `
	SELECT a.id, a.utorid, a.points, COALESCE(SUM(t.amount), 0) AS ledger
	FROM accounts a
	LEFT JOIN transactions t
	       ON t.account_id = a.id
	      AND t.suspicious = FALSE
	      AND (t.type <> 'redemption' OR t.processed = TRUE)
	GROUP BY a.id, a.utorid, a.points
	HAVING a.points <> COALESCE(SUM(t.amount), 0)
	ORDER BY a.id`

func (a *Auditor) BalanceDrift(ctx context.Context) ([]BalanceDrift, error) {
	rows, err := a.r.db.QueryContext(ctx, balanceDriftQuery)
	if err != nil {
		return nil, fmt.Errorf("balance drift query: %w", err)
	}
	defer rows.Close()

	var out []BalanceDrift
	for rows.Next() {
		var d BalanceDrift
		if err := rows.Scan(&d.AccountID, &d.UTORid, &d.Stored, &d.Ledger); err != nil {
			return nil, fmt.Errorf("scan balance drift: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const poolMismatchQuery = `
	SELECT e.id, e.name, e.points_awarded, COALESCE(SUM(t.amount), 0) AS recorded
	FROM events e
	LEFT JOIN transactions t ON t.type = 'event' AND t.related_id = e.id
	GROUP BY e.id, e.name, e.points_awarded
	HAVING e.points_awarded <> COALESCE(SUM(t.amount), 0)
	ORDER BY e.id`

func (a *Auditor) PoolMismatches(ctx context.Context) ([]PoolMismatch, error) {
	rows, err := a.r.db.QueryContext(ctx, poolMismatchQuery)
	if err != nil {
		return nil, fmt.Errorf("pool mismatch query: %w", err)
	}
	defer rows.Close()

	var out []PoolMismatch
	for rows.Next() {
		var m PoolMismatch
		if err := rows.Scan(&m.EventID, &m.Name, &m.Awarded, &m.Recorded); err != nil {
			return nil, fmt.Errorf("scan pool mismatch: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const pendingRedemptionsQuery = `
	SELECT id, account_id, amount, created_at
	FROM transactions
	WHERE type = 'redemption' AND processed = FALSE AND created_at < $1
	ORDER BY created_at`

// PendingRedemptions lists requests still unprocessed after olderThan.
func (a *Auditor) PendingRedemptions(ctx context.Context, olderThan time.Duration) ([]PendingRedemption, error) {
	rows, err := a.r.db.QueryContext(ctx, pendingRedemptionsQuery, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("pending redemptions query: %w", err)
	}
	defer rows.Close()

	var out []PendingRedemption
	for rows.Next() {
		var p PendingRedemption
		if err := rows.Scan(&p.TransactionID, &p.AccountID, &p.Amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending redemption: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
