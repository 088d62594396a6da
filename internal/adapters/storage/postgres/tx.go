package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"loyalty-points-system/internal/core/domain"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tx struct {
	q querier
}

const accountColumns = `id, utorid, name, role, points, verified, suspicious`

func scanAccount(row *sql.Row) (domain.Account, error) {
	var a domain.Account
	var role string
	err := row.Scan(&a.ID, &a.UTORid, &a.Name, &role, &a.Points, &a.Verified, &a.Suspicious)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrAccountNotFound
	}
	if err != nil {
		return a, fmt.Errorf("failed to load account: %w", err)
	}
	a.Role = domain.Role(role)
	return a, nil
}

func (t *tx) AccountByID(ctx context.Context, id int64) (domain.Account, error) {
	return scanAccount(t.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *tx) AccountByUTORid(ctx context.Context, utorid string) (domain.Account, error) {
	return scanAccount(t.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(utorid) = lower($1) FOR UPDATE`, utorid))
}

// AddPoints relies on the guarded UPDATE so the balance never crosses zero even without a
// prior lock on the row.
func (t *tx) AddPoints(ctx context.Context, accountID, delta int64) (int64, error) {
	var balance int64
	err := t.q.QueryRowContext(ctx,
		`UPDATE accounts SET points = points + $2 WHERE id = $1 AND points + $2 >= 0 RETURNING points`,
		accountID, delta,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	err = t.q.QueryRowContext(ctx, `SELECT points FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, domain.ErrInsufficientPoints
}

const promotionColumns = `id, name, type, start_time, end_time, min_spending, rate, points`

func scanPromotion(scan func(dest ...any) error) (domain.Promotion, error) {
	var (
		p       domain.Promotion
		typ     string
		points  sql.NullInt64
		minimum decimal.NullDecimal
		rate    decimal.NullDecimal
	)
	if err := scan(&p.ID, &p.Name, &typ, &p.StartTime, &p.EndTime, &minimum, &rate, &points); err != nil {
		return p, err
	}
	p.Type = domain.PromotionType(typ)
	p.MinSpending = minimum
	p.Rate = rate
	if points.Valid {
		p.Points = &points.Int64
	}
	return p, nil
}

// PromotionsByIDs skips ids that do not exist; callers compare lengths.
func (t *tx) PromotionsByIDs(ctx context.Context, ids []int64) ([]domain.Promotion, error) {
	out := make([]domain.Promotion, 0, len(ids))
	for _, id := range ids {
		row := t.q.QueryRowContext(ctx, `SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id)
		p, err := scanPromotion(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load promotion %d: %w", id, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *tx) PromotionsByType(ctx context.Context, promoType domain.PromotionType) ([]domain.Promotion, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE type = $1 ORDER BY id`, string(promoType))
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	defer rows.Close()

	var out []domain.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *tx) PromotionUsed(ctx context.Context, promotionID, accountID int64) (bool, error) {
	var used bool
	err := t.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM promotion_usages WHERE promotion_id = $1 AND account_id = $2)`,
		promotionID, accountID,
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("failed to check promotion usage: %w", err)
	}
	return used, nil
}

// RecordPromotionUsage leans on the (promotion_id, account_id) primary key. Repeating the
// call for the same transaction is a no-op.
func (t *tx) RecordPromotionUsage(ctx context.Context, promotionID, accountID, transactionID int64) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO promotion_usages (promotion_id, account_id, transaction_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (promotion_id, account_id) DO NOTHING`,
		promotionID, accountID, transactionID,
	)
	if isUniqueViolation(err) {
		return domain.ErrPromotionAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("failed to record promotion usage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	var existing int64
	err = t.q.QueryRowContext(ctx,
		`SELECT transaction_id FROM promotion_usages WHERE promotion_id = $1 AND account_id = $2`,
		promotionID, accountID,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to read promotion usage: %w", err)
	}
	if existing != transactionID {
		return domain.ErrPromotionAlreadyUsed
	}
	return nil
}

func (t *tx) EventByID(ctx context.Context, id int64) (domain.Event, error) {
	var e domain.Event
	err := t.q.QueryRowContext(ctx,
		`SELECT id, name, points_remain, points_awarded FROM events WHERE id = $1 FOR UPDATE`, id,
	).Scan(&e.ID, &e.Name, &e.PointsRemain, &e.PointsAwarded)
	if errors.Is(err, sql.ErrNoRows) {
		return e, domain.ErrEventNotFound
	}
	if err != nil {
		return e, fmt.Errorf("failed to load event: %w", err)
	}

	if e.Organizers, err = t.memberIDs(ctx, `SELECT account_id FROM event_organizers WHERE event_id = $1 ORDER BY account_id`, id); err != nil {
		return e, err
	}
	if e.Guests, err = t.memberIDs(ctx, `SELECT account_id FROM event_guests WHERE event_id = $1 ORDER BY account_id`, id); err != nil {
		return e, err
	}
	return e, nil
}

func (t *tx) memberIDs(ctx context.Context, query string, eventID int64) ([]int64, error) {
	rows, err := t.q.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *tx) ApplyEventAward(ctx context.Context, eventID, total int64) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE events
		SET points_remain = points_remain - $2, points_awarded = points_awarded + $2
		WHERE id = $1 AND points_remain >= $2`,
		eventID, total,
	)
	if err != nil {
		return fmt.Errorf("failed to update event pool: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update event pool: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := t.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check event: %w", err)
		}
		if !exists {
			return domain.ErrEventNotFound
		}
		return domain.ErrInsufficientPool
	}
	return nil
}

// row is the flat storage shape of a domain.Transaction.
type row struct {
	typ         string
	spent       decimal.NullDecimal
	relatedID   sql.NullInt64
	processed   sql.NullBool
	processedBy sql.NullInt64
	processedAt sql.NullTime
}

func flatten(record domain.Transaction) row {
	r := row{typ: string(record.Type())}
	if id := record.RelatedID(); id != nil {
		r.relatedID = sql.NullInt64{Int64: *id, Valid: true}
	}
	switch d := record.Details.(type) {
	case domain.PurchaseDetails:
		r.spent = decimal.NewNullDecimal(d.Spent)
	case domain.RedemptionDetails:
		r.processed = sql.NullBool{Bool: d.Processed, Valid: true}
		if d.ProcessedBy != nil {
			r.processedBy = sql.NullInt64{Int64: *d.ProcessedBy, Valid: true}
		}
		if d.ProcessedAt != nil {
			r.processedAt = sql.NullTime{Time: *d.ProcessedAt, Valid: true}
		}
	}
	return r
}

func (r row) details(promotionIDs []int64) (domain.Details, error) {
	switch domain.TransactionType(r.typ) {
	case domain.TypePurchase:
		return domain.PurchaseDetails{Spent: r.spent.Decimal, PromotionIDs: promotionIDs}, nil
	case domain.TypeRedemption:
		d := domain.RedemptionDetails{Processed: r.processed.Bool}
		if r.processedBy.Valid {
			d.ProcessedBy = &r.processedBy.Int64
		}
		if r.processedAt.Valid {
			d.ProcessedAt = &r.processedAt.Time
		}
		return d, nil
	case domain.TypeAdjustment:
		return domain.AdjustmentDetails{RelatedTransactionID: r.relatedID.Int64, PromotionIDs: promotionIDs}, nil
	case domain.TypeTransfer:
		return domain.TransferDetails{CounterpartyID: r.relatedID.Int64}, nil
	case domain.TypeEvent:
		return domain.EventAwardDetails{EventID: r.relatedID.Int64}, nil
	}
	return nil, fmt.Errorf("unknown transaction type %q", r.typ)
}

func (t *tx) CreateTransaction(ctx context.Context, record *domain.Transaction) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	r := flatten(*record)
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO transactions
		    (account_id, type, amount, spent, related_id, remark, created_by, created_at, suspicious, processed, processed_by, processed_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		record.AccountID, r.typ, record.Amount, r.spent, r.relatedID, record.Remark,
		record.CreatedBy, record.CreatedAt, record.Suspicious, r.processed, r.processedBy, r.processedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for _, promotionID := range record.PromotionIDs() {
		if _, err := t.q.ExecContext(ctx,
			`INSERT INTO transaction_promotions (transaction_id, promotion_id) VALUES ($1, $2)`,
			record.ID, promotionID,
		); err != nil {
			return fmt.Errorf("failed to link promotion %d: %w", promotionID, err)
		}
	}
	return nil
}

func (t *tx) TransactionByID(ctx context.Context, id int64) (domain.Transaction, error) {
	var (
		record domain.Transaction
		r      row
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, account_id, type, amount, spent, related_id, remark, created_by, created_at,
		       suspicious, processed, processed_by, processed_at
		FROM transactions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&record.ID, &record.AccountID, &r.typ, &record.Amount, &r.spent, &r.relatedID, &record.Remark,
		&record.CreatedBy, &record.CreatedAt, &record.Suspicious, &r.processed, &r.processedBy, &r.processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return record, domain.ErrTransactionNotFound
	}
	if err != nil {
		return record, fmt.Errorf("failed to load transaction: %w", err)
	}

	var promotionIDs []int64
	if typ := domain.TransactionType(r.typ); typ == domain.TypePurchase || typ == domain.TypeAdjustment {
		if promotionIDs, err = t.promotionIDs(ctx, record.ID); err != nil {
			return record, err
		}
	}
	record.Details, err = r.details(promotionIDs)
	return record, err
}

func (t *tx) promotionIDs(ctx context.Context, transactionID int64) ([]int64, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT promotion_id FROM transaction_promotions WHERE transaction_id = $1 ORDER BY promotion_id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction promotions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction promotion: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *tx) SetTransactionSuspicious(ctx context.Context, id int64, suspicious bool) error {
	res, err := t.q.ExecContext(ctx, `UPDATE transactions SET suspicious = $2 WHERE id = $1`, id, suspicious)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// MarkRedemptionProcessed only moves a pending redemption. When no row matches, the
// follow-up read tells a missing record from the wrong kind or an already processed one.
func (t *tx) MarkRedemptionProcessed(ctx context.Context, id, processedBy int64, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE transactions
		SET processed = TRUE, processed_by = $2, processed_at = $3
		WHERE id = $1 AND type = 'redemption' AND processed = FALSE`,
		id, processedBy, at,
	)
	if err != nil {
		return fmt.Errorf("failed to process redemption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to process redemption: %w", err)
	}
	if n == 1 {
		return nil
	}

	var (
		typ       string
		processed sql.NullBool
	)
	err = t.q.QueryRowContext(ctx, `SELECT type, processed FROM transactions WHERE id = $1`, id).Scan(&typ, &processed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrTransactionNotFound
	case err != nil:
		return fmt.Errorf("failed to read transaction: %w", err)
	case typ != string(domain.TypeRedemption):
		return domain.ErrWrongTransactionType
	default:
		return domain.ErrAlreadyProcessed
	}
}
