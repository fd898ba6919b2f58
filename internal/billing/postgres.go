package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists billing data in Postgres.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) PostgresStore {
	return PostgresStore{DB: db}
}

func (s PostgresStore) ListPlans(ctx context.Context) ([]Plan, error) {
	const q = `SELECT id, code, name, price_cents, currency, duration_days, active
	           FROM plans
	           WHERE active = TRUE
	           ORDER BY price_cents ASC`
	rows, err := s.DB.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.PriceCents, &p.Currency, &p.DurationDays, &p.Active); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (s PostgresStore) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	const q = `SELECT id, code, name, price_cents, currency, duration_days, active
	           FROM plans WHERE id = $1`
	var p Plan
	err := s.DB.QueryRow(ctx, q, id).Scan(&p.ID, &p.Code, &p.Name, &p.PriceCents, &p.Currency, &p.DurationDays, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	if err != nil {
		return Plan{}, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (s PostgresStore) CreatePaymentRequest(ctx context.Context, p CreateRequestParams) (PaymentRequest, error) {
	const q = `INSERT INTO payment_requests
	             (id, user_id, plan_id, amount_cents, currency, reference, status, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	req := PaymentRequest{
		ID:          uuid.New(),
		UserID:      p.UserID,
		PlanID:      p.PlanID,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		Reference:   p.Reference,
		Status:      StatusPending,
		CreatedAt:   p.Now,
	}
	_, err := s.DB.Exec(ctx, q,
		req.ID, req.UserID, req.PlanID, req.AmountCents, req.Currency, req.Reference, req.Status, req.CreatedAt)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("create payment request: %w", err)
	}
	return req, nil
}

func (s PostgresStore) GetPaymentRequest(ctx context.Context, id uuid.UUID) (PaymentRequest, error) {
	const q = requestColumns + ` WHERE id = $1`
	row := s.DB.QueryRow(ctx, q, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentRequest{}, ErrNotFound
	}
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("get payment request: %w", err)
	}
	return req, nil
}

func (s PostgresStore) ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]PaymentRequest, error) {
	const q = requestColumns + ` WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests by user: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (s PostgresStore) ListPendingRequests(ctx context.Context, limit int) ([]PaymentRequest, error) {
	const q = requestColumns + ` WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1`
	rows, err := s.DB.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ApproveRequest flips the request to approved and extends the subscription
// in one transaction. The status guard in the UPDATE makes concurrent
// reviews of the same request resolve to a single winner.
func (s PostgresStore) ApproveRequest(ctx context.Context, p ReviewParams) (PaymentRequest, Subscription, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return PaymentRequest{}, Subscription{}, fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.reviewInTx(ctx, tx, p, StatusApproved)
	if err != nil {
		return PaymentRequest{}, Subscription{}, err
	}

	var durationDays int
	const planQ = `SELECT duration_days FROM plans WHERE id = $1`
	if err := tx.QueryRow(ctx, planQ, req.PlanID).Scan(&durationDays); err != nil {
		return PaymentRequest{}, Subscription{}, fmt.Errorf("load plan duration: %w", err)
	}

	// New subscriptions start now; active ones extend from their current
	// expiry so back-to-back approvals stack.
	const subQ = `INSERT INTO subscriptions (user_id, plan_id, status, expires_at, updated_at)
	              VALUES ($1, $2, 'active', $3 + make_interval(days => $4), $3)
	              ON CONFLICT (user_id) DO UPDATE SET
	                plan_id    = EXCLUDED.plan_id,
	                status     = 'active',
	                expires_at = GREATEST(subscriptions.expires_at, $3) + make_interval(days => $4),
	                updated_at = $3
	              RETURNING user_id, plan_id, status, expires_at, updated_at`
	var sub Subscription
	err = tx.QueryRow(ctx, subQ, req.UserID, req.PlanID, p.Now, durationDays).
		Scan(&sub.UserID, &sub.PlanID, &sub.Status, &sub.ExpiresAt, &sub.UpdatedAt)
	if err != nil {
		return PaymentRequest{}, Subscription{}, fmt.Errorf("upsert subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return PaymentRequest{}, Subscription{}, fmt.Errorf("commit approve tx: %w", err)
	}
	return req, sub, nil
}

func (s PostgresStore) RejectRequest(ctx context.Context, p ReviewParams) (PaymentRequest, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("begin reject tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := s.reviewInTx(ctx, tx, p, StatusRejected)
	if err != nil {
		return PaymentRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PaymentRequest{}, fmt.Errorf("commit reject tx: %w", err)
	}
	return req, nil
}

func (s PostgresStore) reviewInTx(ctx context.Context, tx pgx.Tx, p ReviewParams, status string) (PaymentRequest, error) {
	const q = `UPDATE payment_requests
	           SET status = $2, review_note = $3, reviewed_by = $4, reviewed_at = $5
	           WHERE id = $1 AND status = 'pending'
	           RETURNING id, user_id, plan_id, amount_cents, currency, reference, status,
	                     review_note, reviewed_by, reviewed_at, created_at`
	row := tx.QueryRow(ctx, q, p.RequestID, status, p.Note, p.ReviewerID, p.Now)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the request does not exist or it was already reviewed.
		var exists bool
		const checkQ = `SELECT EXISTS (SELECT 1 FROM payment_requests WHERE id = $1)`
		if cerr := tx.QueryRow(ctx, checkQ, p.RequestID).Scan(&exists); cerr != nil {
			return PaymentRequest{}, fmt.Errorf("check request: %w", cerr)
		}
		if !exists {
			return PaymentRequest{}, ErrNotFound
		}
		return PaymentRequest{}, ErrConflict
	}
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("review request: %w", err)
	}
	return req, nil
}

func (s PostgresStore) GetSubscription(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	const q = `SELECT user_id, plan_id, status, expires_at, updated_at
	           FROM subscriptions WHERE user_id = $1`
	var sub Subscription
	err := s.DB.QueryRow(ctx, q, userID).
		Scan(&sub.UserID, &sub.PlanID, &sub.Status, &sub.ExpiresAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

const requestColumns = `SELECT id, user_id, plan_id, amount_cents, currency, reference, status,
	                              review_note, reviewed_by, reviewed_at, created_at
	                       FROM payment_requests`

func scanRequest(row pgx.Row) (PaymentRequest, error) {
	var (
		req  PaymentRequest
		note *string
	)
	err := row.Scan(&req.ID, &req.UserID, &req.PlanID, &req.AmountCents, &req.Currency,
		&req.Reference, &req.Status, &note, &req.ReviewedBy, &req.ReviewedAt, &req.CreatedAt)
	if err != nil {
		return PaymentRequest{}, err
	}
	if note != nil {
		req.ReviewNote = *note
	}
	return req, nil
}

func scanRequests(rows pgx.Rows) ([]PaymentRequest, error) {
	var out []PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

var _ Store = PostgresStore{}
