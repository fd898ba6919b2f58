// Package billing implements the manual payment flow: users submit a
// payment request against a plan, an admin reviews it, and approval
// activates or extends the subscription.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a plan, request, or subscription does not exist.
	ErrNotFound = errors.New("billing: not found")
	// ErrConflict is returned when a request was already reviewed or a
	// submission is a duplicate.
	ErrConflict = errors.New("billing: conflict")
)

// Payment request statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Subscription statuses.
const (
	SubActive  = "active"
	SubExpired = "expired"
	SubNone    = "none"
)

// Plan is a purchasable subscription plan.
type Plan struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	PriceCents   int       `json:"price_cents"`
	Currency     string    `json:"currency"`
	DurationDays int       `json:"duration_days"`
	Active       bool      `json:"active"`
}

// PaymentRequest is a user-submitted claim of an out-of-band payment,
// waiting for admin review.
type PaymentRequest struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	PlanID      uuid.UUID  `json:"plan_id"`
	AmountCents int        `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Reference   string     `json:"reference"`
	Status      string     `json:"status"`
	ReviewNote  string     `json:"review_note,omitempty"`
	ReviewedBy  *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Subscription is the per-user subscription state derived from approved
// payment requests.
type Subscription struct {
	UserID    uuid.UUID `json:"user_id"`
	PlanID    uuid.UUID `json:"plan_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequestParams carries a new payment request submission.
type CreateRequestParams struct {
	UserID      uuid.UUID
	PlanID      uuid.UUID
	AmountCents int
	Currency    string
	Reference   string
	Now         time.Time
}

// ReviewParams carries an admin decision on a pending request.
type ReviewParams struct {
	RequestID  uuid.UUID
	ReviewerID uuid.UUID
	Note       string
	Now        time.Time
}

// Store persists plans, payment requests, and subscriptions.
type Store interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)

	CreatePaymentRequest(ctx context.Context, p CreateRequestParams) (PaymentRequest, error)
	GetPaymentRequest(ctx context.Context, id uuid.UUID) (PaymentRequest, error)
	ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]PaymentRequest, error)
	ListPendingRequests(ctx context.Context, limit int) ([]PaymentRequest, error)

	// ApproveRequest flips a pending request to approved and extends the
	// user's subscription by the plan duration in the same transaction.
	// Returns ErrConflict if the request is not pending.
	ApproveRequest(ctx context.Context, p ReviewParams) (PaymentRequest, Subscription, error)
	// RejectRequest flips a pending request to rejected.
	RejectRequest(ctx context.Context, p ReviewParams) (PaymentRequest, error)

	GetSubscription(ctx context.Context, userID uuid.UUID) (Subscription, error)
}
