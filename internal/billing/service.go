package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/billing/idempotency"
	"github.com/example/studytube/internal/platform/analytics"
)

var (
	// ErrInactivePlan is returned when submitting a payment for a disabled plan.
	ErrInactivePlan = errors.New("billing: plan is not active")
	// ErrMissingReference is returned when a submission has no payment reference.
	ErrMissingReference = errors.New("billing: payment reference is required")
)

// Service implements the manual payment flow on top of a Store.
type Service struct {
	Store     Store
	Idem      idempotency.Store
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

// SubmitParams carries a user's payment submission.
type SubmitParams struct {
	UserID         uuid.UUID
	PlanID         uuid.UUID
	Reference      string
	IdempotencyKey string
}

// Plans lists the purchasable plans.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	return s.Store.ListPlans(ctx)
}

// Submit opens a payment request for review. The idempotency key scopes the
// submission to the user, so a retried request (double click, network retry)
// maps to a single pending request.
func (s *Service) Submit(ctx context.Context, p SubmitParams, now time.Time) (PaymentRequest, error) {
	ref := strings.TrimSpace(p.Reference)
	if ref == "" {
		return PaymentRequest{}, ErrMissingReference
	}

	plan, err := s.Store.GetPlan(ctx, p.PlanID)
	if err != nil {
		return PaymentRequest{}, err
	}
	if !plan.Active {
		return PaymentRequest{}, ErrInactivePlan
	}

	if key := strings.TrimSpace(p.IdempotencyKey); key != "" {
		dup, err := s.Idem.Check(ctx, p.UserID.String()+":"+key)
		if err != nil {
			return PaymentRequest{}, fmt.Errorf("idempotency check: %w", err)
		}
		if dup {
			return PaymentRequest{}, fmt.Errorf("%w: duplicate submission", ErrConflict)
		}
	}

	req, err := s.Store.CreatePaymentRequest(ctx, CreateRequestParams{
		UserID:      p.UserID,
		PlanID:      plan.ID,
		AmountCents: plan.PriceCents,
		Currency:    plan.Currency,
		Reference:   ref,
		Now:         now,
	})
	if err != nil {
		return PaymentRequest{}, err
	}

	s.Analytics.Publish(analytics.SubjectPaymentSubmitted, "payment_submitted", p.UserID.String(), map[string]any{
		"plan_code":    plan.Code,
		"amount_cents": plan.PriceCents,
		"currency":     plan.Currency,
	})
	return req, nil
}

// MyRequests lists the caller's submissions, newest first.
func (s *Service) MyRequests(ctx context.Context, userID uuid.UUID) ([]PaymentRequest, error) {
	return s.Store.ListRequestsByUser(ctx, userID)
}

// PendingRequests lists requests awaiting review, oldest first. Admin only;
// the HTTP layer enforces the role.
func (s *Service) PendingRequests(ctx context.Context, limit int) ([]PaymentRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.Store.ListPendingRequests(ctx, limit)
}

// Approve accepts a pending request and activates or extends the user's
// subscription.
func (s *Service) Approve(ctx context.Context, requestID, reviewerID uuid.UUID, note string, now time.Time) (PaymentRequest, Subscription, error) {
	req, sub, err := s.Store.ApproveRequest(ctx, ReviewParams{
		RequestID:  requestID,
		ReviewerID: reviewerID,
		Note:       note,
		Now:        now,
	})
	if err != nil {
		return PaymentRequest{}, Subscription{}, err
	}

	if s.Log != nil {
		s.Log.Info("payment request approved",
			zap.String("request_id", req.ID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.Time("expires_at", sub.ExpiresAt))
	}
	s.Analytics.Publish(analytics.SubjectSubscriptionState, "subscription_state", req.UserID.String(), map[string]any{
		"status":     sub.Status,
		"expires_at": sub.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return req, sub, nil
}

// Reject declines a pending request; the subscription is untouched.
func (s *Service) Reject(ctx context.Context, requestID, reviewerID uuid.UUID, note string, now time.Time) (PaymentRequest, error) {
	req, err := s.Store.RejectRequest(ctx, ReviewParams{
		RequestID:  requestID,
		ReviewerID: reviewerID,
		Note:       note,
		Now:        now,
	})
	if err != nil {
		return PaymentRequest{}, err
	}
	if s.Log != nil {
		s.Log.Info("payment request rejected",
			zap.String("request_id", req.ID.String()),
			zap.String("user_id", req.UserID.String()))
	}
	return req, nil
}

// SubscriptionFor reports the user's subscription. A stored record past its
// expiry is reported as expired; users with no history get SubNone.
func (s *Service) SubscriptionFor(ctx context.Context, userID uuid.UUID, now time.Time) (Subscription, error) {
	sub, err := s.Store.GetSubscription(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Subscription{UserID: userID, Status: SubNone}, nil
	}
	if err != nil {
		return Subscription{}, err
	}
	if sub.Status == SubActive && !sub.ExpiresAt.After(now) {
		sub.Status = SubExpired
	}
	return sub, nil
}
