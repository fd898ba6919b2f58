package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/studytube/internal/billing"
	"github.com/example/studytube/internal/platform/api"
)

type submitPaymentRequest struct {
	PlanID    uuid.UUID `json:"plan_id"`
	Reference string    `json:"reference"`
}

type reviewRequest struct {
	Note string `json:"note"`
}

func writeBillingError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "Plan or payment request not found", rid)
	case errors.Is(err, billing.ErrConflict):
		api.Conflict(w, "ALREADY_REVIEWED", "Payment request was already reviewed", rid, nil)
	case errors.Is(err, billing.ErrInactivePlan):
		api.BadRequest(w, "PLAN_INACTIVE", "Plan is not available for purchase", rid, nil)
	case errors.Is(err, billing.ErrMissingReference):
		api.BadRequest(w, "VALIDATION", "Payment reference is required", rid, map[string]any{"field": "reference"})
	default:
		api.Internal(w, rid)
	}
}

// ListPlans is public: pricing shows before signup.
func ListPlans(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		plans, err := svc.Plans(r.Context())
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if plans == nil {
			plans = []billing.Plan{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"plans": plans})
	}
}

// SubmitPayment opens a manual payment request for admin review. The
// Idempotency-Key header collapses client retries into one request.
func SubmitPayment(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		var req submitPaymentRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if req.PlanID == uuid.Nil {
			api.BadRequest(w, "VALIDATION", "plan_id is required", rid, map[string]any{"field": "plan_id"})
			return
		}
		pr, err := svc.Submit(r.Context(), billing.SubmitParams{
			UserID:         userID,
			PlanID:         req.PlanID,
			Reference:      req.Reference,
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		}, time.Now())
		if err != nil {
			if errors.Is(err, billing.ErrConflict) {
				api.Conflict(w, "DUPLICATE_SUBMISSION", "This payment was already submitted", rid, nil)
				return
			}
			writeBillingError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, pr)
	}
}

// MyPaymentRequests lists the caller's submissions, newest first.
func MyPaymentRequests(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		reqs, err := svc.MyRequests(r.Context(), userID)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if reqs == nil {
			reqs = []billing.PaymentRequest{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
	}
}

// MySubscription reports the caller's subscription state, with expiry
// derived at read time.
func MySubscription(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		sub, err := svc.SubscriptionFor(r.Context(), userID, time.Now())
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, sub)
	}
}

// PendingPayments lists requests awaiting review, oldest first. Admin only.
func PendingPayments(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				api.BadRequest(w, "VALIDATION", "limit must be a non-negative integer", rid, nil)
				return
			}
			limit = n
		}
		reqs, err := svc.PendingRequests(r.Context(), limit)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if reqs == nil {
			reqs = []billing.PaymentRequest{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
	}
}

// ApprovePayment marks a request approved and extends the subscription.
// Admin only.
func ApprovePayment(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		reviewerID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		reqID, ok := pathUUID(w, r, rid, "request_id")
		if !ok {
			return
		}
		var req reviewRequest
		if r.ContentLength > 0 {
			if !decodeJSON(w, r, rid, &req) {
				return
			}
		}
		pr, sub, err := svc.Approve(r.Context(), reqID, reviewerID, req.Note, time.Now())
		if err != nil {
			writeBillingError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"request":      pr,
			"subscription": sub,
		})
	}
}

// RejectPayment marks a request rejected without touching the
// subscription. Admin only.
func RejectPayment(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		reviewerID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		reqID, ok := pathUUID(w, r, rid, "request_id")
		if !ok {
			return
		}
		var req reviewRequest
		if r.ContentLength > 0 {
			if !decodeJSON(w, r, rid, &req) {
				return
			}
		}
		pr, err := svc.Reject(r.Context(), reqID, reviewerID, req.Note, time.Now())
		if err != nil {
			writeBillingError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"request": pr})
	}
}
