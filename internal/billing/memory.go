package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	plans    map[uuid.UUID]Plan
	requests map[uuid.UUID]PaymentRequest
	subs     map[uuid.UUID]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:    make(map[uuid.UUID]Plan),
		requests: make(map[uuid.UUID]PaymentRequest),
		subs:     make(map[uuid.UUID]Subscription),
	}
}

// AddPlan registers a plan. Test seeding helper.
func (s *MemoryStore) AddPlan(p Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

func (s *MemoryStore) ListPlans(_ context.Context) ([]Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Plan
	for _, p := range s.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out, nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id uuid.UUID) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return Plan{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) CreatePaymentRequest(_ context.Context, p CreateRequestParams) (PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	s.requests[req.ID] = req
	return req, nil
}

func (s *MemoryStore) GetPaymentRequest(_ context.Context, id uuid.UUID) (PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return PaymentRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *MemoryStore) ListRequestsByUser(_ context.Context, userID uuid.UUID) ([]PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PaymentRequest
	for _, req := range s.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListPendingRequests(_ context.Context, limit int) ([]PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PaymentRequest
	for _, req := range s.requests {
		if req.Status == StatusPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ApproveRequest(_ context.Context, p ReviewParams) (PaymentRequest, Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := s.reviewLocked(p, StatusApproved)
	if err != nil {
		return PaymentRequest{}, Subscription{}, err
	}

	plan, ok := s.plans[req.PlanID]
	if !ok {
		return PaymentRequest{}, Subscription{}, ErrNotFound
	}

	sub, ok := s.subs[req.UserID]
	base := p.Now
	if ok && sub.ExpiresAt.After(base) {
		base = sub.ExpiresAt
	}
	sub = Subscription{
		UserID:    req.UserID,
		PlanID:    req.PlanID,
		Status:    SubActive,
		ExpiresAt: base.Add(time.Duration(plan.DurationDays) * 24 * time.Hour),
		UpdatedAt: p.Now,
	}
	s.subs[req.UserID] = sub
	return req, sub, nil
}

func (s *MemoryStore) RejectRequest(_ context.Context, p ReviewParams) (PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewLocked(p, StatusRejected)
}

func (s *MemoryStore) reviewLocked(p ReviewParams, status string) (PaymentRequest, error) {
	req, ok := s.requests[p.RequestID]
	if !ok {
		return PaymentRequest{}, ErrNotFound
	}
	if req.Status != StatusPending {
		return PaymentRequest{}, ErrConflict
	}
	reviewer := p.ReviewerID
	reviewedAt := p.Now
	req.Status = status
	req.ReviewNote = p.Note
	req.ReviewedBy = &reviewer
	req.ReviewedAt = &reviewedAt
	s.requests[p.RequestID] = req
	return req, nil
}

func (s *MemoryStore) GetSubscription(_ context.Context, userID uuid.UUID) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return sub, nil
}

var _ Store = (*MemoryStore)(nil)
