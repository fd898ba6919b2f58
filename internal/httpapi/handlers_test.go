package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/studytube/internal/billing"
	"github.com/example/studytube/internal/billing/idempotency"
	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/notes"
	platformauth "github.com/example/studytube/internal/platform/auth"
	"github.com/example/studytube/internal/progress"
)

// stubJetStream captures published messages; the embedded interface
// panics on anything the handlers should not touch.
type stubJetStream struct {
	nats.JetStreamContext

	subjects []string
	payloads [][]byte
	err      error
}

func (s *stubJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.subjects = append(s.subjects, subj)
	s.payloads = append(s.payloads, data)
	return &nats.PubAck{Stream: "TEST"}, nil
}

func authedReq(t *testing.T, method, target string, userID uuid.UUID, body any, params map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.ContentLength = int64(buf.Len())
	}
	ctx := platformauth.WithUserID(req.Context(), userID.String())
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return out
}

func TestCreatePlaylist_EnqueuesImport(t *testing.T) {
	store := catalog.NewMemoryStore()
	js := &stubJetStream{}
	handler := CreatePlaylist(store, js)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedReq(t, http.MethodPost, "/api/v1/playlists", userID, map[string]any{
		"source_url": "https://www.youtube.com/playlist?list=PL59FEE129ADFF2B12",
	}, nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(js.subjects) != 1 || js.subjects[0] != "import.playlist" {
		t.Fatalf("expected one import.playlist publish, got %v", js.subjects)
	}
}

func TestCreatePlaylist_RequiresTitleOrSource(t *testing.T) {
	handler := CreatePlaylist(catalog.NewMemoryStore(), nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedReq(t, http.MethodPost, "/api/v1/playlists", uuid.New(), map[string]any{}, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreatePlaylist_RejectsBadSourceURL(t *testing.T) {
	handler := CreatePlaylist(catalog.NewMemoryStore(), nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedReq(t, http.MethodPost, "/api/v1/playlists", uuid.New(), map[string]any{
		"source_url": "https://example.com/not-youtube",
	}, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetPlaylist_OtherOwnerReads404(t *testing.T) {
	store := catalog.NewMemoryStore()
	owner := uuid.New()
	pl, err := store.CreatePlaylist(context.Background(), catalog.CreatePlaylistParams{OwnerID: owner, Title: "Go course"})
	if err != nil {
		t.Fatal(err)
	}

	handler := GetPlaylist(store)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedReq(t, http.MethodGet, "/api/v1/playlists/"+pl.ID.String(), uuid.New(), nil,
		map[string]string{"playlist_id": pl.ID.String()}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owner, got %d", rr.Code)
	}
}

func TestNotes_Lifecycle(t *testing.T) {
	store := notes.NewMemoryStore()
	userID := uuid.New()
	videoID := uuid.New()
	videoParams := map[string]string{"video_id": videoID.String()}

	rr := httptest.NewRecorder()
	CreateNote(store).ServeHTTP(rr, authedReq(t, http.MethodPost, "/notes", userID, map[string]any{
		"body":           "goroutine leak explained here",
		"anchor_seconds": 125,
	}, videoParams))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody[notes.Note](t, rr)
	if created.AnchorSeconds == nil || *created.AnchorSeconds != 125 {
		t.Fatalf("expected anchor 125, got %+v", created.AnchorSeconds)
	}

	rr = httptest.NewRecorder()
	ListNotes(store).ServeHTTP(rr, authedReq(t, http.MethodGet, "/notes", userID, nil, videoParams))
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	listed := decodeBody[struct {
		Items []notes.Note `json:"items"`
	}](t, rr)
	if len(listed.Items) != 1 {
		t.Fatalf("expected 1 note, got %d", len(listed.Items))
	}

	noteParams := map[string]string{"note_id": created.ID.String()}
	rr = httptest.NewRecorder()
	UpdateNote(store).ServeHTTP(rr, authedReq(t, http.MethodPatch, "/notes/x", userID, map[string]any{
		"body": "revised",
	}, noteParams))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("update: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	DeleteNote(store).ServeHTTP(rr, authedReq(t, http.MethodDelete, "/notes/x", userID, nil, noteParams))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	DeleteNote(store).ServeHTTP(rr, authedReq(t, http.MethodDelete, "/notes/x", userID, nil, noteParams))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestCreateNote_RejectsEmptyBody(t *testing.T) {
	rr := httptest.NewRecorder()
	CreateNote(notes.NewMemoryStore()).ServeHTTP(rr, authedReq(t, http.MethodPost, "/notes", uuid.New(), map[string]any{
		"body": "   ",
	}, map[string]string{"video_id": uuid.NewString()}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOtherUsersNotesInvisible(t *testing.T) {
	store := notes.NewMemoryStore()
	owner := uuid.New()
	videoID := uuid.New()
	note, err := store.Create(context.Background(), notes.CreateParams{UserID: owner, VideoID: videoID, Body: "mine"})
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	UpdateNote(store).ServeHTTP(rr, authedReq(t, http.MethodPatch, "/notes/x", uuid.New(), map[string]any{
		"body": "hijacked",
	}, map[string]string{"note_id": note.ID.String()}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign note, got %d", rr.Code)
	}
}

func TestContinueWatching_Paginates(t *testing.T) {
	store := progress.NewMemoryStore()
	cat := catalog.NewMemoryStore()
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		if _, err := store.Upsert(context.Background(), progress.Record{
			UserID:           userID,
			VideoID:          uuid.New(),
			WatchTimeSeconds: 10 * (i + 1),
			DurationSeconds:  600,
			ClientTsMs:       time.Now().UnixMilli(),
		}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}

	handler := ContinueWatching(store, cat)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedReq(t, http.MethodGet, "/progress/recent?limit=2", userID, nil, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	page1 := decodeBody[struct {
		Items      []progressEntry `json:"items"`
		NextCursor string          `json:"next_cursor"`
	}](t, rr)
	if len(page1.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page1.Items))
	}
	if page1.NextCursor == "" {
		t.Fatal("expected a next_cursor on a full page")
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, authedReq(t, http.MethodGet, "/progress/recent?limit=2&cursor="+page1.NextCursor, userID, nil, nil))
	page2 := decodeBody[struct {
		Items      []progressEntry `json:"items"`
		NextCursor string          `json:"next_cursor"`
	}](t, rr)
	if len(page2.Items) != 1 {
		t.Fatalf("expected 1 item on page 2, got %d", len(page2.Items))
	}
	if page2.Items[0].VideoID == page1.Items[0].VideoID || page2.Items[0].VideoID == page1.Items[1].VideoID {
		t.Fatal("page 2 repeated a page 1 row")
	}
}

func TestContinueWatching_RejectsBadCursor(t *testing.T) {
	handler := ContinueWatching(progress.NewMemoryStore(), catalog.NewMemoryStore())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedReq(t, http.MethodGet, "/progress/recent?cursor=%21%21garbage", uuid.New(), nil, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestBeacon_PublishesUpsert(t *testing.T) {
	js := &stubJetStream{}
	userID := uuid.New()
	videoID := uuid.New()

	rr := httptest.NewRecorder()
	Beacon(js).ServeHTTP(rr, authedReq(t, http.MethodPost, "/progress/beacon", userID, map[string]any{
		"video_id":           videoID.String(),
		"watch_time_seconds": 542,
		"duration_seconds":   1200,
		"client_ts_ms":       1757000000000,
	}, nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(js.subjects) != 1 || js.subjects[0] != progress.SubjectUpsert {
		t.Fatalf("expected one %s publish, got %v", progress.SubjectUpsert, js.subjects)
	}
	var ev progress.UpsertEvent
	if err := json.Unmarshal(js.payloads[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.UserID != userID.String() || ev.VideoID != videoID.String() || ev.WatchTimeSeconds != 542 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.EventID == "" {
		t.Fatal("expected a generated event id")
	}
}

func TestBeacon_RequiresVideoID(t *testing.T) {
	rr := httptest.NewRecorder()
	Beacon(&stubJetStream{}).ServeHTTP(rr, authedReq(t, http.MethodPost, "/progress/beacon", uuid.New(), map[string]any{
		"watch_time_seconds": 10,
	}, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func newBillingService(t *testing.T) (*billing.Service, billing.Plan) {
	t.Helper()
	store := billing.NewMemoryStore()
	plan := billing.Plan{
		ID:           uuid.New(),
		Code:         "monthly",
		Name:         "Monthly",
		PriceCents:   499,
		Currency:     "USD",
		DurationDays: 30,
		Active:       true,
	}
	store.AddPlan(plan)
	return &billing.Service{Store: store, Idem: idempotency.NewMemory()}, plan
}

func TestSubmitPayment_CreatesPending(t *testing.T) {
	svc, plan := newBillingService(t)
	userID := uuid.New()

	req := authedReq(t, http.MethodPost, "/billing/payments", userID, map[string]any{
		"plan_id":   plan.ID.String(),
		"reference": "bank-7781",
	}, nil)
	req.Header.Set("Idempotency-Key", "submit-1")

	rr := httptest.NewRecorder()
	SubmitPayment(svc).ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	pr := decodeBody[billing.PaymentRequest](t, rr)
	if pr.Status != billing.StatusPending || pr.AmountCents != 499 {
		t.Fatalf("unexpected request: %+v", pr)
	}
}

func TestSubmitPayment_DuplicateKeyConflicts(t *testing.T) {
	svc, plan := newBillingService(t)
	userID := uuid.New()
	body := map[string]any{"plan_id": plan.ID.String(), "reference": "bank-7781"}

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := authedReq(t, http.MethodPost, "/billing/payments", userID, body, nil)
		req.Header.Set("Idempotency-Key", "submit-dup")
		rr := httptest.NewRecorder()
		SubmitPayment(svc).ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d: %s", i+1, want, rr.Code, rr.Body.String())
		}
	}
}

func TestSubmitPayment_RequiresPlanAndReference(t *testing.T) {
	svc, plan := newBillingService(t)

	rr := httptest.NewRecorder()
	SubmitPayment(svc).ServeHTTP(rr, authedReq(t, http.MethodPost, "/billing/payments", uuid.New(), map[string]any{
		"reference": "bank-7781",
	}, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing plan: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	SubmitPayment(svc).ServeHTTP(rr, authedReq(t, http.MethodPost, "/billing/payments", uuid.New(), map[string]any{
		"plan_id": plan.ID.String(),
	}, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing reference: expected 400, got %d", rr.Code)
	}
}

func TestApprovePayment_ActivatesSubscription(t *testing.T) {
	svc, plan := newBillingService(t)
	userID := uuid.New()
	admin := uuid.New()

	pr, err := svc.Submit(context.Background(), billing.SubmitParams{
		UserID: userID, PlanID: plan.ID, Reference: "bank-1",
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	ApprovePayment(svc).ServeHTTP(rr, authedReq(t, http.MethodPost, "/admin/billing/x/approve", admin, map[string]any{
		"note": "verified against bank export",
	}, map[string]string{"request_id": pr.ID.String()}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	MySubscription(svc).ServeHTTP(rr, authedReq(t, http.MethodGet, "/billing/subscription", userID, nil, nil))
	sub := decodeBody[billing.Subscription](t, rr)
	if sub.Status != billing.SubActive {
		t.Fatalf("expected active subscription, got %+v", sub)
	}

	// Second review of the same request conflicts.
	rr = httptest.NewRecorder()
	RejectPayment(svc).ServeHTTP(rr, authedReq(t, http.MethodPost, "/admin/billing/x/reject", admin, nil,
		map[string]string{"request_id": pr.ID.String()}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-review, got %d", rr.Code)
	}
}

func TestMySubscription_NoneByDefault(t *testing.T) {
	svc, _ := newBillingService(t)
	rr := httptest.NewRecorder()
	MySubscription(svc).ServeHTTP(rr, authedReq(t, http.MethodGet, "/billing/subscription", uuid.New(), nil, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	sub := decodeBody[billing.Subscription](t, rr)
	if sub.Status != billing.SubNone {
		t.Fatalf("expected none, got %q", sub.Status)
	}
}

func TestRequireUser_MissingContext(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	svc, _ := newBillingService(t)
	MySubscription(svc).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
