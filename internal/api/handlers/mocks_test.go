package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/counselor"
	"collegeplan/internal/external"
	"collegeplan/internal/types"
)

var testActor = types.Actor{ID: "user-1", Email: "student@example.com"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withSession attaches the actor and, when info is non-nil, a resolved
// subscription, as the core middleware would.
func withSession(r *http.Request, info *types.SubscriptionInfo) *http.Request {
	ctx := types.WithActor(r.Context(), testActor)
	if info != nil {
		ctx = types.WithSubscription(ctx, *info)
	}
	return r.WithContext(ctx)
}

// serve routes req through a chi router built by register.
func serve(register func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	envelope, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("response is not an error envelope: %s", rec.Body.String())
	}
	code, _ := envelope["code"].(string)
	return code
}

// fakeMeter admits until limit consumptions have been made.
type fakeMeter struct {
	mu       sync.Mutex
	limit    int
	count    int
	err      error
	plans    []types.PlanID
	features []types.FeatureType
}

func (f *fakeMeter) Check(_ context.Context, _ string, _ types.FeatureType, plan types.PlanID) types.UsageData {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	limit := types.Bounded(f.limit)
	return types.UsageData{
		Allowed:      limit.Allows(f.count),
		CurrentUsage: f.count,
		Limit:        limit,
		Remaining:    limit.Remaining(f.count),
	}
}

func (f *fakeMeter) Consume(_ context.Context, _ string, feature types.FeatureType, plan types.PlanID) (types.UsageData, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	f.features = append(f.features, feature)
	limit := types.Bounded(f.limit)
	if f.err != nil {
		return types.UsageData{Limit: limit, Remaining: limit}, false, f.err
	}
	if f.count >= f.limit {
		return types.UsageData{CurrentUsage: f.count, Limit: limit, Remaining: types.Bounded(0)}, false, nil
	}
	f.count++
	return types.UsageData{
		Allowed:      true,
		CurrentUsage: f.count,
		Limit:        limit,
		Remaining:    limit.Remaining(f.count),
	}, true, nil
}

// memoryUsageStore is a billing.UsageStore over a map, for running the real
// Meter in handler tests.
type memoryUsageStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemoryUsageStore() *memoryUsageStore {
	return &memoryUsageStore{counts: map[string]int{}}
}

func (m *memoryUsageStore) key(userID string, feature types.FeatureType) string {
	return userID + "/" + string(feature)
}

func (m *memoryUsageStore) seed(userID string, feature types.FeatureType, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[m.key(userID, feature)] = count
}

func (m *memoryUsageStore) GetCount(_ context.Context, userID string, feature types.FeatureType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[m.key(userID, feature)], nil
}

func (m *memoryUsageStore) Increment(_ context.Context, userID string, feature types.FeatureType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(userID, feature)
	m.counts[k]++
	return m.counts[k], nil
}

func (m *memoryUsageStore) IncrementIfBelow(_ context.Context, userID string, feature types.FeatureType, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(userID, feature)
	if m.counts[k] >= limit {
		return 0, false, nil
	}
	m.counts[k]++
	return m.counts[k], true, nil
}

type usageRecord struct {
	feature types.FeatureType
	result  string
}

type webhookRecord struct {
	eventType, result string
}

type fakeMetrics struct {
	mu       sync.Mutex
	usage    []usageRecord
	webhooks []webhookRecord
}

func (f *fakeMetrics) RecordRequest(string, string, string, time.Duration) {}

func (f *fakeMetrics) RecordUsage(feature types.FeatureType, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, usageRecord{feature, result})
}

func (f *fakeMetrics) RecordWebhook(eventType, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, webhookRecord{eventType, result})
}

// fakeCollegeStore keeps colleges per user in memory.
type fakeCollegeStore struct {
	mu      sync.Mutex
	nextID  int64
	byUser  map[string][]types.College
	err     error
	deleted []int64
}

func newFakeCollegeStore() *fakeCollegeStore {
	return &fakeCollegeStore{nextID: 1, byUser: map[string][]types.College{}}
}

func (f *fakeCollegeStore) ListByUser(_ context.Context, userID string) ([]types.College, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func (f *fakeCollegeStore) UpsertMany(_ context.Context, userID string, colleges []types.College) ([]types.College, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.College, 0, len(colleges))
	for _, c := range colleges {
		c.UserID = userID
		if c.ID == nil {
			id := f.nextID
			f.nextID++
			c.ID = &id
		}
		out = append(out, c)
	}
	f.byUser[userID] = append(f.byUser[userID], out...)
	return out, nil
}

func (f *fakeCollegeStore) Delete(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeSubscriptionService returns canned answers and records the calls made.
type fakeSubscriptionService struct {
	mu          sync.Mutex
	customerID  string
	customerErr error
	lookup      types.SubscriptionLookup
	lookupErr   error
	info        types.SubscriptionInfo
	infoErr     error
	overview    types.BillingOverview
	updated     *types.BillingSubscription
	changeErr   error
	calls       []string
	newPlan     types.PlanID
}

func (f *fakeSubscriptionService) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSubscriptionService) GetOrCreateCustomerID(context.Context, types.Actor) (string, error) {
	f.record("customer")
	return f.customerID, f.customerErr
}

func (f *fakeSubscriptionService) FetchSubscription(context.Context, string) (types.SubscriptionLookup, error) {
	f.record("fetch")
	return f.lookup, f.lookupErr
}

func (f *fakeSubscriptionService) GetUserSubscriptionStatus(context.Context, string) (types.SubscriptionInfo, error) {
	f.record("status")
	return f.info, f.infoErr
}

func (f *fakeSubscriptionService) BillingOverview(context.Context, types.Actor) types.BillingOverview {
	f.record("overview")
	return f.overview
}

func (f *fakeSubscriptionService) CancelSubscription(context.Context, string) (*types.BillingSubscription, error) {
	f.record("cancel")
	return f.updated, f.changeErr
}

func (f *fakeSubscriptionService) ReactivateSubscription(context.Context, string) (*types.BillingSubscription, error) {
	f.record("reactivate")
	return f.updated, f.changeErr
}

func (f *fakeSubscriptionService) ChangePlan(_ context.Context, _ string, newPlan types.PlanID) (*types.BillingSubscription, error) {
	f.record("change_plan")
	f.newPlan = newPlan
	return f.updated, f.changeErr
}

// fakeBillingService captures checkout parameters.
type fakeBillingService struct {
	checkout    external.CheckoutParams
	checkoutURL string
	err         error
}

func (f *fakeBillingService) CreateCustomer(context.Context, external.CustomerParams) (string, error) {
	return "cus_new", nil
}

func (f *fakeBillingService) ListSubscriptions(context.Context, string) ([]types.BillingSubscription, error) {
	return nil, nil
}

func (f *fakeBillingService) GetSubscription(context.Context, string) (*types.BillingSubscription, error) {
	return nil, nil
}

func (f *fakeBillingService) UpdateSubscription(context.Context, string, external.SubscriptionUpdate) (*types.BillingSubscription, error) {
	return nil, nil
}

func (f *fakeBillingService) CreateCheckoutSession(_ context.Context, params external.CheckoutParams) (string, string, error) {
	f.checkout = params
	if f.err != nil {
		return "", "", f.err
	}
	return f.checkoutURL, "cs_test_1", nil
}

// fakeEssayWriter returns a fixed essay or err.
type fakeEssayWriter struct {
	essay string
	err   error
	got   *counselor.EssayRequest
}

func (f *fakeEssayWriter) Generate(_ context.Context, _ string, req counselor.EssayRequest) (string, error) {
	f.got = &req
	return f.essay, f.err
}
