package handlers

import (
	"errors"
	"net/http"
	"testing"

	"collegeplan/internal/billing"
	"collegeplan/internal/types"
)

func TestUsageHandler_TrackUntilLimit(t *testing.T) {
	meter := &fakeMeter{limit: 2}
	metrics := &fakeMetrics{}
	h := NewUsageHandler(meter, metrics, testLogger())
	pro := &types.SubscriptionInfo{PlanID: types.PlanPro, IsActive: true, Status: types.SubStatusActive}

	var statuses []int
	for range 3 {
		req := withSession(jsonRequest(t, http.MethodPost, "/usage/track", map[string]string{"featureType": "collegeSaves"}), pro)
		rec := serve(h.RegisterRoutes, req)
		statuses = append(statuses, rec.Code)

		body := decodeBody(t, rec)
		if _, ok := body["usageData"].(map[string]any); !ok {
			t.Errorf("response %d has no usageData: %s", len(statuses), rec.Body.String())
		}
		if rec.Code == http.StatusForbidden {
			if body["success"] != false || body["error"] != "Usage limit reached" {
				t.Errorf("limit body = %s", rec.Body.String())
			}
		}
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusForbidden}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
	for _, plan := range meter.plans {
		if plan != types.PlanPro {
			t.Errorf("metered under %q, want pro", plan)
		}
	}
	if got := metrics.usage[2]; got.result != usageLimited || got.feature != types.FeatureCollegeSaves {
		t.Errorf("last usage metric = %+v", got)
	}
}

func TestUsageHandler_TrackPlanByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status types.SubscriptionStatus
		want   types.PlanID
	}{
		{"past due keeps its quota", types.SubStatusPastDue, types.PlanEnterprise},
		{"trialing keeps its quota", types.SubStatusTrialing, types.PlanEnterprise},
		{"canceled meters as free", types.SubStatusCanceled, types.PlanFree},
		{"unpaid meters as free", types.SubStatusUnpaid, types.PlanFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter := &fakeMeter{limit: 5}
			h := NewUsageHandler(meter, nil, testLogger())
			info := &types.SubscriptionInfo{PlanID: types.PlanEnterprise, Status: tt.status, IsActive: tt.status.IsActive()}

			req := withSession(jsonRequest(t, http.MethodPost, "/usage/track", map[string]string{"featureType": "essayWrites"}), info)
			serve(h.RegisterRoutes, req)

			if len(meter.plans) != 1 || meter.plans[0] != tt.want {
				t.Errorf("plans = %v, want [%s]", meter.plans, tt.want)
			}
		})
	}
}

func TestUsageHandler_PastDueProUserCanStillWrite(t *testing.T) {
	store := newMemoryUsageStore()
	store.seed(testActor.ID, types.FeatureEssayWrites, 3)
	h := NewUsageHandler(billing.NewMeter(store, billing.NewStaticPlanRegistry(), testLogger()), nil, testLogger())
	pastDue := &types.SubscriptionInfo{PlanID: types.PlanPro, Status: types.SubStatusPastDue}

	rec := serve(h.RegisterRoutes, withSession(jsonRequest(t, http.MethodPost, "/usage/track", `{"featureType":"essayWrites"}`), pastDue))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	usage := decodeBody(t, rec)["usageData"].(map[string]any)
	if usage["currentUsage"] != float64(4) || usage["limit"] != float64(30) || usage["remaining"] != float64(26) {
		t.Errorf("usageData = %v", usage)
	}
}

func TestUsageHandler_ProQuotaRunsOutAtThirty(t *testing.T) {
	store := newMemoryUsageStore()
	store.seed(testActor.ID, types.FeatureEssayWrites, 29)
	h := NewUsageHandler(billing.NewMeter(store, billing.NewStaticPlanRegistry(), testLogger()), nil, testLogger())
	pro := &types.SubscriptionInfo{PlanID: types.PlanPro, Status: types.SubStatusActive, IsActive: true}

	track := func() (int, map[string]any) {
		rec := serve(h.RegisterRoutes, withSession(jsonRequest(t, http.MethodPost, "/usage/track", `{"featureType":"essayWrites"}`), pro))
		body := decodeBody(t, rec)
		usage, _ := body["usageData"].(map[string]any)
		return rec.Code, usage
	}

	status, usage := track()
	if status != http.StatusOK {
		t.Fatalf("30th write status = %d, want 200", status)
	}
	if usage["allowed"] != true || usage["currentUsage"] != float64(30) || usage["remaining"] != float64(0) {
		t.Errorf("30th write usageData = %v", usage)
	}

	status, usage = track()
	if status != http.StatusForbidden {
		t.Fatalf("31st write status = %d, want 403", status)
	}
	if usage["allowed"] != false || usage["currentUsage"] != float64(30) || usage["remaining"] != float64(0) {
		t.Errorf("31st write usageData = %v", usage)
	}

	rec := serve(h.RegisterRoutes, withSession(jsonRequest(t, http.MethodGet, "/usage/essayWrites", nil), pro))
	if body := decodeBody(t, rec); body["allowed"] != false || body["currentUsage"] != float64(30) {
		t.Errorf("check after limit = %s", rec.Body.String())
	}
}

func TestUsageHandler_TrackRejectsBadFeature(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing", `{}`, "Feature type is required"},
		{"unknown", `{"featureType":"rocketLaunches"}`, "Unknown feature type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter := &fakeMeter{limit: 5}
			h := NewUsageHandler(meter, nil, testLogger())
			rec := serve(h.RegisterRoutes, withSession(jsonRequest(t, http.MethodPost, "/usage/track", tt.body), nil))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if body := decodeBody(t, rec); body["error"] != tt.want {
				t.Errorf("error = %v, want %q", body["error"], tt.want)
			}
			if len(meter.features) != 0 {
				t.Error("meter was consumed for an invalid request")
			}
		})
	}
}

func TestUsageHandler_TrackStoreFailure(t *testing.T) {
	meter := &fakeMeter{limit: 5, err: errors.New("db down")}
	metrics := &fakeMetrics{}
	h := NewUsageHandler(meter, metrics, testLogger())

	rec := serve(h.RegisterRoutes, withSession(jsonRequest(t, http.MethodPost, "/usage/track", `{"featureType":"essayWrites"}`), nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false || body["error"] != "Failed to track usage" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(metrics.usage) != 1 || metrics.usage[0].result != usageError {
		t.Errorf("usage metrics = %+v", metrics.usage)
	}
}

func TestUsageHandler_TrackWithoutSession(t *testing.T) {
	h := NewUsageHandler(&fakeMeter{}, nil, testLogger())
	rec := serve(h.RegisterRoutes, jsonRequest(t, http.MethodPost, "/usage/track", `{"featureType":"essayWrites"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestUsageHandler_Get(t *testing.T) {
	meter := &fakeMeter{limit: 5, count: 3}
	h := NewUsageHandler(meter, nil, testLogger())

	rec := serve(h.RegisterRoutes, withSession(jsonRequest(t, http.MethodGet, "/usage/collegeSaves", nil), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["allowed"] != true || body["currentUsage"] != float64(3) || body["remaining"] != float64(2) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if meter.count != 3 {
		t.Errorf("Get consumed usage: count = %d", meter.count)
	}

	rec = serve(h.RegisterRoutes, withSession(jsonRequest(t, http.MethodGet, "/usage/bogus", nil), nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown feature status = %d, want 400", rec.Code)
	}
}
