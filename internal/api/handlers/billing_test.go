package handlers

import (
	"errors"
	"net/http"
	"testing"

	"collegeplan/internal/billing"
	"collegeplan/internal/config"
	"collegeplan/internal/core"
	"collegeplan/internal/types"
)

func newBillingTestHandler(subs *fakeSubscriptionService) *BillingHandler {
	return NewBillingHandler(subs, core.NewValidator(testLogger()), nil, nil, testLogger())
}

func TestBillingHandler_GetSubscription(t *testing.T) {
	subs := &fakeSubscriptionService{info: types.SubscriptionInfo{
		Status:         types.SubStatusActive,
		PlanID:         types.PlanEnterprise,
		IsActive:       true,
		SubscriptionID: "sub_1",
	}}
	rec := serve(newBillingTestHandler(subs).RegisterRoutes, withSession(jsonRequest(t, http.MethodGet, "/subscription", nil), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["planId"] != "enterprise" || body["isActive"] != true || body["subscriptionId"] != "sub_1" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBillingHandler_GetSubscriptionDegradesToFree(t *testing.T) {
	subs := &fakeSubscriptionService{infoErr: errors.New("db down")}
	rec := serve(newBillingTestHandler(subs).RegisterRoutes, withSession(jsonRequest(t, http.MethodGet, "/subscription", nil), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["planId"] != "free" || body["status"] != "free" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBillingHandler_Overview(t *testing.T) {
	subs := &fakeSubscriptionService{overview: types.BillingOverview{
		IsActiveCustomer:       true,
		HasEverHadSubscription: true,
		CurrentPlanID:          types.PlanPro,
	}}
	rec := serve(newBillingTestHandler(subs).RegisterRoutes, withSession(jsonRequest(t, http.MethodGet, "/billing", nil), nil))

	body := decodeBody(t, rec)
	if body["currentPlanId"] != "pro" || body["isActiveCustomer"] != true {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBillingHandler_CancelAndReactivate(t *testing.T) {
	for _, path := range []string{"/billing/cancel", "/billing/reactivate"} {
		t.Run(path, func(t *testing.T) {
			subs := &fakeSubscriptionService{updated: &types.BillingSubscription{
				ID:                "sub_1",
				Status:            types.SubStatusActive,
				CancelAtPeriodEnd: path == "/billing/cancel",
			}}
			rec := serve(newBillingTestHandler(subs).RegisterRoutes, withSession(jsonRequest(t, http.MethodPost, path, nil), nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if body["id"] != "sub_1" || body["cancelAtPeriodEnd"] != (path == "/billing/cancel") {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestBillingHandler_CancelWithoutSubscription(t *testing.T) {
	subs := &fakeSubscriptionService{
		changeErr: types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for user", nil),
	}
	rec := serve(newBillingTestHandler(subs).RegisterRoutes, withSession(jsonRequest(t, http.MethodPost, "/billing/cancel", nil), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != string(types.ErrCodeNotFoundSubscription) {
		t.Errorf("code = %q", code)
	}
}

func TestBillingHandler_ChangePlan(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   types.ErrorCode
	}{
		{"upgrade", `{"planId":"enterprise"}`, http.StatusOK, ""},
		{"missing plan", `{}`, http.StatusBadRequest, types.ErrCodeValidationMissingField},
		{"unknown plan", `{"planId":"gold"}`, http.StatusBadRequest, types.ErrCodeValidationPlan},
		{"free plan", `{"planId":"free"}`, http.StatusBadRequest, types.ErrCodeValidationPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &fakeSubscriptionService{updated: &types.BillingSubscription{ID: "sub_1", Status: types.SubStatusActive}}
			rec := serve(newBillingTestHandler(subs).RegisterRoutes,
				withSession(jsonRequest(t, http.MethodPost, "/billing/change-plan", tt.body), nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				if code := errorCode(t, rec); code != string(tt.code) {
					t.Errorf("code = %q, want %q", code, tt.code)
				}
				if subs.newPlan != "" {
					t.Error("ChangePlan called for an invalid request")
				}
				return
			}
			if subs.newPlan != types.PlanEnterprise {
				t.Errorf("newPlan = %q", subs.newPlan)
			}
		})
	}
}

func TestBillingHandler_RequiresSession(t *testing.T) {
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := types.GetActor(r.Context()); !ok {
				core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	subs := &fakeSubscriptionService{}
	h := NewBillingHandler(subs, core.NewValidator(testLogger()), guard, nil, testLogger())

	rec := serve(h.RegisterRoutes, jsonRequest(t, http.MethodPost, "/billing/cancel", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(subs.calls) != 0 {
		t.Errorf("service called without a session: %v", subs.calls)
	}
}

func TestBillingHandler_ChangePlanRequiresPaidPlan(t *testing.T) {
	resolver := billing.NewResolver(billing.ResolverDeps{Plans: billing.NewStaticPlanRegistry(), Logger: testLogger()})
	srv, err := core.NewServer(&config.Config{}, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.Access = resolver

	tests := []struct {
		name   string
		info   *types.SubscriptionInfo
		status int
	}{
		{"free user", nil, http.StatusForbidden},
		{"lapsed plus user", &types.SubscriptionInfo{PlanID: types.PlanPro, Status: types.SubStatusCanceled}, http.StatusForbidden},
		{"active plus user", &types.SubscriptionInfo{PlanID: types.PlanPro, Status: types.SubStatusActive, IsActive: true}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &fakeSubscriptionService{}
			h := NewBillingHandler(subs, core.NewValidator(testLogger()), nil, srv.RequirePlan, testLogger())

			req := withSession(jsonRequest(t, http.MethodPost, "/billing/change-plan", map[string]string{"planId": "enterprise"}), tt.info)
			rec := serve(h.RegisterRoutes, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusForbidden {
				if code := errorCode(t, rec); code != string(types.ErrCodePermissionPlan) {
					t.Errorf("code = %q", code)
				}
				if len(subs.calls) != 0 {
					t.Errorf("service called for a refused plan: %v", subs.calls)
				}
			}
		})
	}
}

func TestPlanHandler_List(t *testing.T) {
	h := NewPlanHandler(billing.NewStaticPlanRegistry())
	rec := serve(h.RegisterRoutes, jsonRequest(t, http.MethodGet, "/plans", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	plans, ok := decodeBody(t, rec)["plans"].([]any)
	if !ok || len(plans) != 3 {
		t.Fatalf("plans = %s", rec.Body.String())
	}
	first := plans[0].(map[string]any)
	if first["id"] != "free" {
		t.Errorf("first plan = %v, want free", first["id"])
	}
	last := plans[2].(map[string]any)
	limits := last["limits"].(map[string]any)
	if limits["collegeSaves"] != nil {
		t.Errorf("unbounded limit = %v, want null", limits["collegeSaves"])
	}
	if limits["essayWrites"] != float64(100) {
		t.Errorf("essayWrites limit = %v, want 100", limits["essayWrites"])
	}
}
