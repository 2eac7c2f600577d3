package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collegeplan/internal/external"
	"collegeplan/internal/types"
)

const (
	plusPrice   = "price_1NkdZCHMjzZ8mGZnRSjUm4yA"
	plusProduct = "prod_RpxAMTArQqEY4v"
	proPrice    = "price_1Nkda2HMjzZ8mGZn4sKvbDAV"
	proProduct  = "prod_OXj20YNpHYOXi7"
)

type resolverFixture struct {
	customers *mockCustomerStore
	profiles  *mockProfileStore
	subs      *mockSubscriptionStore
	billing   *mockBillingService
	resolver  *Resolver
}

func newResolverFixture() *resolverFixture {
	f := &resolverFixture{
		customers: new(mockCustomerStore),
		profiles:  new(mockProfileStore),
		subs:      new(mockSubscriptionStore),
		billing:   new(mockBillingService),
	}
	f.resolver = NewResolver(ResolverDeps{
		Customers:     f.customers,
		Profiles:      f.profiles,
		Subscriptions: f.subs,
		Billing:       f.billing,
		Plans:         NewStaticPlanRegistry(),
		Logger:        discardLogger(),
	})
	return f
}

var testActor = types.Actor{ID: "user-1", Email: "ada@example.com"}

func notFoundCustomer() error {
	return types.NewAppError(types.ErrCodeNotFoundCustomer, "no billing customer for user", nil)
}

func TestGetOrCreateCustomerID_Existing(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("cus_existing", nil)

	id, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)

	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
	f.billing.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
}

func TestGetOrCreateCustomerID_Creates(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("", notFoundCustomer())
	f.profiles.On("GetByID", mock.Anything, "user-1").Return(&types.Profile{
		ID:          "user-1",
		FullName:    "Ada Lovelace",
		CompanyName: "Analytical",
		Website:     "https://ada.example",
	}, nil)
	f.billing.On("CreateCustomer", mock.Anything, external.CustomerParams{
		Email: "ada@example.com",
		Name:  "Ada Lovelace",
		Metadata: map[string]string{
			"user_id":      "user-1",
			"company_name": "Analytical",
			"website":      "https://ada.example",
		},
	}).Return("cus_new", nil)
	f.customers.On("Insert", mock.Anything, "user-1", "cus_new").Return(nil)

	id, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)

	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	f.billing.AssertExpectations(t)
	f.customers.AssertExpectations(t)
}

func TestGetOrCreateCustomerID_SecondCallReusesMapping(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("", notFoundCustomer()).Once()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("cus_new", nil).Once()
	f.profiles.On("GetByID", mock.Anything, "user-1").Return(&types.Profile{ID: "user-1"}, nil).Once()
	f.billing.On("CreateCustomer", mock.Anything, mock.Anything).Return("cus_new", nil).Once()
	f.customers.On("Insert", mock.Anything, "user-1", "cus_new").Return(nil).Once()

	first, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)
	require.NoError(t, err)
	second, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)
	require.NoError(t, err)

	assert.Equal(t, "cus_new", first)
	assert.Equal(t, first, second)
	f.billing.AssertNumberOfCalls(t, "CreateCustomer", 1)
	f.customers.AssertNumberOfCalls(t, "Insert", 1)
}

func TestGetOrCreateCustomerID_MissingProfile(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("", notFoundCustomer())
	f.profiles.On("GetByID", mock.Anything, "user-1").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundProfile, "no profile", nil))
	f.billing.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(p external.CustomerParams) bool {
		return p.Name == "" && p.Metadata["user_id"] == "user-1"
	})).Return("cus_new", nil)
	f.customers.On("Insert", mock.Anything, "user-1", "cus_new").Return(nil)

	id, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)

	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
}

func TestGetOrCreateCustomerID_ProfileErrorFails(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("", notFoundCustomer())
	f.profiles.On("GetByID", mock.Anything, "user-1").
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "down", nil))

	_, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)

	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
	f.billing.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
}

func TestGetOrCreateCustomerID_LostRaceReturnsWinner(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("", notFoundCustomer()).Once()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("cus_winner", nil).Once()
	f.profiles.On("GetByID", mock.Anything, "user-1").Return(&types.Profile{ID: "user-1"}, nil)
	f.billing.On("CreateCustomer", mock.Anything, mock.Anything).Return("cus_loser", nil)
	f.customers.On("Insert", mock.Anything, "user-1", "cus_loser").
		Return(types.NewAppError(types.ErrCodeConflictCustomer, "exists", nil))

	id, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)

	require.NoError(t, err)
	assert.Equal(t, "cus_winner", id)
	f.customers.AssertExpectations(t)
}

func TestGetOrCreateCustomerID_StripeFailure(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("", notFoundCustomer())
	f.profiles.On("GetByID", mock.Anything, "user-1").Return(&types.Profile{ID: "user-1"}, nil)
	f.billing.On("CreateCustomer", mock.Anything, mock.Anything).
		Return("", types.NewAppError(types.ErrCodeUpstreamStripe, "down", nil))

	_, err := f.resolver.GetOrCreateCustomerID(context.Background(), testActor)

	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamStripe))
	f.customers.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchSubscription(t *testing.T) {
	f := newResolverFixture()
	f.billing.On("ListSubscriptions", mock.Anything, "cus_1").Return([]types.BillingSubscription{
		{ID: "sub_old", Status: types.SubStatusCanceled, ProductID: "prod_retired"},
		{ID: "sub_cur", Status: types.SubStatusTrialing, ProductID: proProduct},
		{ID: "sub_other", Status: types.SubStatusActive, ProductID: plusProduct},
	}, nil)

	lookup, err := f.resolver.FetchSubscription(context.Background(), "cus_1")

	require.NoError(t, err)
	assert.True(t, lookup.HasEverHadSubscription)
	require.NotNil(t, lookup.Primary)
	assert.Equal(t, "sub_cur", lookup.Primary.Subscription.ID)
	assert.Equal(t, types.PlanEnterprise, lookup.Primary.PlanID)
}

func TestFetchSubscription_NoneActive(t *testing.T) {
	f := newResolverFixture()
	f.billing.On("ListSubscriptions", mock.Anything, "cus_1").Return([]types.BillingSubscription{
		{ID: "sub_old", Status: types.SubStatusCanceled, ProductID: plusProduct},
	}, nil)

	lookup, err := f.resolver.FetchSubscription(context.Background(), "cus_1")

	require.NoError(t, err)
	assert.Nil(t, lookup.Primary)
	assert.True(t, lookup.HasEverHadSubscription)
}

func TestFetchSubscription_Empty(t *testing.T) {
	f := newResolverFixture()
	f.billing.On("ListSubscriptions", mock.Anything, "cus_1").Return([]types.BillingSubscription{}, nil)

	lookup, err := f.resolver.FetchSubscription(context.Background(), "cus_1")

	require.NoError(t, err)
	assert.Nil(t, lookup.Primary)
	assert.False(t, lookup.HasEverHadSubscription)
}

func TestFetchSubscription_UnknownProductIsIntegrityError(t *testing.T) {
	f := newResolverFixture()
	f.billing.On("ListSubscriptions", mock.Anything, "cus_1").Return([]types.BillingSubscription{
		{ID: "sub_1", Status: types.SubStatusPastDue, ProductID: "prod_mystery"},
	}, nil)

	_, err := f.resolver.FetchSubscription(context.Background(), "cus_1")

	assert.True(t, types.IsCode(err, types.ErrCodeInternalDataIntegrity))
}

func TestGetUserSubscriptionStatus(t *testing.T) {
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		row      *types.Subscription
		err      error
		wantPlan types.PlanID
		active   bool
		status   types.SubscriptionStatus
	}{
		{
			name:     "no row",
			err:      types.NewAppError(types.ErrCodeNotFoundSubscription, "none", nil),
			wantPlan: types.PlanFree, active: true, status: types.SubStatusFree,
		},
		{
			name:     "active plus",
			row:      &types.Subscription{StripeSubscriptionID: "sub_1", StripePriceID: plusPrice, Status: types.SubStatusActive, CurrentPeriodEnd: &end},
			wantPlan: types.PlanPro, active: true, status: types.SubStatusActive,
		},
		{
			name:     "past due pro",
			row:      &types.Subscription{StripeSubscriptionID: "sub_1", StripePriceID: proPrice, Status: types.SubStatusPastDue},
			wantPlan: types.PlanEnterprise, active: false, status: types.SubStatusPastDue,
		},
		{
			name:     "unknown price",
			row:      &types.Subscription{StripeSubscriptionID: "sub_1", StripePriceID: "price_legacy", Status: types.SubStatusActive},
			wantPlan: types.PlanFree, active: true, status: types.SubStatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResolverFixture()
			f.subs.On("GetLatestForUser", mock.Anything, "user-1").Return(tt.row, tt.err)

			info, err := f.resolver.GetUserSubscriptionStatus(context.Background(), "user-1")

			require.NoError(t, err)
			assert.Equal(t, tt.wantPlan, info.PlanID)
			assert.Equal(t, tt.active, info.IsActive)
			assert.Equal(t, tt.status, info.Status)
		})
	}
}

func TestGetUserSubscriptionStatus_DBError(t *testing.T) {
	f := newResolverFixture()
	f.subs.On("GetLatestForUser", mock.Anything, "user-1").
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "down", nil))

	_, err := f.resolver.GetUserSubscriptionStatus(context.Background(), "user-1")

	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestHasAccess(t *testing.T) {
	r := newResolverFixture().resolver

	active := types.SubscriptionInfo{PlanID: types.PlanEnterprise, IsActive: true}
	lapsed := types.SubscriptionInfo{PlanID: types.PlanEnterprise, IsActive: false, Status: types.SubStatusPastDue}

	assert.True(t, r.HasAccess(active, types.PlanPro))
	assert.True(t, r.HasAccess(types.FreeSubscription(), types.PlanFree))
	assert.False(t, r.HasAccess(types.FreeSubscription(), types.PlanPro))
	assert.False(t, r.HasAccess(lapsed, types.PlanPro))
	assert.True(t, r.HasAccess(lapsed, types.PlanFree))
}

func TestBillingOverview(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("cus_1", nil)
	f.billing.On("ListSubscriptions", mock.Anything, "cus_1").Return([]types.BillingSubscription{
		{ID: "sub_1", Status: types.SubStatusActive, ProductID: plusProduct, PriceID: plusPrice},
	}, nil)
	f.subs.On("GetLatestForUser", mock.Anything, "user-1").Return(&types.Subscription{
		StripeSubscriptionID: "sub_1", StripePriceID: plusPrice, Status: types.SubStatusActive,
	}, nil)

	got := f.resolver.BillingOverview(context.Background(), testActor)

	assert.Equal(t, types.BillingOverview{
		IsActiveCustomer:       true,
		HasEverHadSubscription: true,
		CurrentPlanID:          types.PlanPro,
	}, got)
}

func TestBillingOverview_DegradesOnError(t *testing.T) {
	f := newResolverFixture()
	f.customers.On("GetCustomerID", mock.Anything, "user-1").Return("cus_1", nil)
	f.billing.On("ListSubscriptions", mock.Anything, "cus_1").
		Return(nil, types.NewAppError(types.ErrCodeUpstreamStripe, "down", nil))
	f.subs.On("GetLatestForUser", mock.Anything, "user-1").Return(&types.Subscription{
		StripeSubscriptionID: "sub_1", StripePriceID: plusPrice, Status: types.SubStatusActive,
	}, nil)

	got := f.resolver.BillingOverview(context.Background(), testActor)

	assert.Equal(t, types.BillingOverview{CurrentPlanID: types.PlanFree}, got)
}

func TestCancelAndReactivate(t *testing.T) {
	for _, cancel := range []bool{true, false} {
		f := newResolverFixture()
		f.subs.On("GetLatestForUser", mock.Anything, "user-1").
			Return(&types.Subscription{StripeSubscriptionID: "sub_1"}, nil)
		f.billing.On("UpdateSubscription", mock.Anything, "sub_1", mock.MatchedBy(func(u external.SubscriptionUpdate) bool {
			return u.CancelAtPeriodEnd != nil && *u.CancelAtPeriodEnd == cancel && u.PriceID == ""
		})).Return(&types.BillingSubscription{ID: "sub_1", CancelAtPeriodEnd: cancel}, nil)

		var (
			got *types.BillingSubscription
			err error
		)
		if cancel {
			got, err = f.resolver.CancelSubscription(context.Background(), "user-1")
		} else {
			got, err = f.resolver.ReactivateSubscription(context.Background(), "user-1")
		}

		require.NoError(t, err)
		assert.Equal(t, cancel, got.CancelAtPeriodEnd)
		f.subs.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestCancelSubscription_NoSubscription(t *testing.T) {
	f := newResolverFixture()
	f.subs.On("GetLatestForUser", mock.Anything, "user-1").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "none", nil))

	_, err := f.resolver.CancelSubscription(context.Background(), "user-1")

	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundSubscription))
	f.billing.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePlan(t *testing.T) {
	f := newResolverFixture()
	f.subs.On("GetLatestForUser", mock.Anything, "user-1").
		Return(&types.Subscription{StripeSubscriptionID: "sub_1", StripePriceID: plusPrice}, nil)
	f.billing.On("GetSubscription", mock.Anything, "sub_1").
		Return(&types.BillingSubscription{ID: "sub_1", ItemID: "si_1", PriceID: plusPrice}, nil)
	f.billing.On("UpdateSubscription", mock.Anything, "sub_1", external.SubscriptionUpdate{ItemID: "si_1", PriceID: proPrice}).
		Return(&types.BillingSubscription{ID: "sub_1", ItemID: "si_1", PriceID: proPrice}, nil)

	got, err := f.resolver.ChangePlan(context.Background(), "user-1", types.PlanEnterprise)

	require.NoError(t, err)
	assert.Equal(t, proPrice, got.PriceID)
	f.billing.AssertExpectations(t)
}

func TestChangePlan_RejectsUnpurchasablePlans(t *testing.T) {
	for _, plan := range []types.PlanID{types.PlanFree, types.PlanID("platinum")} {
		f := newResolverFixture()

		_, err := f.resolver.ChangePlan(context.Background(), "user-1", plan)

		assert.True(t, types.IsCode(err, types.ErrCodeValidationPlan), "plan %q", plan)
		f.subs.AssertNotCalled(t, "GetLatestForUser", mock.Anything, mock.Anything)
	}
}

func TestChangePlan_StripeError(t *testing.T) {
	f := newResolverFixture()
	f.subs.On("GetLatestForUser", mock.Anything, "user-1").
		Return(&types.Subscription{StripeSubscriptionID: "sub_1"}, nil)
	f.billing.On("GetSubscription", mock.Anything, "sub_1").Return(nil, errors.New("boom"))

	_, err := f.resolver.ChangePlan(context.Background(), "user-1", types.PlanPro)

	assert.Error(t, err)
	f.billing.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything)
}
