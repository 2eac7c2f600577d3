package billing

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"collegeplan/internal/external"
	"collegeplan/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockUsageStore struct {
	mock.Mock
}

func (m *mockUsageStore) GetCount(ctx context.Context, userID string, feature types.FeatureType) (int, error) {
	args := m.Called(ctx, userID, feature)
	return args.Int(0), args.Error(1)
}

func (m *mockUsageStore) Increment(ctx context.Context, userID string, feature types.FeatureType) (int, error) {
	args := m.Called(ctx, userID, feature)
	return args.Int(0), args.Error(1)
}

func (m *mockUsageStore) IncrementIfBelow(ctx context.Context, userID string, feature types.FeatureType, limit int) (int, bool, error) {
	args := m.Called(ctx, userID, feature, limit)
	return args.Int(0), args.Bool(1), args.Error(2)
}

type mockCustomerStore struct {
	mock.Mock
}

func (m *mockCustomerStore) GetCustomerID(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockCustomerStore) Insert(ctx context.Context, userID, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *mockCustomerStore) GetUserID(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) GetByID(ctx context.Context, userID string) (*types.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*types.Profile)
	return p, args.Error(1)
}

type mockSubscriptionStore struct {
	mock.Mock
}

func (m *mockSubscriptionStore) Upsert(ctx context.Context, sub types.Subscription, eventAt time.Time) (bool, error) {
	args := m.Called(ctx, sub, eventAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockSubscriptionStore) GetLatestForUser(ctx context.Context, userID string) (*types.Subscription, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*types.Subscription)
	return s, args.Error(1)
}

type mockBillingService struct {
	mock.Mock
}

func (m *mockBillingService) CreateCustomer(ctx context.Context, params external.CustomerParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockBillingService) ListSubscriptions(ctx context.Context, customerID string) ([]types.BillingSubscription, error) {
	args := m.Called(ctx, customerID)
	subs, _ := args.Get(0).([]types.BillingSubscription)
	return subs, args.Error(1)
}

func (m *mockBillingService) GetSubscription(ctx context.Context, subscriptionID string) (*types.BillingSubscription, error) {
	args := m.Called(ctx, subscriptionID)
	s, _ := args.Get(0).(*types.BillingSubscription)
	return s, args.Error(1)
}

func (m *mockBillingService) UpdateSubscription(ctx context.Context, subscriptionID string, params external.SubscriptionUpdate) (*types.BillingSubscription, error) {
	args := m.Called(ctx, subscriptionID, params)
	s, _ := args.Get(0).(*types.BillingSubscription)
	return s, args.Error(1)
}

func (m *mockBillingService) CreateCheckoutSession(ctx context.Context, params external.CheckoutParams) (string, string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.String(1), args.Error(2)
}

var (
	_ UsageStore              = (*mockUsageStore)(nil)
	_ CustomerStore           = (*mockCustomerStore)(nil)
	_ ProfileStore            = (*mockProfileStore)(nil)
	_ SubscriptionStore       = (*mockSubscriptionStore)(nil)
	_ external.BillingService = (*mockBillingService)(nil)
)
