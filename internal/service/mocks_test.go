package service

import (
	"context"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/stretchr/testify/mock"
)

type mockCatalogStore struct {
	mock.Mock
}

func (m *mockCatalogStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *mockCatalogStore) GetProducersByIDs(ctx context.Context, ids []string) ([]models.Producer, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Producer), args.Error(1)
}

func (m *mockCatalogStore) GetProducerByUserID(ctx context.Context, userID string) (*models.Producer, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Producer), args.Error(1)
}

type mockOrderStore struct {
	mock.Mock
}

func (m *mockOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockOrderStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderStore) GetOrdersByCustomer(ctx context.Context, customerID string) ([]models.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrderStore) CountOrdersByCustomer(ctx context.Context, customerID string) (int, error) {
	args := m.Called(ctx, customerID)
	return args.Int(0), args.Error(1)
}

func (m *mockOrderStore) UpdateOrderStatusFrom(ctx context.Context, orderID, from, to string) (bool, error) {
	args := m.Called(ctx, orderID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderStore) SetOrderTracking(ctx context.Context, orderID, trackingNumber string) error {
	return m.Called(ctx, orderID, trackingNumber).Error(0)
}

func (m *mockOrderStore) SetOrderPaymentPaid(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Reduce(ctx context.Context, productID string, variantID *string, quantity int) error {
	return m.Called(ctx, productID, variantID, quantity).Error(0)
}

func (m *mockLedger) Restore(ctx context.Context, productID string, variantID *string, quantity int) error {
	return m.Called(ctx, productID, variantID, quantity).Error(0)
}

type mockCouponRedeemer struct {
	mock.Mock
}

func (m *mockCouponRedeemer) ValidateForOrder(ctx context.Context, code, userID string, subtotalCents int64, now time.Time) (*models.Coupon, int64, error) {
	args := m.Called(ctx, code, userID, subtotalCents, now)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*models.Coupon), args.Get(1).(int64), args.Error(2)
}

func (m *mockCouponRedeemer) RecordUsage(ctx context.Context, couponID, userID, orderID string) error {
	return m.Called(ctx, couponID, userID, orderID).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockPublisher) PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type mockReconcileStore struct {
	mock.Mock
}

func (m *mockReconcileStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockReconcileStore) GetOrderByCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockReconcileStore) GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockReconcileStore) ClaimOrderPaid(ctx context.Context, orderID, intentID string) (bool, error) {
	args := m.Called(ctx, orderID, intentID)
	return args.Bool(0), args.Error(1)
}

func (m *mockReconcileStore) MarkOrderPaymentFailed(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *mockReconcileStore) ClaimOrderRefunded(ctx context.Context, orderID string) (bool, bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *mockReconcileStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockReconcileStore) UpdatePaymentStatus(ctx context.Context, paymentID, status, intentID string) error {
	return m.Called(ctx, paymentID, status, intentID).Error(0)
}

func (m *mockReconcileStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *mockReconcileStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return m.Called(ctx, eventID, eventType).Error(0)
}

type mockEventCache struct {
	mock.Mock
}

func (m *mockEventCache) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyWebhookSignature(payload []byte, header string, now time.Time) error {
	return m.Called(payload, header, now).Error(0)
}

type mockCouponStore struct {
	mock.Mock
}

func (m *mockCouponStore) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	return m.Called(ctx, coupon).Error(0)
}

func (m *mockCouponStore) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *mockCouponStore) CountCouponUsages(ctx context.Context, couponID string) (int, error) {
	args := m.Called(ctx, couponID)
	return args.Int(0), args.Error(1)
}

func (m *mockCouponStore) CountCouponUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	args := m.Called(ctx, couponID, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockCouponStore) InsertCouponUsage(ctx context.Context, usage *models.CouponUsage) error {
	return m.Called(ctx, usage).Error(0)
}

func (m *mockCouponStore) CountOrdersByCustomer(ctx context.Context, customerID string) (int, error) {
	args := m.Called(ctx, customerID)
	return args.Int(0), args.Error(1)
}

type mockProducerStore struct {
	mock.Mock
}

func (m *mockProducerStore) CreateProducer(ctx context.Context, producer *models.Producer) error {
	return m.Called(ctx, producer).Error(0)
}

func (m *mockProducerStore) GetProducerByID(ctx context.Context, id string) (*models.Producer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Producer), args.Error(1)
}

func (m *mockProducerStore) GetProducerByUserID(ctx context.Context, userID string) (*models.Producer, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Producer), args.Error(1)
}

func (m *mockProducerStore) GetProducerByReferralCode(ctx context.Context, code string) (*models.Producer, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Producer), args.Error(1)
}

func (m *mockProducerStore) SetProducerApproval(ctx context.Context, id string, approved bool) error {
	return m.Called(ctx, id, approved).Error(0)
}

func (m *mockProducerStore) SetProducerSuspended(ctx context.Context, id string, suspended bool) error {
	return m.Called(ctx, id, suspended).Error(0)
}

func (m *mockProducerStore) ClaimReferralBonus(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockProducerStore) GrantSpecialRate(ctx context.Context, id string, rate float64, until time.Time) error {
	return m.Called(ctx, id, rate, until).Error(0)
}

func (m *mockProducerStore) IncrementReferralCount(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockPaymentStore struct {
	mock.Mock
}

func (m *mockPaymentStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockPaymentStore) SetOrderCheckoutSession(ctx context.Context, orderID, sessionID string) error {
	return m.Called(ctx, orderID, sessionID).Error(0)
}

func (m *mockPaymentStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return m.Called(ctx, payment).Error(0)
}

func (m *mockPaymentStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

type mockProviderGateway struct {
	mock.Mock
}

func (m *mockProviderGateway) Configured() bool {
	return m.Called().Bool(0)
}

func (m *mockProviderGateway) CreateCheckoutSession(ctx context.Context, order *models.Order) (*CheckoutSession, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *mockProviderGateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

type mockReviewStore struct {
	mock.Mock
}

func (m *mockReviewStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockReviewStore) InsertReview(ctx context.Context, review *models.Review) error {
	return m.Called(ctx, review).Error(0)
}

func (m *mockReviewStore) GetReviewByID(ctx context.Context, id string) (*models.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Review), args.Error(1)
}

func (m *mockReviewStore) HasReview(ctx context.Context, userID, productID string) (bool, error) {
	args := m.Called(ctx, userID, productID)
	return args.Bool(0), args.Error(1)
}

func (m *mockReviewStore) DeleteReview(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockReviewStore) ListProductReviews(ctx context.Context, productID string) ([]models.Review, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Review), args.Error(1)
}

func (m *mockReviewStore) RefreshProductRating(ctx context.Context, productID string) error {
	return m.Called(ctx, productID).Error(0)
}

func (m *mockReviewStore) RefreshProducerRating(ctx context.Context, producerID string) error {
	return m.Called(ctx, producerID).Error(0)
}

type mockStatsStore struct {
	mock.Mock
}

func (m *mockStatsStore) GetProducerByID(ctx context.Context, id string) (*models.Producer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Producer), args.Error(1)
}

func (m *mockStatsStore) GetPaidItemsByProducer(ctx context.Context, producerID string) ([]store.PaidItemRow, error) {
	args := m.Called(ctx, producerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.PaidItemRow), args.Error(1)
}

type mockProductStore struct {
	mock.Mock
}

func (m *mockProductStore) CreateProduct(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockProductStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *mockProductStore) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *mockProductStore) GetProducerByUserID(ctx context.Context, userID string) (*models.Producer, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Producer), args.Error(1)
}

type mockStockInitializer struct {
	mock.Mock
}

func (m *mockStockInitializer) SyncProduct(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}
