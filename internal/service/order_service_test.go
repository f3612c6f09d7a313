package service

import (
	"context"
	"testing"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testBusinessConfig() config.BusinessConfig {
	return config.BusinessConfig{
		DefaultCommissionRate: 15,
		ReferralBonusRate:     10,
		ReferralBonusDays:     90,
		ShippingFeeCents:      300,
		FreeShippingOverCents: 5000,
		PaymentTimeoutMinutes: 60,
		BankAccountDetails:    "IBAN FR76 0000 0000 0000",
		DefaultLanguage:       "en",
	}
}

type orderServiceFixture struct {
	catalog   *mockCatalogStore
	orders    *mockOrderStore
	ledger    *mockLedger
	coupons   *mockCouponRedeemer
	publisher *mockPublisher
	svc       *OrderService
}

func newOrderServiceFixture() *orderServiceFixture {
	f := &orderServiceFixture{
		catalog:   new(mockCatalogStore),
		orders:    new(mockOrderStore),
		ledger:    new(mockLedger),
		coupons:   new(mockCouponRedeemer),
		publisher: new(mockPublisher),
	}
	f.svc = NewOrderService(f.catalog, f.orders, f.ledger, f.coupons, f.publisher, testBusinessConfig())
	return f
}

func testProduct(id, producerID string, priceCents int64, stock int) *models.Product {
	return &models.Product{
		ID:             id,
		ProducerID:     producerID,
		Name:           models.LocalizedText{"en": "Wildflower Honey"},
		BasePriceCents: priceCents,
		BaseStock:      stock,
		IsAvailable:    true,
	}
}

func testShipping() ShippingAddress {
	return ShippingAddress{
		Name:       "Jean Dupont",
		Email:      "jean@example.com",
		Line1:      "1 rue de la Paix",
		City:       "Lyon",
		PostalCode: "69001",
		Country:    "FR",
	}
}

func TestCreateOrderCashOnDeliveryConfirmsImmediately(t *testing.T) {
	f := newOrderServiceFixture()

	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 1000, 10), nil)
	f.catalog.On("GetProducersByIDs", mock.Anything, []string{"prod-1"}).
		Return([]models.Producer{{ID: "prod-1", Approved: true, CommissionRate: 15}}, nil)
	f.ledger.On("Reduce", mock.Anything, "p1", (*string)(nil), 2).Return(nil)
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 2}},
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		ShippingAddress: testShipping(),
	})

	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, resp.Order.Status)
	assert.Equal(t, models.PaymentStatusPending, resp.Order.PaymentStatus)
	assert.True(t, resp.Order.StockCommitted)
	assert.Nil(t, resp.BankInstructions)
	f.ledger.AssertCalled(t, "Reduce", mock.Anything, "p1", (*string)(nil), 2)
}

func TestCreateOrderCardDefersStockCommit(t *testing.T) {
	f := newOrderServiceFixture()

	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 1000, 10), nil)
	f.catalog.On("GetProducersByIDs", mock.Anything, []string{"prod-1"}).
		Return([]models.Producer{{ID: "prod-1", Approved: true, CommissionRate: 15}}, nil)
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod:   models.PaymentMethodCard,
		ShippingAddress: testShipping(),
	})

	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, resp.Order.Status)
	assert.False(t, resp.Order.StockCommitted)
	f.ledger.AssertNotCalled(t, "Reduce", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrderBankTransferReturnsInstructions(t *testing.T) {
	f := newOrderServiceFixture()

	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 1000, 10), nil)
	f.catalog.On("GetProducersByIDs", mock.Anything, []string{"prod-1"}).
		Return([]models.Producer{{ID: "prod-1", Approved: true, CommissionRate: 15}}, nil)
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod:   models.PaymentMethodBankTransfer,
		ShippingAddress: testShipping(),
	})

	assert.NoError(t, err)
	assert.NotNil(t, resp.BankInstructions)
	assert.Equal(t, resp.Order.OrderNumber, resp.BankInstructions.PaymentReference)
}

func TestCreateOrderTotals(t *testing.T) {
	f := newOrderServiceFixture()

	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 1500, 10), nil)
	f.catalog.On("GetProductByID", mock.Anything, "p2").
		Return(testProduct("p2", "prod-1", 500, 10), nil)
	f.catalog.On("GetProducersByIDs", mock.Anything, []string{"prod-1"}).
		Return([]models.Producer{{ID: "prod-1", Approved: true, CommissionRate: 15}}, nil)
	f.coupons.On("ValidateForOrder", mock.Anything, "WELCOME10", "cust-1", int64(3500), mock.Anything).
		Return(&models.Coupon{ID: "c1", Code: "WELCOME10"}, int64(350), nil)
	f.coupons.On("RecordUsage", mock.Anything, "c1", "cust-1", mock.Anything).Return(nil)
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items: []OrderItemRequest{
			{ProductID: "p1", Quantity: 2}, // 3000
			{ProductID: "p2", Quantity: 1}, // 500
		},
		PaymentMethod:   models.PaymentMethodCard,
		ShippingAddress: testShipping(),
		CouponCode:      "WELCOME10",
	})

	assert.NoError(t, err)
	order := resp.Order
	assert.Equal(t, int64(3500), order.SubtotalCents)
	assert.Equal(t, int64(350), order.DiscountCents)
	assert.Equal(t, int64(300), order.ShippingCents)
	assert.Equal(t, int64(3500+300-350), order.TotalCents)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, int64(1500), order.Items[0].UnitPriceCents)
}

func TestCreateOrderFreeShippingOverThreshold(t *testing.T) {
	f := newOrderServiceFixture()

	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 6000, 10), nil)
	f.catalog.On("GetProducersByIDs", mock.Anything, []string{"prod-1"}).
		Return([]models.Producer{{ID: "prod-1", Approved: true, CommissionRate: 15}}, nil)
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod:   models.PaymentMethodCard,
		ShippingAddress: testShipping(),
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), resp.Order.ShippingCents)
}

func TestCreateOrderSnapshotsEffectiveCommissionRate(t *testing.T) {
	f := newOrderServiceFixture()

	special := 10.0
	until := time.Now().Add(48 * time.Hour)
	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 1000, 10), nil)
	f.catalog.On("GetProducersByIDs", mock.Anything, []string{"prod-1"}).
		Return([]models.Producer{{
			ID:                     "prod-1",
			Approved:               true,
			CommissionRate:         15,
			SpecialCommissionRate:  &special,
			SpecialCommissionUntil: &until,
		}}, nil)
	f.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod:   models.PaymentMethodCard,
		ShippingAddress: testShipping(),
	})

	assert.NoError(t, err)
	assert.Equal(t, 10.0, resp.Order.Items[0].CommissionRate)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newOrderServiceFixture()

	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 1000, 1), nil)

	_, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 3}},
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
		ShippingAddress: testShipping(),
	})

	var stockErr *models.InsufficientStockError
	assert.ErrorAs(t, err, &stockErr)
	f.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateOrderSuspendedProducerRejected(t *testing.T) {
	f := newOrderServiceFixture()

	f.catalog.On("GetProductByID", mock.Anything, "p1").
		Return(testProduct("p1", "prod-1", 1000, 10), nil)
	f.catalog.On("GetProducersByIDs", mock.Anything, []string{"prod-1"}).
		Return([]models.Producer{{ID: "prod-1", Suspended: true}}, nil)

	_, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod:   models.PaymentMethodCard,
		ShippingAddress: testShipping(),
	})

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCreateOrderVariantRequired(t *testing.T) {
	f := newOrderServiceFixture()

	product := testProduct("p1", "prod-1", 0, 0)
	product.HasVariants = true
	product.Variants = []models.Variant{
		{ID: "v1", ProductID: "p1", PriceCents: 800, Stock: 5, IsAvailable: true},
	}
	f.catalog.On("GetProductByID", mock.Anything, "p1").Return(product, nil)

	_, err := f.svc.CreateOrder(context.Background(), "cust-1", &CreateOrderRequest{
		Items:           []OrderItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod:   models.PaymentMethodCard,
		ShippingAddress: testShipping(),
	})

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestUpdateStatusCancelRestoresCommittedStock(t *testing.T) {
	f := newOrderServiceFixture()

	order := &models.Order{
		ID:             "o1",
		CustomerID:     "cust-1",
		Status:         models.OrderStatusConfirmed,
		PaymentMethod:  models.PaymentMethodCashOnDelivery,
		StockCommitted: true,
		Items: []models.OrderItem{
			{ProductID: "p1", Quantity: 2},
		},
	}
	f.orders.On("GetOrderByID", mock.Anything, "o1").Return(order, nil)
	f.orders.On("UpdateOrderStatusFrom", mock.Anything, "o1",
		models.OrderStatusConfirmed, models.OrderStatusCancelled).Return(true, nil)
	f.ledger.On("Restore", mock.Anything, "p1", (*string)(nil), 2).Return(nil)
	f.publisher.On("PublishOrderCancelled", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.UpdateStatus(context.Background(), "o1",
		&UpdateStatusRequest{Status: models.OrderStatusCancelled},
		Caller{UserID: "admin-1", Role: RoleAdmin})

	assert.NoError(t, err)
	f.ledger.AssertCalled(t, "Restore", mock.Anything, "p1", (*string)(nil), 2)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	f := newOrderServiceFixture()

	order := &models.Order{ID: "o1", Status: models.OrderStatusDelivered}
	f.orders.On("GetOrderByID", mock.Anything, "o1").Return(order, nil)

	_, err := f.svc.UpdateStatus(context.Background(), "o1",
		&UpdateStatusRequest{Status: models.OrderStatusPreparing},
		Caller{UserID: "admin-1", Role: RoleAdmin})

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	f.orders.AssertNotCalled(t, "UpdateOrderStatusFrom",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatusLosingRaceDoesNotPublish(t *testing.T) {
	f := newOrderServiceFixture()

	order := &models.Order{
		ID:            "o1",
		CustomerID:    "cust-1",
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodCard,
		Items: []models.OrderItem{
			{ProductID: "p1", Quantity: 1},
		},
	}
	f.orders.On("GetOrderByID", mock.Anything, "o1").Return(order, nil)
	f.orders.On("UpdateOrderStatusFrom", mock.Anything, "o1",
		models.OrderStatusPending, models.OrderStatusCancelled).Return(false, nil)

	_, err := f.svc.UpdateStatus(context.Background(), "o1",
		&UpdateStatusRequest{Status: models.OrderStatusCancelled},
		Caller{UserID: "admin-1", Role: RoleAdmin})

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	f.ledger.AssertNotCalled(t, "Restore", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "PublishOrderCancelled", mock.Anything, mock.Anything)
}

func TestUpdateStatusForbiddenForCustomers(t *testing.T) {
	f := newOrderServiceFixture()

	_, err := f.svc.UpdateStatus(context.Background(), "o1",
		&UpdateStatusRequest{Status: models.OrderStatusShipped},
		Caller{UserID: "cust-1", Role: RoleCustomer})

	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestGetOrderOwnership(t *testing.T) {
	f := newOrderServiceFixture()

	order := &models.Order{ID: "o1", CustomerID: "cust-1"}
	f.orders.On("GetOrderByID", mock.Anything, "o1").Return(order, nil)

	_, err := f.svc.GetOrder(context.Background(), "o1", Caller{UserID: "cust-2", Role: RoleCustomer})
	assert.ErrorIs(t, err, models.ErrForbidden)

	got, err := f.svc.GetOrder(context.Background(), "o1", Caller{UserID: "cust-1", Role: RoleCustomer})
	assert.NoError(t, err)
	assert.Equal(t, "o1", got.ID)
}
