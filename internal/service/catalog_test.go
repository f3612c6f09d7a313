package service

import (
	"context"
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type catalogFixture struct {
	store *mockProductStore
	stock *mockStockInitializer
	svc   *CatalogService
}

func newCatalogFixture() *catalogFixture {
	f := &catalogFixture{
		store: new(mockProductStore),
		stock: new(mockStockInitializer),
	}
	f.svc = NewCatalogService(f.store, f.stock)
	return f
}

func approvedProducer() *models.Producer {
	return &models.Producer{
		ID:       "prod-1",
		UserID:   "user-1",
		Approved: true,
	}
}

func variantProductRequest(variants ...VariantRequest) *CreateProductRequest {
	return &CreateProductRequest{
		Name:     models.LocalizedText{"en": "Honey"},
		Category: "pantry",
		Variants: variants,
	}
}

func TestCreateProductRequiresSingleDefaultVariant(t *testing.T) {
	f := newCatalogFixture()
	f.store.On("GetProducerByUserID", mock.Anything, "user-1").Return(approvedProducer(), nil)

	req := variantProductRequest(
		VariantRequest{Name: models.LocalizedText{"en": "250g"}, PriceCents: 600, Stock: 5},
		VariantRequest{Name: models.LocalizedText{"en": "500g"}, PriceCents: 1100, Stock: 3},
	)

	_, err := f.svc.CreateProduct(context.Background(), req,
		Caller{UserID: "user-1", Role: RoleProducer})

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	f.store.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestCreateProductRejectsMultipleDefaultVariants(t *testing.T) {
	f := newCatalogFixture()
	f.store.On("GetProducerByUserID", mock.Anything, "user-1").Return(approvedProducer(), nil)

	req := variantProductRequest(
		VariantRequest{Name: models.LocalizedText{"en": "250g"}, PriceCents: 600, Stock: 5, IsDefault: true},
		VariantRequest{Name: models.LocalizedText{"en": "500g"}, PriceCents: 1100, Stock: 3, IsDefault: true},
	)

	_, err := f.svc.CreateProduct(context.Background(), req,
		Caller{UserID: "user-1", Role: RoleProducer})

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCreateProductAcceptsOneDefaultAmongAvailable(t *testing.T) {
	f := newCatalogFixture()
	f.store.On("GetProducerByUserID", mock.Anything, "user-1").Return(approvedProducer(), nil)
	f.store.On("CreateProduct", mock.Anything, mock.Anything).Return(nil)
	f.stock.On("SyncProduct", mock.Anything, mock.Anything).Return(nil)

	// The sold-out variant cannot be the default; the in-stock one is.
	req := variantProductRequest(
		VariantRequest{Name: models.LocalizedText{"en": "250g"}, PriceCents: 600, Stock: 5, IsDefault: true},
		VariantRequest{Name: models.LocalizedText{"en": "500g"}, PriceCents: 1100, Stock: 0},
	)

	product, err := f.svc.CreateProduct(context.Background(), req,
		Caller{UserID: "user-1", Role: RoleProducer})

	assert.NoError(t, err)
	assert.True(t, product.HasVariants)
	assert.True(t, product.Variants[0].IsDefault)
	assert.False(t, product.Variants[1].IsAvailable)
}

func TestCreateProductUnapprovedProducerForbidden(t *testing.T) {
	f := newCatalogFixture()
	producer := approvedProducer()
	producer.Approved = false
	f.store.On("GetProducerByUserID", mock.Anything, "user-1").Return(producer, nil)

	_, err := f.svc.CreateProduct(context.Background(),
		variantProductRequest(VariantRequest{Name: models.LocalizedText{"en": "250g"}, PriceCents: 600, Stock: 5, IsDefault: true}),
		Caller{UserID: "user-1", Role: RoleProducer})

	assert.ErrorIs(t, err, models.ErrForbidden)
}
