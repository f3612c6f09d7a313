package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orders     *service.OrderService
	payments   *service.PaymentService
	reconciler *service.Reconciler
	catalog    *service.CatalogService
	coupons    *service.CouponService
	producers  *service.ProducerService
	commission *service.CommissionService
	reviews    *service.ReviewService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	payments *service.PaymentService,
	reconciler *service.Reconciler,
	catalog *service.CatalogService,
	coupons *service.CouponService,
	producers *service.ProducerService,
	commission *service.CommissionService,
	reviews *service.ReviewService,
) *Handler {
	return &Handler{
		orders:     orders,
		payments:   payments,
		reconciler: reconciler,
		catalog:    catalog,
		coupons:    coupons,
		producers:  producers,
		commission: commission,
		reviews:    reviews,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The webhook carries its own signature; everything else relies on
	// the identity headers injected by the upstream gateway.
	router.POST("/api/v1/payments/webhook", h.paymentWebhook)

	v1 := router.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PUT("/orders/:id/status", h.updateOrderStatus)
		v1.POST("/orders/:id/confirm-payment", h.confirmBankTransfer)

		v1.POST("/payments/create-checkout-session", h.createCheckoutSession)
		v1.GET("/payments/order/:id/status", h.getPaymentStatus)

		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/reviews", h.listProductReviews)

		v1.POST("/reviews", h.createReview)
		v1.DELETE("/reviews/:id", h.deleteReview)

		v1.POST("/coupons", h.createCoupon)
		v1.POST("/coupons/validate", h.validateCoupon)

		v1.POST("/producers/register", h.registerProducer)
		v1.GET("/producers/:id", h.getProducer)
		v1.GET("/producers/:id/stats", h.producerStats)
		v1.POST("/producers/:id/approve", h.approveProducer)
		v1.POST("/producers/:id/reject", h.rejectProducer)
		v1.POST("/producers/:id/suspend", h.suspendProducer)
		v1.POST("/producers/:id/unsuspend", h.unsuspendProducer)
	}
}

// Every JSON response shares one envelope: success, message on
// failure, data on success. The webhook endpoint is the exception;
// its failure body is raw text per the provider contract.

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondFail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func respondInvalidBody(c *gin.Context, err error) {
	respondFail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
}

// identityMiddleware reads the identity the upstream gateway injects
// after verifying the user's token.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Missing identity",
			})
			return
		}
		role := c.GetHeader("X-User-Role")
		if role == "" {
			role = service.RoleCustomer
		}
		c.Set("caller", service.Caller{UserID: userID, Role: role})
		c.Next()
	}
}

func caller(c *gin.Context) service.Caller {
	v, _ := c.Get("caller")
	cl, _ := v.(service.Caller)
	return cl
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	respondData(c, http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	respondData(c, http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps domain errors to HTTP statuses
func respondError(c *gin.Context, err error) {
	var validation *models.ValidationError
	var coupon *models.CouponError
	var stock *models.InsufficientStockError
	var payment *models.PaymentStateError

	switch {
	case errors.As(err, &validation):
		respondFail(c, http.StatusBadRequest, validation.Error())
	case errors.As(err, &coupon):
		respondFail(c, http.StatusBadRequest, coupon.Error())
	case errors.As(err, &stock):
		respondFail(c, http.StatusConflict, stock.Error())
	case errors.As(err, &payment):
		respondFail(c, http.StatusConflict, payment.Error())
	case errors.Is(err, models.ErrForbidden):
		respondFail(c, http.StatusForbidden, "Forbidden")
	case models.IsNotFound(err):
		respondFail(c, http.StatusNotFound, err.Error())
	default:
		respondFail(c, http.StatusInternalServerError, "Internal error")
	}
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), caller(c).UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, resp)
}

// listOrders returns the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListCustomerOrders(c.Request.Context(), caller(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// updateOrderStatus advances fulfilment
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), &req, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// confirmBankTransfer marks a bank transfer order paid (admin)
func (h *Handler) confirmBankTransfer(c *gin.Context) {
	order, err := h.payments.ConfirmBankTransfer(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// createCheckoutSession opens a hosted checkout session
func (h *Handler) createCheckoutSession(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	session, err := h.payments.CreateCheckoutSession(c.Request.Context(), req.OrderID, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}

// getPaymentStatus reports (and verifies) an order's payment state
func (h *Handler) getPaymentStatus(c *gin.Context) {
	status, err := h.payments.GetPaymentStatus(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, status)
}

// paymentWebhook receives provider events. The signature is the only
// authentication; a verified event always returns 200 so the provider
// stops retrying.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "cannot read payload")
		return
	}

	err = h.reconciler.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		var payment *models.PaymentStateError
		if errors.As(err, &payment) {
			c.String(http.StatusBadRequest, payment.Error())
			return
		}
		c.String(http.StatusInternalServerError, "event processing failed")
		return
	}
	respondData(c, http.StatusOK, gin.H{"received": true})
}

// createProduct registers a product for the calling producer
func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, product)
}

// getProduct retrieves a product with variants
func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, product)
}

// listProducts pages through the catalog
func (h *Handler) listProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	products, err := h.catalog.ListProducts(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"products": products})
}

// createReview records a verified-purchase review
func (h *Handler) createReview(c *gin.Context) {
	var req service.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	review, err := h.reviews.Create(c.Request.Context(), &req, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, review)
}

// deleteReview removes a review (owner or admin)
func (h *Handler) deleteReview(c *gin.Context) {
	if err := h.reviews.Delete(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"deleted": true})
}

// listProductReviews returns a product's reviews
func (h *Handler) listProductReviews(c *gin.Context) {
	reviews, err := h.reviews.ListForProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"reviews": reviews})
}

// createCoupon registers a coupon (admin)
func (h *Handler) createCoupon(c *gin.Context) {
	var req service.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	coupon, err := h.coupons.Create(c.Request.Context(), &req, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, coupon)
}

// validateCoupon previews a coupon against a subtotal
func (h *Handler) validateCoupon(c *gin.Context) {
	var req struct {
		Code          string `json:"code" binding:"required"`
		SubtotalCents int64  `json:"subtotal_cents" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	coupon, discount, err := h.coupons.ValidateForOrder(
		c.Request.Context(), req.Code, caller(c).UserID, req.SubtotalCents, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"code":           coupon.Code,
		"discount_cents": discount,
	})
}

// registerProducer creates an unapproved producer profile
func (h *Handler) registerProducer(c *gin.Context) {
	var req service.RegisterProducerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidBody(c, err)
		return
	}

	producer, err := h.producers.Register(c.Request.Context(), &req, caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, producer)
}

// getProducer returns a producer profile
func (h *Handler) getProducer(c *gin.Context) {
	producer, err := h.producers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, producer)
}

// producerStats aggregates earnings across paid orders
func (h *Handler) producerStats(c *gin.Context) {
	stats, err := h.commission.ProducerStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, stats)
}

// approveProducer activates a producer (admin)
func (h *Handler) approveProducer(c *gin.Context) {
	producer, err := h.producers.Approve(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, producer)
}

// rejectProducer marks a producer not approved (admin)
func (h *Handler) rejectProducer(c *gin.Context) {
	if err := h.producers.Reject(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"approved": false})
}

// suspendProducer blocks a producer's products (admin)
func (h *Handler) suspendProducer(c *gin.Context) {
	if err := h.producers.Suspend(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"suspended": true})
}

// unsuspendProducer lifts a suspension (admin)
func (h *Handler) unsuspendProducer(c *gin.Context) {
	if err := h.producers.Unsuspend(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"suspended": false})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
