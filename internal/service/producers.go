package service

import (
	"context"
	"strings"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProducerStore is the persistence surface for producer lifecycle and
// referrals.
type ProducerStore interface {
	CreateProducer(ctx context.Context, producer *models.Producer) error
	GetProducerByID(ctx context.Context, id string) (*models.Producer, error)
	GetProducerByUserID(ctx context.Context, userID string) (*models.Producer, error)
	GetProducerByReferralCode(ctx context.Context, code string) (*models.Producer, error)
	SetProducerApproval(ctx context.Context, id string, approved bool) error
	SetProducerSuspended(ctx context.Context, id string, suspended bool) error
	ClaimReferralBonus(ctx context.Context, id string) (bool, error)
	GrantSpecialRate(ctx context.Context, id string, rate float64, until time.Time) error
	IncrementReferralCount(ctx context.Context, id string) error
}

// RegisterProducerRequest is the producer registration payload.
type RegisterProducerRequest struct {
	BusinessName string               `json:"business_name" binding:"required"`
	Description  models.LocalizedText `json:"description"`
	ContactEmail string               `json:"contact_email" binding:"required,email"`
	ReferralCode string               `json:"referral_code"`
}

// ProducerService manages producer registration, approval and the
// referral program.
type ProducerService struct {
	store    ProducerStore
	business config.BusinessConfig
	logger   *zap.Logger
}

// NewProducerService creates a new producer service
func NewProducerService(store ProducerStore, business config.BusinessConfig) *ProducerService {
	return &ProducerService{
		store:    store,
		business: business,
		logger:   util.GetLogger(),
	}
}

// Register creates an unapproved producer profile. A valid referral
// code links the new producer to its referrer; the bonus itself is
// granted at approval time.
func (p *ProducerService) Register(ctx context.Context, req *RegisterProducerRequest, caller Caller) (*models.Producer, error) {
	ctx, span := util.StartSpan(ctx, "ProducerService.Register")
	defer span.End()

	if _, err := p.store.GetProducerByUserID(ctx, caller.UserID); err == nil {
		return nil, models.NewValidationError("user_id", "producer profile already exists")
	} else if !models.IsNotFound(err) {
		return nil, err
	}

	var referredBy *string
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		referrer, err := p.store.GetProducerByReferralCode(ctx, strings.ToUpper(code))
		if err != nil {
			if models.IsNotFound(err) {
				return nil, models.NewValidationError("referral_code", "unknown referral code")
			}
			return nil, err
		}
		referredBy = &referrer.ID
	}

	now := time.Now()
	producer := &models.Producer{
		ID:             uuid.New().String(),
		UserID:         caller.UserID,
		BusinessName:   req.BusinessName,
		Description:    req.Description,
		ContactEmail:   req.ContactEmail,
		CommissionRate: p.business.DefaultCommissionRate,
		ReferralCode:   newReferralCode(),
		ReferredBy:     referredBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.store.CreateProducer(ctx, producer); err != nil {
		return nil, err
	}

	p.logger.Info("Producer registered",
		zap.String("producer_id", producer.ID),
		zap.Bool("referred", referredBy != nil))
	return producer, nil
}

// Approve activates a producer. On first approval of a referred
// producer, both sides of the referral get the reduced commission rate
// for the bonus window. The bonus claim is a one-shot flag, so
// approve/suspend/approve cycles never re-grant or reset it.
func (p *ProducerService) Approve(ctx context.Context, producerID string, caller Caller) (*models.Producer, error) {
	ctx, span := util.StartSpan(ctx, "ProducerService.Approve")
	defer span.End()

	if caller.Role != RoleAdmin {
		return nil, models.ErrForbidden
	}
	producer, err := p.store.GetProducerByID(ctx, producerID)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetProducerApproval(ctx, producerID, true); err != nil {
		return nil, err
	}

	claimed, err := p.store.ClaimReferralBonus(ctx, producerID)
	if err != nil {
		return nil, err
	}
	if claimed {
		p.grantReferralBonus(ctx, producer)
	}

	return p.store.GetProducerByID(ctx, producerID)
}

func (p *ProducerService) grantReferralBonus(ctx context.Context, producer *models.Producer) {
	until := time.Now().AddDate(0, 0, p.business.ReferralBonusDays)
	rate := p.business.ReferralBonusRate

	if err := p.store.GrantSpecialRate(ctx, producer.ID, rate, until); err != nil {
		p.logger.Error("Failed to grant referral rate to new producer",
			zap.String("producer_id", producer.ID), zap.Error(err))
	}
	if producer.ReferredBy == nil {
		return
	}
	if err := p.store.GrantSpecialRate(ctx, *producer.ReferredBy, rate, until); err != nil {
		p.logger.Error("Failed to grant referral rate to referrer",
			zap.String("producer_id", *producer.ReferredBy), zap.Error(err))
	}
	if err := p.store.IncrementReferralCount(ctx, *producer.ReferredBy); err != nil {
		p.logger.Error("Failed to increment referral count",
			zap.String("producer_id", *producer.ReferredBy), zap.Error(err))
	}
	p.logger.Info("Referral bonus granted",
		zap.String("producer_id", producer.ID),
		zap.String("referrer_id", *producer.ReferredBy),
		zap.Time("until", until))
}

// Reject marks a producer as not approved.
func (p *ProducerService) Reject(ctx context.Context, producerID string, caller Caller) error {
	if caller.Role != RoleAdmin {
		return models.ErrForbidden
	}
	return p.store.SetProducerApproval(ctx, producerID, false)
}

// Suspend blocks a producer's products from being ordered.
func (p *ProducerService) Suspend(ctx context.Context, producerID string, caller Caller) error {
	if caller.Role != RoleAdmin {
		return models.ErrForbidden
	}
	return p.store.SetProducerSuspended(ctx, producerID, true)
}

// Unsuspend lifts a suspension.
func (p *ProducerService) Unsuspend(ctx context.Context, producerID string, caller Caller) error {
	if caller.Role != RoleAdmin {
		return models.ErrForbidden
	}
	return p.store.SetProducerSuspended(ctx, producerID, false)
}

// Get returns a producer profile.
func (p *ProducerService) Get(ctx context.Context, producerID string) (*models.Producer, error) {
	return p.store.GetProducerByID(ctx, producerID)
}

func newReferralCode() string {
	return strings.ToUpper(uuid.New().String()[:8])
}
