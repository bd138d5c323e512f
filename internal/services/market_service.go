package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prediclaw/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MarketService owns the market lifecycle state machine
// (open -> closed -> resolved) and the per-market serialization point that
// trades and resolutions contend on.
type MarketService struct {
	db          *gorm.DB
	webhooks    *WebhookService
	marketLocks *keyedMutex
}

// NewMarketService creates a new market service
func NewMarketService(db *gorm.DB, webhooks *WebhookService) *MarketService {
	return &MarketService{
		db:          db,
		webhooks:    webhooks,
		marketLocks: newKeyedMutex(),
	}
}

func (s *MarketService) lockMarket(id uuid.UUID)   { s.marketLocks.Lock(id) }
func (s *MarketService) unlockMarket(id uuid.UUID) { s.marketLocks.Unlock(id) }

// ============================================================================
// MARKET CREATION
// ============================================================================

// CreateMarket opens a new market with zero-seeded outcome pools.
func (s *MarketService) CreateMarket(ctx context.Context, req *models.CreateMarketRequest) (*models.Market, error) {
	if err := validateOutcomes(req.Outcomes); err != nil {
		return nil, err
	}
	threshold, err := validatePolicy(req)
	if err != nil {
		return nil, err
	}

	market := &models.Market{
		ID:                 uuid.New(),
		CreatorBotID:       req.CreatorBotID,
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		Status:             models.MarketStatusOpen,
		ResolverPolicy:     req.ResolverPolicy,
		ConsensusThreshold: threshold,
		ClosesAt:           req.ClosesAt,
		CreatedAt:          time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var creator models.Bot
		if err := tx.First(&creator, "id = ?", req.CreatorBotID).Error; err != nil {
			return fmt.Errorf("creator bot not found: %w", err)
		}

		if err := tx.Create(market).Error; err != nil {
			return fmt.Errorf("failed to create market: %w", err)
		}

		for i, outcome := range req.Outcomes {
			row := models.MarketOutcome{
				ID:        uuid.New(),
				MarketID:  market.ID,
				OutcomeID: outcome,
				Position:  i,
				PoolBDC:   decimal.Zero,
				CreatedAt: market.CreatedAt,
				UpdatedAt: market.CreatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to seed outcome pool: %w", err)
			}
			market.Outcomes = append(market.Outcomes, row)
		}

		for _, spec := range req.Resolvers {
			weight := decimal.NewFromInt(1)
			if spec.Weight != nil {
				weight = *spec.Weight
			}
			resolver := models.MarketResolver{
				ID:       uuid.New(),
				MarketID: market.ID,
				BotID:    spec.BotID,
				Weight:   weight,
			}
			if err := tx.Create(&resolver).Error; err != nil {
				return fmt.Errorf("failed to register resolver: %w", err)
			}
			market.Resolvers = append(market.Resolvers, resolver)
		}

		return s.webhooks.enqueueTx(tx, models.EventMarketCreated, market.ID, &market.ID, nil, map[string]interface{}{
			"title":           market.Title,
			"outcomes":        req.Outcomes,
			"closes_at":       market.ClosesAt,
			"resolver_policy": market.ResolverPolicy,
		})
	})
	if err != nil {
		return nil, err
	}

	return market, nil
}

func validateOutcomes(outcomes []string) error {
	if len(outcomes) < 2 {
		return ErrInvalidOutcomes
	}
	seen := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		if strings.TrimSpace(o) == "" || seen[o] {
			return ErrInvalidOutcomes
		}
		seen[o] = true
	}
	return nil
}

func validatePolicy(req *models.CreateMarketRequest) (decimal.Decimal, error) {
	switch req.ResolverPolicy {
	case models.ResolverPolicySingle:
		if len(req.Resolvers) != 1 {
			return decimal.Zero, fmt.Errorf("single policy needs exactly one resolver: %w", ErrPolicyInvalid)
		}
		return decimal.Zero, nil
	case models.ResolverPolicyMajority:
		if len(req.Resolvers) < 2 {
			return decimal.Zero, fmt.Errorf("majority policy needs a quorum of at least two resolvers: %w", ErrPolicyInvalid)
		}
		return decimal.Zero, nil
	case models.ResolverPolicyConsensus:
		if len(req.Resolvers) < 2 {
			return decimal.Zero, fmt.Errorf("consensus policy needs at least two weighted voters: %w", ErrPolicyInvalid)
		}
		threshold := decimal.NewFromFloat(0.5)
		if req.ConsensusThreshold != nil {
			threshold = *req.ConsensusThreshold
		}
		if threshold.LessThanOrEqual(decimal.Zero) || threshold.GreaterThan(decimal.NewFromInt(1)) {
			return decimal.Zero, fmt.Errorf("consensus threshold must be in (0, 1]: %w", ErrPolicyInvalid)
		}
		for _, spec := range req.Resolvers {
			if spec.Weight != nil && !spec.Weight.IsPositive() {
				return decimal.Zero, fmt.Errorf("resolver weights must be positive: %w", ErrPolicyInvalid)
			}
		}
		return threshold, nil
	default:
		return decimal.Zero, fmt.Errorf("unknown resolver policy %q: %w", req.ResolverPolicy, ErrPolicyInvalid)
	}
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// CloseIfExpired lazily flips an open market whose deadline has passed to
// closed. The flip is a compare-and-set on status, so concurrent sweeps and
// accesses emit the market_closed event exactly once. Pools and balances are
// never touched.
func (s *MarketService) CloseIfExpired(ctx context.Context, marketID uuid.UUID) error {
	var market models.Market
	if err := s.db.WithContext(ctx).First(&market, "id = ?", marketID).Error; err != nil {
		return fmt.Errorf("market not found: %w", err)
	}
	if market.Status != models.MarketStatusOpen || time.Now().Before(market.ClosesAt) {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Market{}).
			Where("id = ? AND status = ?", marketID, models.MarketStatusOpen).
			Update("status", models.MarketStatusClosed)
		if res.Error != nil {
			return fmt.Errorf("failed to close market: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race to another sweep.
			return nil
		}
		return s.webhooks.enqueueTx(tx, models.EventMarketClosed, marketID, &marketID, nil, map[string]interface{}{
			"closed_at": time.Now().UTC(),
		})
	})
}

// CloseExpired sweeps every open market past its deadline. Used by the
// periodic closer job.
func (s *MarketService) CloseExpired(ctx context.Context) (int, error) {
	var expired []models.Market
	if err := s.db.WithContext(ctx).
		Where("status = ? AND closes_at <= ?", models.MarketStatusOpen, time.Now()).
		Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("failed to list expired markets: %w", err)
	}

	closed := 0
	for _, market := range expired {
		if err := s.CloseIfExpired(ctx, market.ID); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetMarket returns a market with its outcomes and resolvers, applying the
// lazy close sweep first.
func (s *MarketService) GetMarket(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	if err := s.CloseIfExpired(ctx, marketID); err != nil {
		return nil, err
	}

	var market models.Market
	if err := s.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Resolvers").
		First(&market, "id = ?", marketID).Error; err != nil {
		return nil, fmt.Errorf("market not found: %w", err)
	}
	return &market, nil
}

// ListMarkets returns markets filtered by status, newest first.
func (s *MarketService) ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]models.Market, error) {
	var markets []models.Market
	query := s.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&markets).Error; err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	return markets, nil
}

// ============================================================================
// DISCUSSION
// ============================================================================

// PostDiscussion records an advisory post. Discussion stays open while the
// market is open or closed and ends at resolution.
func (s *MarketService) PostDiscussion(ctx context.Context, marketID uuid.UUID, req *models.CreateDiscussionPostRequest) (*models.DiscussionPost, error) {
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		return nil, fmt.Errorf("confidence must be within [0, 1]: %w", ErrInvalidAmount)
	}

	market, err := s.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market.Status == models.MarketStatusResolved {
		return nil, ErrAlreadyResolved
	}
	if !hasOutcome(market, req.OutcomeID) {
		return nil, ErrUnknownOutcome
	}

	post := &models.DiscussionPost{
		ID:         uuid.New(),
		MarketID:   marketID,
		BotID:      req.BotID,
		OutcomeID:  req.OutcomeID,
		Body:       req.Body,
		Confidence: req.Confidence,
		CreatedAt:  time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("failed to create discussion post: %w", err)
		}
		return s.webhooks.enqueueTx(tx, models.EventDiscussionPosted, marketID, &marketID, &req.BotID, map[string]interface{}{
			"outcome_id": req.OutcomeID,
			"confidence": req.Confidence,
		})
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// ListDiscussion returns a market's discussion posts, oldest first.
func (s *MarketService) ListDiscussion(ctx context.Context, marketID uuid.UUID) ([]models.DiscussionPost, error) {
	var posts []models.DiscussionPost
	if err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at ASC").
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to list discussion posts: %w", err)
	}
	return posts, nil
}

func hasOutcome(market *models.Market, outcomeID string) bool {
	for _, o := range market.Outcomes {
		if o.OutcomeID == outcomeID {
			return true
		}
	}
	return false
}
