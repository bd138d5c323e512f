package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"prediclaw/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// resolverReputationBump is added to each resolver whose vote backed the
// final outcome.
var resolverReputationBump = decimal.NewFromFloat(0.5)

// ErrNotResolver rejects votes from bots outside the market's resolver set.
var ErrNotResolver = errors.New("bot is not a resolver for this market")

// ResolverService collects resolution votes under a market's policy and,
// once the policy completes, flips the market to resolved and triggers the
// payout batch — exactly once, however many votes race on the completing
// condition.
type ResolverService struct {
	db                   *gorm.DB
	markets              *MarketService
	payouts              *PayoutService
	amm                  *AMMService
	ledger               *LedgerService
	webhooks             *WebhookService
	allowEarlyResolution bool
}

// NewResolverService creates a new resolver service
func NewResolverService(db *gorm.DB, markets *MarketService, payouts *PayoutService, amm *AMMService, ledger *LedgerService, webhooks *WebhookService, allowEarlyResolution bool) *ResolverService {
	return &ResolverService{
		db:                   db,
		markets:              markets,
		payouts:              payouts,
		amm:                  amm,
		ledger:               ledger,
		webhooks:             webhooks,
		allowEarlyResolution: allowEarlyResolution,
	}
}

// SubmitVote records a resolver bot's vote. Resubmission overwrites the
// bot's prior vote. When the vote satisfies the policy's completion
// condition the market resolves and payouts run before SubmitVote returns.
func (s *ResolverService) SubmitVote(ctx context.Context, marketID, botID uuid.UUID, outcomeID, evidence string) (*models.ResolutionStatusResponse, error) {
	s.markets.lockMarket(marketID)
	defer s.markets.unlockMarket(marketID)

	if err := s.markets.CloseIfExpired(ctx, marketID); err != nil {
		return nil, err
	}

	var market models.Market
	if err := s.db.WithContext(ctx).
		Preload("Outcomes").
		Preload("Resolvers").
		First(&market, "id = ?", marketID).Error; err != nil {
		return nil, fmt.Errorf("market not found: %w", err)
	}

	switch {
	case market.Status == models.MarketStatusResolved:
		return nil, ErrAlreadyResolved
	case market.Status == models.MarketStatusOpen && !s.allowEarlyResolution:
		return nil, ErrMarketStillOpen
	case market.Deadlocked:
		return nil, ErrResolutionDeadlock
	}

	if !isResolver(&market, botID) {
		return nil, ErrNotResolver
	}
	if !hasOutcome(&market, outcomeID) {
		return nil, ErrUnknownOutcome
	}

	if err := s.upsertVote(ctx, marketID, botID, outcomeID, evidence); err != nil {
		return nil, err
	}

	votes, err := s.votes(ctx, marketID)
	if err != nil {
		return nil, err
	}

	winner, done, deadlocked := evaluatePolicy(&market, votes)
	if deadlocked {
		if err := s.flagDeadlock(ctx, marketID); err != nil {
			return nil, err
		}
		return nil, ErrResolutionDeadlock
	}
	if !done {
		return &models.ResolutionStatusResponse{Status: "pending", VotesCast: len(votes)}, nil
	}

	resolution, err := s.complete(ctx, &market, votes, winner)
	if err != nil {
		return nil, err
	}
	return &models.ResolutionStatusResponse{
		Status:     "resolved",
		Resolution: resolution,
		VotesCast:  len(votes),
	}, nil
}

func isResolver(market *models.Market, botID uuid.UUID) bool {
	for _, r := range market.Resolvers {
		if r.BotID == botID {
			return true
		}
	}
	return false
}

func (s *ResolverService) upsertVote(ctx context.Context, marketID, botID uuid.UUID, outcomeID, evidence string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var vote models.ResolutionVote
		err := tx.Where("market_id = ? AND bot_id = ?", marketID, botID).First(&vote).Error
		if err == gorm.ErrRecordNotFound {
			vote = models.ResolutionVote{
				ID:        uuid.New(),
				MarketID:  marketID,
				BotID:     botID,
				OutcomeID: outcomeID,
				Evidence:  evidence,
				CreatedAt: now,
				UpdatedAt: now,
			}
			return tx.Create(&vote).Error
		}
		if err != nil {
			return fmt.Errorf("failed to load vote: %w", err)
		}
		return tx.Model(&vote).Updates(map[string]interface{}{
			"outcome_id": outcomeID,
			"evidence":   evidence,
			"updated_at": now,
		}).Error
	})
}

func (s *ResolverService) votes(ctx context.Context, marketID uuid.UUID) ([]models.ResolutionVote, error) {
	var votes []models.ResolutionVote
	if err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at ASC").
		Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return votes, nil
}

// ============================================================================
// POLICY EVALUATION
// ============================================================================

// evaluatePolicy inspects the current vote set and reports the winning
// outcome once the policy completes, or a deadlock when every eligible vote
// is in and no outcome can win.
func evaluatePolicy(market *models.Market, votes []models.ResolutionVote) (winner string, done, deadlocked bool) {
	switch market.ResolverPolicy {
	case models.ResolverPolicySingle:
		// The designated bot's first valid submission is authoritative.
		for _, v := range votes {
			if isResolver(market, v.BotID) {
				return v.OutcomeID, true, false
			}
		}
		return "", false, false

	case models.ResolverPolicyMajority:
		quorum := len(market.Resolvers)
		counts := make(map[string]int)
		for _, v := range votes {
			counts[v.OutcomeID]++
		}
		for outcome, n := range counts {
			if 2*n > quorum {
				return outcome, true, false
			}
		}
		if len(votes) == quorum {
			return "", false, true
		}
		return "", false, false

	case models.ResolverPolicyConsensus:
		weights := make(map[uuid.UUID]decimal.Decimal, len(market.Resolvers))
		totalWeight := decimal.Zero
		for _, r := range market.Resolvers {
			weights[r.BotID] = r.Weight
			totalWeight = totalWeight.Add(r.Weight)
		}
		sums := make(map[string]decimal.Decimal)
		for _, v := range votes {
			sums[v.OutcomeID] = sums[v.OutcomeID].Add(weights[v.BotID])
		}
		required := totalWeight.Mul(market.ConsensusThreshold)
		for outcome, w := range sums {
			if w.GreaterThan(required) {
				return outcome, true, false
			}
		}
		if len(votes) == len(market.Resolvers) {
			return "", false, true
		}
		return "", false, false
	}
	return "", false, false
}

// ============================================================================
// COMPLETION
// ============================================================================

// complete flips the market to resolved and runs the payout batch in one
// transaction. The status flip is a compare-and-set, so of any concurrent
// completing votes only one creates the resolution and pays out; the rest
// see AlreadyResolved.
func (s *ResolverService) complete(ctx context.Context, market *models.Market, votes []models.ResolutionVote, winningOutcomeID string) (*models.Resolution, error) {
	// Trading stopped at close, so the trade set is a consistent snapshot.
	trades, err := s.amm.Trades(ctx, market.ID)
	if err != nil {
		return nil, err
	}

	credited := s.payouts.creditedBots(trades, winningOutcomeID)
	sort.Slice(credited, func(i, j int) bool {
		return credited[i].String() < credited[j].String()
	})
	for _, botID := range credited {
		s.ledger.lockBot(botID)
		defer s.ledger.unlockBot(botID)
	}

	contributors, evidence := contributingVotes(votes, winningOutcomeID)
	resolvedAt := time.Now().UTC()

	resolution := &models.Resolution{
		ID:                uuid.New(),
		MarketID:          market.ID,
		ResolvedOutcomeID: winningOutcomeID,
		ResolverBotIDs:    joinIDs(contributors),
		Evidence:          evidence,
		CreatedAt:         resolvedAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Market{}).
			Where("id = ? AND status <> ?", market.ID, models.MarketStatusResolved).
			Updates(map[string]interface{}{
				"status":      models.MarketStatusResolved,
				"resolved_at": resolvedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to resolve market: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyResolved
		}

		if err := tx.Create(resolution).Error; err != nil {
			return fmt.Errorf("failed to create resolution: %w", err)
		}

		for _, botID := range contributors {
			if err := tx.Model(&models.Bot{}).Where("id = ?", botID).
				UpdateColumn("reputation_score", gorm.Expr("reputation_score + ?", resolverReputationBump)).Error; err != nil {
				return fmt.Errorf("failed to bump resolver reputation: %w", err)
			}
		}

		payouts, err := s.payouts.distributeTx(tx, market, trades, winningOutcomeID)
		if err != nil {
			return err
		}

		return s.webhooks.enqueueTx(tx, models.EventMarketResolved, market.ID, &market.ID, nil, map[string]interface{}{
			"resolved_outcome_id": winningOutcomeID,
			"payout_count":        len(payouts),
			"resolver_bot_ids":    resolution.ResolverBotIDs,
		})
	})
	if err != nil {
		return nil, err
	}

	return resolution, nil
}

func (s *ResolverService) flagDeadlock(ctx context.Context, marketID uuid.UUID) error {
	// The market may still be open when early resolution is enabled; the
	// flag is terminal either way.
	if err := s.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status <> ?", marketID, models.MarketStatusResolved).
		Update("deadlocked", true).Error; err != nil {
		return fmt.Errorf("failed to flag deadlock: %w", err)
	}
	return nil
}

// GetResolution returns a market's resolution record.
func (s *ResolverService) GetResolution(ctx context.Context, marketID uuid.UUID) (*models.Resolution, error) {
	var resolution models.Resolution
	if err := s.db.WithContext(ctx).First(&resolution, "market_id = ?", marketID).Error; err != nil {
		return nil, fmt.Errorf("resolution not found: %w", err)
	}
	return &resolution, nil
}

func contributingVotes(votes []models.ResolutionVote, winningOutcomeID string) ([]uuid.UUID, string) {
	ids := make([]uuid.UUID, 0, len(votes))
	evidence := make([]string, 0, len(votes))
	for _, v := range votes {
		if v.OutcomeID != winningOutcomeID {
			continue
		}
		ids = append(ids, v.BotID)
		if v.Evidence != "" {
			evidence = append(evidence, v.Evidence)
		}
	}
	return ids, strings.Join(evidence, "\n")
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}
