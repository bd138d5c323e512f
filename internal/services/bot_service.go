package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"prediclaw/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BotService manages agent registration, wallet deposits and status changes.
type BotService struct {
	db       *gorm.DB
	ledger   *LedgerService
	webhooks *WebhookService
}

// NewBotService creates a new bot service
func NewBotService(db *gorm.DB, ledger *LedgerService, webhooks *WebhookService) *BotService {
	return &BotService{db: db, ledger: ledger, webhooks: webhooks}
}

// CreateBot registers a new agent and issues its API key. The key is
// returned once, on creation; it is never serialized afterwards.
func (s *BotService) CreateBot(ctx context.Context, req *models.CreateBotRequest) (*models.Bot, string, error) {
	key, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	bot := &models.Bot{
		ID:               uuid.New(),
		Name:             req.Name,
		OwnerID:          req.OwnerID,
		APIKey:           key,
		WalletBalanceBDC: decimal.Zero,
		ReputationScore:  decimal.Zero,
		Status:           models.BotStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(bot).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create bot: %w", err)
	}
	return bot, key, nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GetBot retrieves a bot by ID
func (s *BotService) GetBot(ctx context.Context, botID uuid.UUID) (*models.Bot, error) {
	var bot models.Bot
	if err := s.db.WithContext(ctx).First(&bot, "id = ?", botID).Error; err != nil {
		return nil, fmt.Errorf("bot not found: %w", err)
	}
	return &bot, nil
}

// GetBotByAPIKey authenticates a request key against the bot table.
func (s *BotService) GetBotByAPIKey(ctx context.Context, key string) (*models.Bot, error) {
	var bot models.Bot
	if err := s.db.WithContext(ctx).First(&bot, "api_key = ?", key).Error; err != nil {
		return nil, fmt.Errorf("bot not found: %w", err)
	}
	return &bot, nil
}

// ListBots returns all registered bots.
func (s *BotService) ListBots(ctx context.Context, limit, offset int) ([]models.Bot, error) {
	var bots []models.Bot
	if err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&bots).Error; err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	return bots, nil
}

// EnsureTreasury finds or creates the system-owned sink account that
// receives payout rounding residue.
func (s *BotService) EnsureTreasury(ctx context.Context, name string) (*models.Bot, error) {
	var bot models.Bot
	err := s.db.WithContext(ctx).First(&bot, "owner_id = ? AND name = ?", "system", name).Error
	if err == nil {
		return &bot, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to look up treasury bot: %w", err)
	}

	created, _, err := s.CreateBot(ctx, &models.CreateBotRequest{Name: name, OwnerID: "system"})
	if err != nil {
		return nil, fmt.Errorf("failed to provision treasury bot: %w", err)
	}
	return created, nil
}

// Deposit credits BDC to a bot wallet through the ledger. Only deposit and
// refund reasons are accepted; trade and payout entries come from settlement
// alone.
func (s *BotService) Deposit(ctx context.Context, botID uuid.UUID, amount decimal.Decimal, reason models.LedgerReason) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	switch reason {
	case "":
		reason = models.LedgerReasonDeposit
	case models.LedgerReasonDeposit, models.LedgerReasonRefund:
	default:
		return nil, fmt.Errorf("reason %q is not allowed on deposits: %w", reason, ErrInvalidReason)
	}
	return s.ledger.Post(ctx, botID, nil, amount.Round(bdcScale), reason)
}

// SetStatus transitions a bot between active, paused and inactive, emitting
// a bot_status_changed event on an actual change.
func (s *BotService) SetStatus(ctx context.Context, botID uuid.UUID, status models.BotStatus) (*models.Bot, error) {
	var bot models.Bot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bot, "id = ?", botID).Error; err != nil {
			return fmt.Errorf("bot not found: %w", err)
		}
		if bot.Status == status {
			return nil
		}
		previous := bot.Status
		bot.Status = status
		bot.UpdatedAt = time.Now().UTC()
		if err := tx.Model(&models.Bot{}).Where("id = ?", botID).
			Updates(map[string]interface{}{"status": status, "updated_at": bot.UpdatedAt}).Error; err != nil {
			return fmt.Errorf("failed to update bot status: %w", err)
		}
		return s.webhooks.enqueueTx(tx, models.EventBotStatusChanged, botID, nil, &botID, map[string]interface{}{
			"previous": previous,
			"status":   status,
		})
	})
	if err != nil {
		return nil, err
	}
	return &bot, nil
}
