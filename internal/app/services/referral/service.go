// Package referral implements referral codes and one-time redemption credits.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/driveline/platform/internal/app/domain/referral"
	"github.com/driveline/platform/internal/app/storage"
	"github.com/driveline/platform/internal/apperr"
	"github.com/driveline/platform/pkg/logger"
)

// DefaultCreditMinutes is the lesson credit granted per successful referral.
const DefaultCreditMinutes = 30

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Config holds the referral service settings.
type Config struct {
	CreditMinutes int
}

// DefaultConfig returns the default referral configuration.
func DefaultConfig() Config {
	return Config{CreditMinutes: DefaultCreditMinutes}
}

// Service manages referral codes and redemptions.
type Service struct {
	store  storage.ReferralStore
	cfg    Config
	logger *logger.Logger
}

// New creates the referral service.
func New(store storage.ReferralStore, cfg Config, log *logger.Logger) *Service {
	if cfg.CreditMinutes <= 0 {
		cfg.CreditMinutes = DefaultCreditMinutes
	}
	if log == nil {
		log = logger.NewDefault("referral")
	}
	return &Service{store: store, cfg: cfg, logger: log}
}

// CreateCode mints a shareable code for a student.
func (s *Service) CreateCode(ctx context.Context, ownerID string) (referral.Code, error) {
	if ownerID == "" {
		return referral.Code{}, apperr.Validation("owner is required")
	}
	raw, err := randomCode(8)
	if err != nil {
		return referral.Code{}, apperr.Unknown("generate referral code", err)
	}
	code, err := s.store.CreateReferralCode(ctx, referral.Code{Code: raw, OwnerID: ownerID})
	if err != nil {
		return referral.Code{}, err
	}
	s.logger.WithFields(map[string]interface{}{"code": code.Code, "owner_id": ownerID}).Info("referral code created")
	return code, nil
}

// Redeem applies a referral code for a new student. A referee may redeem at
// most one code ever; self-referral is rejected.
func (s *Service) Redeem(ctx context.Context, codeValue, refereeID string) (referral.Redemption, error) {
	if codeValue == "" || refereeID == "" {
		return referral.Redemption{}, apperr.Validation("code and referee are required")
	}

	code, err := s.store.GetReferralCode(ctx, codeValue)
	if errors.Is(err, storage.ErrNotFound) {
		return referral.Redemption{}, apperr.Validation("unknown referral code")
	}
	if err != nil {
		return referral.Redemption{}, err
	}
	if code.OwnerID == refereeID {
		return referral.Redemption{}, apperr.Validation("a code cannot be redeemed by its owner")
	}

	red, err := s.store.CreateRedemption(ctx, referral.Redemption{
		CodeID:        code.ID,
		RefereeID:     refereeID,
		CreditMinutes: s.cfg.CreditMinutes,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return referral.Redemption{}, apperr.Conflict("referral already redeemed")
	}
	if err != nil {
		return referral.Redemption{}, err
	}

	s.logger.WithFields(map[string]interface{}{
		"code":       code.Code,
		"referee_id": refereeID,
		"credit_min": red.CreditMinutes,
	}).Info("referral redeemed")
	return red, nil
}

// Redemptions lists the redemptions recorded against a code.
func (s *Service) Redemptions(ctx context.Context, codeValue string) ([]referral.Redemption, error) {
	code, err := s.store.GetReferralCode(ctx, codeValue)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Validation("unknown referral code")
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListRedemptions(ctx, code.ID)
}

func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
