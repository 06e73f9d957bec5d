package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/apperror"
)

// DefaultAuthCodeTTL is how long a login code stays redeemable.
const DefaultAuthCodeTTL = 5 * time.Minute

// AuthCodeRepository issues and validates one-time login codes.
type AuthCodeRepository struct {
	db *gorm.DB
}

func NewAuthCodeRepository(db *gorm.DB) *AuthCodeRepository {
	return &AuthCodeRepository{db: db}
}

// Issue invalidates any outstanding codes for the user and creates a fresh
// 6-digit code.
func (r *AuthCodeRepository) Issue(ctx context.Context, userID uint, ttl time.Duration) (*models.AuthCode, error) {
	if ttl <= 0 {
		ttl = DefaultAuthCodeTTL
	}
	code, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth code: %w", err)
	}

	created := models.AuthCode{
		UserID:    userID,
		Code:      code,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AuthCode{}).
			Where("user_id = ? AND used = ?", userID, false).
			Update("used", true).Error; err != nil {
			return err
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Redeem marks the code used iff it matches, is unused and unexpired.
func (r *AuthCodeRepository) Redeem(ctx context.Context, userID uint, code string) error {
	var ac models.AuthCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND code = ? AND used = ?", userID, code, false).
		First(&ac).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ValidationError("invalid or expired code")
		}
		return err
	}
	if !ac.IsValid(time.Now().UTC()) {
		return apperror.ValidationError("invalid or expired code")
	}
	return r.db.WithContext(ctx).Model(&ac).Update("used", true).Error
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
