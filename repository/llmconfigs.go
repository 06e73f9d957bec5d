package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/apperror"
)

// LLMConfigRepository persists per-user LLM provider configurations and
// enforces the single-active-config invariant.
type LLMConfigRepository struct {
	db *gorm.DB
}

func NewLLMConfigRepository(db *gorm.DB) *LLMConfigRepository {
	return &LLMConfigRepository{db: db}
}

// Save deactivates any prior config for the user and inserts the new one as
// active, inside one transaction.
func (r *LLMConfigRepository) Save(ctx context.Context, userID uint, provider, apiKeyEncrypted string, settings datatypes.JSONMap) (*models.LLMConfig, error) {
	cfg := models.LLMConfig{
		UserID:          userID,
		Provider:        provider,
		APIKeyEncrypted: apiKeyEncrypted,
		ModelSettings:   settings,
		IsActive:        true,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.LLMConfig{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&cfg).Error
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetActive returns the user's single active config.
func (r *LLMConfigRepository) GetActive(ctx context.Context, userID uint) (*models.LLMConfig, error) {
	var cfg models.LLMConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFoundError("LLM configuration not found")
		}
		return nil, err
	}
	return &cfg, nil
}

// ListByUser returns every config the user has saved, newest first.
func (r *LLMConfigRepository) ListByUser(ctx context.Context, userID uint) ([]models.LLMConfig, error) {
	var cfgs []models.LLMConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&cfgs).Error
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}

// Delete removes the user's active config.
func (r *LLMConfigRepository) Delete(ctx context.Context, userID uint) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Delete(&models.LLMConfig{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFoundError(fmt.Sprintf("no active LLM config for user %d", userID))
	}
	return nil
}
