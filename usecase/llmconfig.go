package usecase

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/crypto"
	"github.com/zapa-ai/zapa/repository"
)

// LLMConfigInput is what a user submits to configure their provider.
type LLMConfigInput struct {
	Provider           string  `json:"provider"`
	APIKey             string  `json:"api_key"`
	Model              string  `json:"model"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"max_tokens"`
	CustomInstructions string  `json:"custom_instructions"`
}

func (in LLMConfigInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Provider, validation.Required, validation.In(
			models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGoogle, models.ProviderOllama)),
		validation.Field(&in.APIKey, validation.Required),
		validation.Field(&in.Temperature, validation.Min(0.0), validation.Max(2.0)),
	)
}

// LLMConfigService encrypts credentials and maintains the single-active
// configuration per user.
type LLMConfigService struct {
	configs *repository.LLMConfigRepository
	cipher  *crypto.Cipher
}

func NewLLMConfigService(configs *repository.LLMConfigRepository, cipher *crypto.Cipher) *LLMConfigService {
	return &LLMConfigService{configs: configs, cipher: cipher}
}

// SaveUserConfig validates, encrypts the API key and swaps the active config.
func (s *LLMConfigService) SaveUserConfig(ctx context.Context, userID uint, in LLMConfigInput) (*models.LLMConfig, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(in.APIKey)
	if err != nil {
		return nil, err
	}

	settings := datatypes.JSONMap{}
	if in.Model != "" {
		settings["model"] = in.Model
	}
	if in.Temperature != 0 {
		settings["temperature"] = in.Temperature
	}
	if in.MaxTokens != 0 {
		settings["max_tokens"] = in.MaxTokens
	}
	if in.CustomInstructions != "" {
		settings["custom_instructions"] = in.CustomInstructions
	}

	cfg, err := s.configs.Save(ctx, userID, in.Provider, encrypted, settings)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"provider": in.Provider,
	}).Info("[LLMCONFIG] Configuration saved")
	return cfg, nil
}

// GetUserConfig returns the active config; the API key stays encrypted.
func (s *LLMConfigService) GetUserConfig(ctx context.Context, userID uint) (*models.LLMConfig, error) {
	return s.configs.GetActive(ctx, userID)
}

// DeleteUserConfig removes the active config.
func (s *LLMConfigService) DeleteUserConfig(ctx context.Context, userID uint) error {
	return s.configs.Delete(ctx, userID)
}
