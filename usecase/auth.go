package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/bridge"
	"github.com/zapa-ai/zapa/repository"
)

// AuthService implements the WhatsApp-code login flow: a 6-digit one-time
// code delivered to the user's own number through the bridge.
type AuthService struct {
	users           *repository.UserRepository
	codes           *repository.AuthCodeRepository
	bridgeClient    *bridge.Client
	systemSessionID string
}

func NewAuthService(
	users *repository.UserRepository,
	codes *repository.AuthCodeRepository,
	bridgeClient *bridge.Client,
	systemSessionID string,
) *AuthService {
	return &AuthService{
		users:           users,
		codes:           codes,
		bridgeClient:    bridgeClient,
		systemSessionID: systemSessionID,
	}
}

// RequestCode issues a fresh login code for the phone and delivers it over
// WhatsApp. The user is created on first contact.
func (s *AuthService) RequestCode(ctx context.Context, phone string) error {
	user, err := s.users.FindOrCreateByPhone(ctx, phone)
	if err != nil {
		return err
	}

	code, err := s.codes.Issue(ctx, user.ID, repository.DefaultAuthCodeTTL)
	if err != nil {
		return err
	}

	if s.bridgeClient != nil {
		text := fmt.Sprintf("Your login code is %s. It expires in %d minutes.",
			code.Code, int(repository.DefaultAuthCodeTTL/time.Minute))
		if _, err := s.bridgeClient.SendMessage(ctx, s.systemSessionID, phone, text, ""); err != nil {
			return fmt.Errorf("failed to deliver login code: %w", err)
		}
	}

	logrus.WithField("user_id", user.ID).Info("[AUTH] Login code issued")
	return nil
}

// VerifyCode redeems a login code and returns the user id on success.
func (s *AuthService) VerifyCode(ctx context.Context, phone, code string) (uint, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return 0, err
	}
	if err := s.codes.Redeem(ctx, user.ID, code); err != nil {
		return 0, err
	}
	logrus.WithField("user_id", user.ID).Info("[AUTH] Login code verified")
	return user.ID, nil
}
