package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/apperror"
)

// UserRepository provides CRUD over users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Init migrates the full schema. Called once at startup.
func (r *UserRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(models.All()...)
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFoundError(fmt.Sprintf("user %d not found", id))
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "phone_number = ?", phone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFoundError(fmt.Sprintf("user %s not found", phone))
		}
		return nil, err
	}
	return &u, nil
}

// FindOrCreateByPhone returns the user owning phone, creating one on first
// contact with a display name derived from the last four digits.
func (r *UserRepository) FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, error) {
	u, err := r.GetByPhone(ctx, phone)
	if err == nil {
		return u, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	last4 := phone
	if len(phone) > 4 {
		last4 = phone[len(phone)-4:]
	}
	created := models.User{
		PhoneNumber: phone,
		DisplayName: "User " + last4,
		IsActive:    true,
	}
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Delete removes the user and, through FK cascade, everything it owns.
func (r *UserRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFoundError(fmt.Sprintf("user %d not found", id))
	}
	return nil
}

// Count returns the user row count, for the health monitor.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}
