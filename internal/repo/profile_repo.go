package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// ErrDuplicate indicates a unique key already exists (phone number or
// idempotency key).
var ErrDuplicate = errors.New("duplicate")

// CreateProfile inserts a new profile. ErrDuplicate means the phone number is taken.
func CreateProfile(ctx context.Context, db *gorm.DB, phone, name string) (*domain.Profile, error) {
	p := &domain.Profile{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		Name:        strings.TrimSpace(name),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// GetProfile fetches a profile by id.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByPhone is the login lookup.
func GetProfileByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("phone_number = ?", phone).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureProfile returns the profile for phone, creating it on first use.
func EnsureProfile(ctx context.Context, db *gorm.DB, phone, name string) (*domain.Profile, error) {
	p, err := GetProfileByPhone(ctx, db, phone)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	p, err = CreateProfile(ctx, db, phone, name)
	if errors.Is(err, ErrDuplicate) {
		// lost a race with a concurrent creator
		return GetProfileByPhone(ctx, db, phone)
	}
	return p, err
}

// ListProfiles returns every profile except excludeID, newest first.
func ListProfiles(ctx context.Context, db *gorm.DB, excludeID string) ([]domain.Profile, error) {
	var out []domain.Profile
	q := db.WithContext(ctx).Order("created_at DESC, id ASC")
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Find(&out).Error
	return out, err
}

// UpdateProfileName renames a profile; names are the only mutable field.
func UpdateProfileName(ctx context.Context, db *gorm.DB, id, name string) error {
	res := db.WithContext(ctx).Model(&domain.Profile{}).
		Where("id = ?", id).
		Update("name", strings.TrimSpace(name))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
