package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormTokenStore struct {
	db *gorm.DB
}

// NewGormTokenStore creates a GORM-based token store and migrates its table.
func NewGormTokenStore(db *gorm.DB) (domain.TokenStore, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if err := db.AutoMigrate(&domain.ServiceToken{}); err != nil {
		return nil, fmt.Errorf("migrate service tokens: %w", err)
	}
	return &gormTokenStore{db: db}, nil
}

// wrapGormError converts GORM-specific errors to domain errors.
func wrapGormError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (r *gormTokenStore) Get(ctx context.Context, alias string) (*domain.ServiceToken, error) {
	var token domain.ServiceToken
	err := r.db.WithContext(ctx).Where("alias = ?", alias).First(&token).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.ErrorContext(ctx, "failed to get service token", "error", err, "alias", alias)
		}
		return nil, wrapGormError(err)
	}
	return &token, nil
}

func (r *gormTokenStore) Save(ctx context.Context, token *domain.ServiceToken) error {
	now := time.Now().UTC()
	if token.CreatedAt.IsZero() {
		createdAt, err := r.existingCreatedAt(ctx, token.Alias)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read service token", "error", err, "alias", token.Alias)
			return err
		}
		if createdAt.IsZero() {
			createdAt = now
		}
		token.CreatedAt = createdAt
	}
	token.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "alias"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "access_token", "refresh_token", "token_type", "expires_at",
		}),
	}).Create(token).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to save service token", "error", err, "alias", token.Alias)
		return err
	}
	slog.DebugContext(ctx, "service token saved", "alias", token.Alias)
	return nil
}

// existingCreatedAt returns the zero time when alias has no record.
func (r *gormTokenStore) existingCreatedAt(ctx context.Context, alias string) (time.Time, error) {
	var existing domain.ServiceToken
	err := r.db.WithContext(ctx).Select("created_at").Where("alias = ?", alias).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	return existing.CreatedAt, err
}

func (r *gormTokenStore) Delete(ctx context.Context, alias string) error {
	result := r.db.WithContext(ctx).Where("alias = ?", alias).Delete(&domain.ServiceToken{})
	if result.Error != nil {
		return wrapGormError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
