package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/membercore/coupon-service/internal/models"
)

// SettingsRepo reads and writes the single coupon_settings row.
type SettingsRepo struct {
	db *sqlx.DB
}

func NewSettingsRepo(db *sqlx.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) Get(ctx context.Context) (*models.CouponSettings, error) {
	query := `
		SELECT is_enabled, allow_stacking, max_discount_percentage, updated_at
		FROM coupon_settings
		LIMIT 1`

	var s models.CouponSettings
	if err := r.db.GetContext(ctx, &s, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get coupon settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepo) Update(ctx context.Context, s *models.CouponSettings) (*models.CouponSettings, error) {
	query := `
		UPDATE coupon_settings
		SET is_enabled = $1, allow_stacking = $2, max_discount_percentage = $3,
		    updated_at = NOW()
		RETURNING is_enabled, allow_stacking, max_discount_percentage, updated_at`

	var updated models.CouponSettings
	err := r.db.QueryRowxContext(ctx, query,
		s.IsEnabled, s.AllowStacking, s.MaxDiscountPercentage,
	).StructScan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update coupon settings: %w", err)
	}
	return &updated, nil
}
