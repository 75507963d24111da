package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/membercore/coupon-service/internal/models"
)

const couponColumns = `id, code, name, description, discount_type, discount_value,
	min_amount, max_discount, usage_limit, used_count, is_active,
	valid_from, valid_until, applicable_plans, created_at, updated_at`

type CouponRepo struct {
	db *sqlx.DB
}

func NewCouponRepo(db *sqlx.DB) *CouponRepo {
	return &CouponRepo{db: db}
}

// List returns all coupons, newest first.
func (r *CouponRepo) List(ctx context.Context) ([]models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC`

	coupons := []models.Coupon{}
	if err := r.db.SelectContext(ctx, &coupons, query); err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, nil
}

// ListActive returns all currently enabled coupons, newest first.
func (r *CouponRepo) ListActive(ctx context.Context) ([]models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE is_active ORDER BY created_at DESC`

	coupons := []models.Coupon{}
	if err := r.db.SelectContext(ctx, &coupons, query); err != nil {
		return nil, fmt.Errorf("list active coupons: %w", err)
	}
	return coupons, nil
}

func (r *CouponRepo) GetByID(ctx context.Context, id int) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	var c models.Coupon
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get coupon %d: %w", id, err)
	}
	return &c, nil
}

// GetActiveByCode looks up an enabled coupon by its (already upper-cased)
// code. Returns ErrNotFound when no such coupon exists.
func (r *CouponRepo) GetActiveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 AND is_active`

	var c models.Coupon
	if err := r.db.GetContext(ctx, &c, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return &c, nil
}

func (r *CouponRepo) Create(ctx context.Context, c *models.Coupon) (*models.Coupon, error) {
	query := `
		INSERT INTO coupons
		(code, name, description, discount_type, discount_value, min_amount,
		 max_discount, usage_limit, used_count, is_active, valid_from,
		 valid_until, applicable_plans, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())
		RETURNING ` + couponColumns

	var created models.Coupon
	err := r.db.QueryRowxContext(ctx, query,
		c.Code, c.Name, c.Description, c.DiscountType, c.DiscountValue,
		c.MinAmount, c.MaxDiscount, c.UsageLimit, c.UsedCount, c.IsActive,
		c.ValidFrom, c.ValidUntil, c.ApplicablePlans,
	).StructScan(&created)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	return &created, nil
}

func (r *CouponRepo) Update(ctx context.Context, c *models.Coupon) (*models.Coupon, error) {
	query := `
		UPDATE coupons SET
			code = $2, name = $3, description = $4, discount_type = $5,
			discount_value = $6, min_amount = $7, max_discount = $8,
			usage_limit = $9, used_count = $10, is_active = $11,
			valid_from = $12, valid_until = $13, applicable_plans = $14,
			updated_at = $15
		WHERE id = $1
		RETURNING ` + couponColumns

	var updated models.Coupon
	err := r.db.QueryRowxContext(ctx, query,
		c.ID, c.Code, c.Name, c.Description, c.DiscountType, c.DiscountValue,
		c.MinAmount, c.MaxDiscount, c.UsageLimit, c.UsedCount, c.IsActive,
		c.ValidFrom, c.ValidUntil, c.ApplicablePlans, c.UpdatedAt,
	).StructScan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update coupon %d: %w", c.ID, err)
	}
	return &updated, nil
}

func (r *CouponRepo) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage consumes one usage slot atomically. The WHERE clause guards
// the limit so two racing callers cannot both take the last slot: the loser
// matches zero rows and gets ErrLimitReached.
func (r *CouponRepo) IncrementUsage(ctx context.Context, id int) (*models.Coupon, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING ` + couponColumns

	var c models.Coupon
	err := r.db.QueryRowxContext(ctx, query, id).StructScan(&c)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("increment usage for coupon %d: %w", id, err)
	}

	// Zero rows: either the coupon is gone or the limit is exhausted.
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, id); err != nil {
		return nil, fmt.Errorf("increment usage for coupon %d: %w", id, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrLimitReached
}

// SetUsedCount overwrites used_count directly. It exists only for the
// read-then-write fallback on stores without an atomic increment; the SQL
// store never needs it.
func (r *CouponRepo) SetUsedCount(ctx context.Context, id, usedCount int) (*models.Coupon, error) {
	query := `
		UPDATE coupons
		SET used_count = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + couponColumns

	var c models.Coupon
	if err := r.db.QueryRowxContext(ctx, query, id, usedCount).StructScan(&c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("set used_count for coupon %d: %w", id, err)
	}
	return &c, nil
}
