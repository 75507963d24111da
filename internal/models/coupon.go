package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Coupon is a discount rule. Codes are stored upper-cased and compared
// case-insensitively.
type Coupon struct {
	ID              int                 `db:"id" json:"id"`
	Code            string              `db:"code" json:"code"`
	Name            string              `db:"name" json:"name"`
	Description     string              `db:"description" json:"description"`
	DiscountType    DiscountType        `db:"discount_type" json:"discount_type"`
	DiscountValue   decimal.Decimal     `db:"discount_value" json:"discount_value"`
	MinAmount       decimal.NullDecimal `db:"min_amount" json:"min_amount"`
	MaxDiscount     decimal.NullDecimal `db:"max_discount" json:"max_discount"`
	UsageLimit      *int                `db:"usage_limit" json:"usage_limit"`
	UsedCount       int                 `db:"used_count" json:"used_count"`
	IsActive        bool                `db:"is_active" json:"is_active"`
	ValidFrom       *time.Time          `db:"valid_from" json:"valid_from"`
	ValidUntil      *time.Time          `db:"valid_until" json:"valid_until"`
	ApplicablePlans pq.Int64Array       `db:"applicable_plans" json:"applicable_plans"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// Discount computes the discount this coupon grants on amount. Percentage
// discounts are clamped by max_discount when set; fixed discounts never
// exceed the amount itself.
func (c *Coupon) Discount(amount decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountTypePercentage:
		d := amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
		if c.MaxDiscount.Valid && d.GreaterThan(c.MaxDiscount.Decimal) {
			d = c.MaxDiscount.Decimal
		}
		return d
	case DiscountTypeFixed:
		if c.DiscountValue.GreaterThan(amount) {
			return amount
		}
		return c.DiscountValue
	default:
		return decimal.Zero
	}
}

// CouponSettings is the singleton record gating the whole subsystem.
// AllowStacking and MaxDiscountPercentage are reserved for future policy
// and are not consulted during validation.
type CouponSettings struct {
	IsEnabled             bool                `db:"is_enabled" json:"is_enabled"`
	AllowStacking         bool                `db:"allow_stacking" json:"allow_stacking"`
	MaxDiscountPercentage decimal.NullDecimal `db:"max_discount_percentage" json:"max_discount_percentage"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}
