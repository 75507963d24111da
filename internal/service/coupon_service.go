package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/membercore/coupon-service/internal/cache"
	"github.com/membercore/coupon-service/internal/concurrency"
	"github.com/membercore/coupon-service/internal/models"
	"github.com/membercore/coupon-service/internal/repository"
)

// Validation failure messages. These are shown to end users verbatim.
const (
	msgDisabled      = "Coupons are currently disabled."
	msgInvalidCode   = "Invalid coupon code."
	msgNotYetActive  = "Coupon is not yet active."
	msgExpired       = "Coupon has expired."
	msgLimitReached  = "Coupon usage limit reached."
	msgNotApplicable = "Coupon not applicable for this plan."
	msgInternal      = "Error validating coupon"
)

// Stores required by the service (interfaces to allow in-memory fakes).
type CouponStore interface {
	List(ctx context.Context) ([]models.Coupon, error)
	ListActive(ctx context.Context) ([]models.Coupon, error)
	GetByID(ctx context.Context, id int) (*models.Coupon, error)
	GetActiveByCode(ctx context.Context, code string) (*models.Coupon, error)
	Create(ctx context.Context, c *models.Coupon) (*models.Coupon, error)
	Update(ctx context.Context, c *models.Coupon) (*models.Coupon, error)
	Delete(ctx context.Context, id int) error
	IncrementUsage(ctx context.Context, id int) (*models.Coupon, error)
	SetUsedCount(ctx context.Context, id, usedCount int) (*models.Coupon, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (*models.CouponSettings, error)
	Update(ctx context.Context, s *models.CouponSettings) (*models.CouponSettings, error)
}

type CouponService struct {
	coupons  CouponStore
	settings SettingsStore
	cache    *cache.CouponCache
	log      *zap.SugaredLogger
}

func NewCouponService(coupons CouponStore, settings SettingsStore, c *cache.CouponCache, log *zap.SugaredLogger) *CouponService {
	return &CouponService{
		coupons:  coupons,
		settings: settings,
		cache:    c,
		log:      log,
	}
}

// NormalizeCode is how codes are shaped everywhere: trimmed and upper-cased,
// on write and on lookup alike.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *CouponService) List(ctx context.Context) ([]models.Coupon, error) {
	return s.coupons.List(ctx)
}

func (s *CouponService) Get(ctx context.Context, id int) (*models.Coupon, error) {
	return s.coupons.GetByID(ctx, id)
}

func (s *CouponService) Create(ctx context.Context, c *models.Coupon) (*models.Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	c.UsedCount = 0

	created, err := s.coupons.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	s.log.Infow("coupon created", "coupon_id", created.ID, "code", created.Code)
	return created, nil
}

// UpdateCouponInput carries a partial update; nil fields are left unchanged.
type UpdateCouponInput struct {
	Code            *string              `json:"code"`
	Name            *string              `json:"name"`
	Description     *string              `json:"description"`
	DiscountType    *models.DiscountType `json:"discount_type"`
	DiscountValue   *decimal.Decimal     `json:"discount_value"`
	MinAmount       *decimal.NullDecimal `json:"min_amount"`
	MaxDiscount     *decimal.NullDecimal `json:"max_discount"`
	UsageLimit      *int                 `json:"usage_limit"`
	IsActive        *bool                `json:"is_active"`
	ValidFrom       *time.Time           `json:"valid_from"`
	ValidUntil      *time.Time           `json:"valid_until"`
	ApplicablePlans []int64              `json:"applicable_plans"`
}

func (s *CouponService) Update(ctx context.Context, id int, in UpdateCouponInput) (*models.Coupon, error) {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prevCode := c.Code

	if in.Code != nil {
		c.Code = NormalizeCode(*in.Code)
	}
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.DiscountType != nil {
		c.DiscountType = *in.DiscountType
	}
	if in.DiscountValue != nil {
		c.DiscountValue = *in.DiscountValue
	}
	if in.MinAmount != nil {
		c.MinAmount = *in.MinAmount
	}
	if in.MaxDiscount != nil {
		c.MaxDiscount = *in.MaxDiscount
	}
	if in.UsageLimit != nil {
		c.UsageLimit = in.UsageLimit
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if in.ValidFrom != nil {
		c.ValidFrom = in.ValidFrom
	}
	if in.ValidUntil != nil {
		c.ValidUntil = in.ValidUntil
	}
	if in.ApplicablePlans != nil {
		c.ApplicablePlans = in.ApplicablePlans
	}
	c.UpdatedAt = time.Now().UTC()

	updated, err := s.coupons.Update(ctx, c)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(prevCode)
	s.cache.Invalidate(updated.Code)
	return updated, nil
}

func (s *CouponService) Delete(ctx context.Context, id int) error {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.coupons.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(c.Code)
	s.log.Infow("coupon deleted", "coupon_id", id, "code", c.Code)
	return nil
}

// Validate runs the full decision sequence for a candidate purchase without
// consuming a usage slot. It never returns an error: business-rule failures
// and internal failures alike are folded into the result so callers can
// always branch on IsValid.
func (s *CouponService) Validate(ctx context.Context, code string, amount decimal.Decimal, planID int) models.ValidationResult {
	coupon, failure := s.check(ctx, code, amount, planID)
	if failure != "" {
		return invalidResult(amount, failure)
	}

	discount := coupon.Discount(amount)
	return appliedResult(coupon, amount, discount)
}

// Redeem validates and consumes in one call. The usage increment is the
// gate: it is conditional on the limit at the store, so two racing redeemers
// of a coupon with one slot left cannot both succeed. Validate remains the
// preview-only call for checkout UIs.
func (s *CouponService) Redeem(ctx context.Context, code string, amount decimal.Decimal, planID int) models.ValidationResult {
	coupon, failure := s.check(ctx, code, amount, planID)
	if failure != "" {
		return invalidResult(amount, failure)
	}

	consumed, err := s.increment(ctx, coupon.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLimitReached):
			return invalidResult(amount, msgLimitReached)
		case errors.Is(err, repository.ErrNotFound):
			return invalidResult(amount, msgInvalidCode)
		default:
			s.log.Errorw("coupon redemption failed", "code", coupon.Code, "error", err)
			return invalidResult(amount, msgInternal)
		}
	}
	s.cache.Invalidate(consumed.Code)

	discount := consumed.Discount(amount)
	return appliedResult(consumed, amount, discount)
}

// Apply consumes one usage slot for the coupon. The atomic conditional
// increment is the normal path; the read-then-write fallback only runs when
// the store reports no atomic primitive, and loses increments under
// concurrency (documented degraded mode).
func (s *CouponService) Apply(ctx context.Context, id int) (*models.Coupon, error) {
	c, err := s.increment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(c.Code)
	return c, nil
}

// Applicable returns the codes of every active coupon that would validate
// for the purchase right now. Coupons are evaluated concurrently; each
// worker writes only its own slot.
func (s *CouponService) Applicable(ctx context.Context, amount decimal.Decimal, planID int) ([]string, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.IsEnabled {
		return []string{}, nil
	}

	coupons, err := s.coupons.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	codes := make([]string, len(coupons))
	concurrency.ForEach(ctx, 4, len(coupons), func(_ context.Context, i int) {
		if evaluateRules(&coupons[i], amount, planID, now) == "" {
			codes[i] = coupons[i].Code
		}
	})

	return lo.Filter(codes, func(code string, _ int) bool { return code != "" }), nil
}

func (s *CouponService) GetSettings(ctx context.Context) (*models.CouponSettings, error) {
	return s.settings.Get(ctx)
}

// UpdateSettingsInput carries a partial settings update; nil fields are left
// unchanged.
type UpdateSettingsInput struct {
	IsEnabled             *bool                `json:"is_enabled"`
	AllowStacking         *bool                `json:"allow_stacking"`
	MaxDiscountPercentage *decimal.NullDecimal `json:"max_discount_percentage"`
}

func (s *CouponService) UpdateSettings(ctx context.Context, in UpdateSettingsInput) (*models.CouponSettings, error) {
	current, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if in.IsEnabled != nil {
		current.IsEnabled = *in.IsEnabled
	}
	if in.AllowStacking != nil {
		current.AllowStacking = *in.AllowStacking
	}
	if in.MaxDiscountPercentage != nil {
		current.MaxDiscountPercentage = *in.MaxDiscountPercentage
	}

	updated, err := s.settings.Update(ctx, current)
	if err != nil {
		return nil, err
	}
	s.log.Infow("coupon settings updated", "is_enabled", updated.IsEnabled)
	return updated, nil
}

// check runs steps 1–7 of the decision sequence and returns the matched
// coupon, or a failure message when any rule short-circuits.
func (s *CouponService) check(ctx context.Context, code string, amount decimal.Decimal, planID int) (*models.Coupon, string) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.log.Errorw("failed to load coupon settings", "error", err)
		return nil, msgInternal
	}
	if !settings.IsEnabled {
		return nil, msgDisabled
	}

	coupon, err := s.lookup(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, msgInvalidCode
		}
		s.log.Errorw("coupon lookup failed", "code", code, "error", err)
		return nil, msgInternal
	}

	if msg := evaluateRules(coupon, amount, planID, time.Now().UTC()); msg != "" {
		return nil, msg
	}
	return coupon, ""
}

// evaluateRules applies the date-window, usage-limit, minimum-amount and
// plan-restriction rules in order, returning the first failure message or ""
// when the coupon qualifies.
func evaluateRules(c *models.Coupon, amount decimal.Decimal, planID int, now time.Time) string {
	if c.ValidFrom != nil && c.ValidFrom.After(now) {
		return msgNotYetActive
	}
	if c.ValidUntil != nil && c.ValidUntil.Before(now) {
		return msgExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return msgLimitReached
	}
	if c.MinAmount.Valid && amount.LessThan(c.MinAmount.Decimal) {
		return fmt.Sprintf("Minimum order amount %s required.", c.MinAmount.Decimal)
	}
	if len(c.ApplicablePlans) > 0 && !lo.Contains(c.ApplicablePlans, int64(planID)) {
		return msgNotApplicable
	}
	return ""
}

func (s *CouponService) lookup(ctx context.Context, code string) (*models.Coupon, error) {
	if c, ok := s.cache.Get(code); ok {
		return c, nil
	}
	c, err := s.coupons.GetActiveByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.cache.Set(c)
	return c, nil
}

func (s *CouponService) increment(ctx context.Context, id int) (*models.Coupon, error) {
	c, err := s.coupons.IncrementUsage(ctx, id)
	if errors.Is(err, repository.ErrAtomicUnsupported) {
		s.log.Warnw("atomic increment unavailable, using read-then-write fallback", "coupon_id", id)
		return s.applyFallback(ctx, id)
	}
	return c, err
}

func (s *CouponService) applyFallback(ctx context.Context, id int) (*models.Coupon, error) {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, repository.ErrLimitReached
	}
	return s.coupons.SetUsedCount(ctx, id, c.UsedCount+1)
}

func invalidResult(amount decimal.Decimal, message string) models.ValidationResult {
	return models.ValidationResult{
		IsValid:        false,
		DiscountAmount: decimal.Zero,
		FinalAmount:    amount,
		Message:        message,
	}
}

func appliedResult(c *models.Coupon, amount, discount decimal.Decimal) models.ValidationResult {
	final := amount.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return models.ValidationResult{
		IsValid:        true,
		Coupon:         c,
		DiscountAmount: discount,
		FinalAmount:    final,
		Message:        fmt.Sprintf("Coupon applied! You saved %s.", discount),
	}
}
