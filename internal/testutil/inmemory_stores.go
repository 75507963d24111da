// Package testutil provides in-memory implementations of the service's
// store interfaces for tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/membercore/coupon-service/internal/models"
	"github.com/membercore/coupon-service/internal/repository"
)

// InMemoryCouponStore implements service.CouponStore.
type InMemoryCouponStore struct {
	mu      sync.Mutex
	coupons map[int]*models.Coupon
	nextID  int

	// DisableAtomic makes IncrementUsage report ErrAtomicUnsupported,
	// forcing callers onto the read-then-write fallback.
	DisableAtomic bool

	// ForcedErr, when set, is returned by every operation. Simulates an
	// unreachable store.
	ForcedErr error
}

func NewInMemoryCouponStore() *InMemoryCouponStore {
	return &InMemoryCouponStore{
		coupons: make(map[int]*models.Coupon),
		nextID:  1,
	}
}

func copyCoupon(c *models.Coupon) *models.Coupon {
	if c == nil {
		return nil
	}
	copied := *c
	if c.UsageLimit != nil {
		limit := *c.UsageLimit
		copied.UsageLimit = &limit
	}
	if c.ValidFrom != nil {
		t := *c.ValidFrom
		copied.ValidFrom = &t
	}
	if c.ValidUntil != nil {
		t := *c.ValidUntil
		copied.ValidUntil = &t
	}
	if c.ApplicablePlans != nil {
		copied.ApplicablePlans = append([]int64(nil), c.ApplicablePlans...)
	}
	return &copied
}

func (s *InMemoryCouponStore) List(ctx context.Context) ([]models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}

	out := make([]models.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, *copyCoupon(c))
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemoryCouponStore) ListActive(ctx context.Context) ([]models.Coupon, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, c := range all {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active, nil
}

func (s *InMemoryCouponStore) GetByID(ctx context.Context, id int) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}

	c, ok := s.coupons[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyCoupon(c), nil
}

func (s *InMemoryCouponStore) GetActiveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}

	for _, c := range s.coupons {
		if c.Code == code && c.IsActive {
			return copyCoupon(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *InMemoryCouponStore) Create(ctx context.Context, c *models.Coupon) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}

	created := copyCoupon(c)
	created.ID = s.nextID
	s.nextID++
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	s.coupons[created.ID] = created
	return copyCoupon(created), nil
}

func (s *InMemoryCouponStore) Update(ctx context.Context, c *models.Coupon) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}

	if _, ok := s.coupons[c.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	s.coupons[c.ID] = copyCoupon(c)
	return copyCoupon(c), nil
}

func (s *InMemoryCouponStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return s.ForcedErr
	}

	if _, ok := s.coupons[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.coupons, id)
	return nil
}

func (s *InMemoryCouponStore) IncrementUsage(ctx context.Context, id int) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}
	if s.DisableAtomic {
		return nil, repository.ErrAtomicUnsupported
	}

	c, ok := s.coupons[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, repository.ErrLimitReached
	}
	c.UsedCount++
	c.UpdatedAt = time.Now().UTC()
	return copyCoupon(c), nil
}

func (s *InMemoryCouponStore) SetUsedCount(ctx context.Context, id, usedCount int) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}

	c, ok := s.coupons[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c.UsedCount = usedCount
	c.UpdatedAt = time.Now().UTC()
	return copyCoupon(c), nil
}

// InMemorySettingsStore implements service.SettingsStore with coupons
// enabled by default.
type InMemorySettingsStore struct {
	mu       sync.Mutex
	settings models.CouponSettings

	ForcedErr error
}

func NewInMemorySettingsStore() *InMemorySettingsStore {
	return &InMemorySettingsStore{
		settings: models.CouponSettings{
			IsEnabled: true,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func (s *InMemorySettingsStore) Get(ctx context.Context) (*models.CouponSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}
	out := s.settings
	return &out, nil
}

func (s *InMemorySettingsStore) Update(ctx context.Context, in *models.CouponSettings) (*models.CouponSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcedErr != nil {
		return nil, s.ForcedErr
	}
	s.settings = *in
	s.settings.UpdatedAt = time.Now().UTC()
	out := s.settings
	return &out, nil
}
