package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathway-hq/credits/internal/models"
	internalsettings "github.com/pathway-hq/credits/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cachedSnapshot pairs a snapshot with the time it was loaded.
type cachedSnapshot struct {
	snap     Snapshot
	loadedAt time.Time
}

// Service reads and writes the pricing singleton with a bounded-staleness cache.
type Service struct {
	db    *gorm.DB
	ttl   time.Duration
	nowFn func() time.Time

	cache  atomic.Value // cachedSnapshot
	loadMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithCacheTTL sets how long a loaded snapshot is served before re-reading; 0 disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl < 0 {
			ttl = 0
		}
		s.ttl = ttl
	}
}

// WithClock overrides the time source.
func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// NewService constructs a pricing Service.
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:    db,
		ttl:   internalsettings.DefaultPricingCacheTTL,
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current pricing, materializing defaults if the row is missing.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, fmt.Errorf("pricing: not initialized")
	}
	if snap, ok := s.cached(); ok {
		return snap, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if snap, ok := s.cached(); ok {
		return snap, nil
	}

	cfg, errLoad := s.load(ctx)
	if errLoad != nil {
		return Snapshot{}, errLoad
	}
	snap, errSnap := newSnapshot(cfg)
	if errSnap != nil {
		return Snapshot{}, errSnap
	}
	s.store(snap)
	return snap, nil
}

// Cost returns the credit cost of an action.
func (s *Service) Cost(ctx context.Context, kind models.ActionKind) (int64, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Cost(kind)
}

// Allowance returns the monthly allowance of a tier.
func (s *Service) Allowance(ctx context.Context, plan models.SubscriptionPlan) (int64, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Allowance(plan)
}

// Update describes a partial pricing change; nil fields are left untouched.
type Update struct {
	Costs       map[models.ActionKind]int64
	Allowances  map[models.SubscriptionPlan]int64
	WaivedPlans *[]models.SubscriptionPlan
}

// Update applies a privileged pricing change and refreshes the local cache.
func (s *Service) Update(ctx context.Context, upd Update) (Snapshot, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, fmt.Errorf("pricing: not initialized")
	}

	values := make(map[string]any)
	for kind, cost := range upd.Costs {
		if cost < 0 {
			return Snapshot{}, fmt.Errorf("%w: %s=%d", ErrNegativeValue, kind, cost)
		}
		column, ok := costColumns[kind]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownActionKind, kind)
		}
		values[column] = cost
	}
	for plan, allowance := range upd.Allowances {
		if allowance < 0 {
			return Snapshot{}, fmt.Errorf("%w: %s=%d", ErrNegativeValue, plan, allowance)
		}
		column, ok := allowanceColumns[plan]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
		}
		values[column] = allowance
	}
	if upd.WaivedPlans != nil {
		plans := make([]string, 0, len(*upd.WaivedPlans))
		for _, plan := range *upd.WaivedPlans {
			if _, ok := allowanceColumns[plan]; !ok {
				return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
			}
			plans = append(plans, string(plan))
		}
		raw, errMarshal := json.Marshal(plans)
		if errMarshal != nil {
			return Snapshot{}, fmt.Errorf("pricing: encode fee waived plans: %w", errMarshal)
		}
		values["fee_waived_plans"] = datatypes.JSON(raw)
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if _, errEnsure := s.load(ctx); errEnsure != nil {
		return Snapshot{}, errEnsure
	}
	if len(values) > 0 {
		values["updated_at"] = s.nowFn().UTC()
		if errUpdate := s.db.WithContext(ctx).
			Model(&models.PricingConfig{}).
			Where("id = ?", models.PricingConfigID).
			Updates(values).Error; errUpdate != nil {
			return Snapshot{}, fmt.Errorf("pricing: update: %w", errUpdate)
		}
	}

	cfg, errLoad := s.load(ctx)
	if errLoad != nil {
		return Snapshot{}, errLoad
	}
	snap, errSnap := newSnapshot(cfg)
	if errSnap != nil {
		return Snapshot{}, errSnap
	}
	s.store(snap)
	log.WithField("changed", len(values)).Info("pricing: configuration updated")
	return snap, nil
}

// Invalidate drops the cached snapshot so the next read hits the database.
func (s *Service) Invalidate() {
	if s == nil {
		return
	}
	s.cache.Store(cachedSnapshot{})
}

// load reads the singleton, creating it from defaults when absent.
func (s *Service) load(ctx context.Context) (models.PricingConfig, error) {
	var cfg models.PricingConfig
	errFind := s.db.WithContext(ctx).Where("id = ?", models.PricingConfigID).Take(&cfg).Error
	if errFind == nil {
		return cfg, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.PricingConfig{}, fmt.Errorf("pricing: load: %w", errFind)
	}

	seed := models.DefaultPricingConfig()
	if errCreate := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; errCreate != nil {
		return models.PricingConfig{}, fmt.Errorf("pricing: materialize defaults: %w", errCreate)
	}
	log.Info("pricing: configuration missing, materialized defaults")

	if errReload := s.db.WithContext(ctx).Where("id = ?", models.PricingConfigID).Take(&cfg).Error; errReload != nil {
		return models.PricingConfig{}, fmt.Errorf("pricing: reload: %w", errReload)
	}
	return cfg, nil
}

func (s *Service) cached() (Snapshot, bool) {
	if s.ttl <= 0 {
		return Snapshot{}, false
	}
	entry, ok := s.cache.Load().(cachedSnapshot)
	if !ok || entry.loadedAt.IsZero() {
		return Snapshot{}, false
	}
	if s.nowFn().Sub(entry.loadedAt) >= s.ttl {
		return Snapshot{}, false
	}
	return entry.snap, true
}

func (s *Service) store(snap Snapshot) {
	s.cache.Store(cachedSnapshot{snap: snap, loadedAt: s.nowFn()})
}

var costColumns = map[models.ActionKind]string{
	models.ActionEarlyAccess:         "early_access_cost",
	models.ActionCustomCV:            "custom_cv_cost",
	models.ActionCoverLetter:         "cover_letter_cost",
	models.ActionInternalApplication: "internal_application_cost",
	models.ActionCompanyProposal:     "company_proposal_cost",
}

var allowanceColumns = map[models.SubscriptionPlan]string{
	models.PlanFree:           "free_allowance",
	models.PlanStudentPremium: "student_premium_allowance",
	models.PlanStudentPro:     "student_pro_allowance",
	models.PlanCompanyBasic:   "company_basic_allowance",
	models.PlanCompanyPremium: "company_premium_allowance",
	models.PlanCompanyPro:     "company_pro_allowance",
}
