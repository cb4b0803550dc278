package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pathway-hq/credits/internal/models"
)

var (
	// ErrUnknownActionKind is returned for an action without a configured cost.
	ErrUnknownActionKind = errors.New("pricing: unknown action kind")
	// ErrUnknownPlan is returned for a subscription tier without an allowance.
	ErrUnknownPlan = errors.New("pricing: unknown subscription plan")
	// ErrNegativeValue is returned when an update carries a negative cost or allowance.
	ErrNegativeValue = errors.New("pricing: values must be non-negative")
)

// Snapshot is an immutable view of the pricing configuration.
type Snapshot struct {
	costs      map[models.ActionKind]int64
	allowances map[models.SubscriptionPlan]int64
	waived     map[models.SubscriptionPlan]struct{}
	updatedAt  time.Time
}

// newSnapshot builds a snapshot from the stored singleton.
func newSnapshot(cfg models.PricingConfig) (Snapshot, error) {
	snap := Snapshot{
		costs: map[models.ActionKind]int64{
			models.ActionEarlyAccess:         cfg.EarlyAccessCost,
			models.ActionCustomCV:            cfg.CustomCVCost,
			models.ActionCoverLetter:         cfg.CoverLetterCost,
			models.ActionInternalApplication: cfg.InternalApplicationCost,
			models.ActionCompanyProposal:     cfg.CompanyProposalCost,
		},
		allowances: map[models.SubscriptionPlan]int64{
			models.PlanFree:           cfg.FreeAllowance,
			models.PlanStudentPremium: cfg.StudentPremiumAllowance,
			models.PlanStudentPro:     cfg.StudentProAllowance,
			models.PlanCompanyBasic:   cfg.CompanyBasicAllowance,
			models.PlanCompanyPremium: cfg.CompanyPremiumAllowance,
			models.PlanCompanyPro:     cfg.CompanyProAllowance,
		},
		waived:    make(map[models.SubscriptionPlan]struct{}),
		updatedAt: cfg.UpdatedAt.UTC(),
	}

	plans, errPlans := decodePlans(cfg.FeeWaivedPlans)
	if errPlans != nil {
		return Snapshot{}, errPlans
	}
	for _, plan := range plans {
		snap.waived[plan] = struct{}{}
	}
	return snap, nil
}

// Cost returns the credit cost of an action.
func (s Snapshot) Cost(kind models.ActionKind) (int64, error) {
	cost, ok := s.costs[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActionKind, kind)
	}
	return cost, nil
}

// Allowance returns the monthly credit allowance of a tier.
func (s Snapshot) Allowance(plan models.SubscriptionPlan) (int64, error) {
	if plan == "" {
		plan = models.PlanFree
	}
	allowance, ok := s.allowances[plan]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	return allowance, nil
}

// FeeWaived reports whether early access is free for the tier.
func (s Snapshot) FeeWaived(plan models.SubscriptionPlan) bool {
	_, ok := s.waived[plan]
	return ok
}

// Costs returns a copy of all action costs.
func (s Snapshot) Costs() map[models.ActionKind]int64 {
	out := make(map[models.ActionKind]int64, len(s.costs))
	for k, v := range s.costs {
		out[k] = v
	}
	return out
}

// Allowances returns a copy of all tier allowances.
func (s Snapshot) Allowances() map[models.SubscriptionPlan]int64 {
	out := make(map[models.SubscriptionPlan]int64, len(s.allowances))
	for k, v := range s.allowances {
		out[k] = v
	}
	return out
}

// WaivedPlans returns the tiers with free early access in canonical order.
func (s Snapshot) WaivedPlans() []models.SubscriptionPlan {
	out := make([]models.SubscriptionPlan, 0, len(s.waived))
	for _, plan := range models.SubscriptionPlans {
		if _, ok := s.waived[plan]; ok {
			out = append(out, plan)
		}
	}
	return out
}

// UpdatedAt returns when the stored configuration was last changed.
func (s Snapshot) UpdatedAt() time.Time { return s.updatedAt }

// decodePlans parses the fee_waived_plans JSON column.
func decodePlans(raw []byte) ([]models.SubscriptionPlan, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var values []string
	if errUnmarshal := json.Unmarshal(raw, &values); errUnmarshal != nil {
		return nil, fmt.Errorf("pricing: decode fee waived plans: %w", errUnmarshal)
	}
	out := make([]models.SubscriptionPlan, 0, len(values))
	for _, value := range values {
		plan, ok := models.ParseSubscriptionPlan(value)
		if !ok || value == "" {
			continue
		}
		out = append(out, plan)
	}
	return out, nil
}
