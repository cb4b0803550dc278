package models

import "strings"

// SubscriptionPlan identifies a subscription tier.
type SubscriptionPlan string

// SubscriptionPlan constants define the supported tiers.
const (
	PlanFree           SubscriptionPlan = "FREE"
	PlanStudentPremium SubscriptionPlan = "STUDENT_PREMIUM"
	PlanStudentPro     SubscriptionPlan = "STUDENT_PRO"
	PlanCompanyBasic   SubscriptionPlan = "COMPANY_BASIC"
	PlanCompanyPremium SubscriptionPlan = "COMPANY_PREMIUM"
	PlanCompanyPro     SubscriptionPlan = "COMPANY_PRO"
)

// SubscriptionPlans lists every tier in display order.
var SubscriptionPlans = []SubscriptionPlan{
	PlanFree,
	PlanStudentPremium,
	PlanStudentPro,
	PlanCompanyBasic,
	PlanCompanyPremium,
	PlanCompanyPro,
}

// ParseSubscriptionPlan normalizes raw input; an empty value maps to FREE.
func ParseSubscriptionPlan(raw string) (SubscriptionPlan, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return PlanFree, true
	}
	for _, plan := range SubscriptionPlans {
		if string(plan) == trimmed {
			return plan, true
		}
	}
	return "", false
}

// ActionKind names a platform action that costs credits.
type ActionKind string

// ActionKind constants define the priced actions.
const (
	ActionEarlyAccess         ActionKind = "EARLY_ACCESS"
	ActionCustomCV            ActionKind = "CUSTOM_CV"
	ActionCoverLetter         ActionKind = "COVER_LETTER"
	ActionInternalApplication ActionKind = "INTERNAL_APPLICATION"
	ActionCompanyProposal     ActionKind = "COMPANY_PROPOSAL"
)

// ActionKinds lists every priced action.
var ActionKinds = []ActionKind{
	ActionEarlyAccess,
	ActionCustomCV,
	ActionCoverLetter,
	ActionInternalApplication,
	ActionCompanyProposal,
}

// ParseActionKind normalizes raw input into a known action kind.
func ParseActionKind(raw string) (ActionKind, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	for _, kind := range ActionKinds {
		if string(kind) == trimmed {
			return kind, true
		}
	}
	return "", false
}
