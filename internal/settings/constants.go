package settings

import "time"

// UnlimitedCredits is the allowance sentinel used for tiers without a practical cap.
const UnlimitedCredits int64 = 999999

// Default action costs in credits.
const (
	// DefaultEarlyAccessCost is the fallback cost of an early access unlock.
	DefaultEarlyAccessCost int64 = 5
	// DefaultCustomCVCost is the fallback cost of a custom CV.
	DefaultCustomCVCost int64 = 3
	// DefaultCoverLetterCost is the fallback cost of a cover letter.
	DefaultCoverLetterCost int64 = 2
	// DefaultInternalApplicationCost is the fallback cost of an internal application.
	DefaultInternalApplicationCost int64 = 1
	// DefaultCompanyProposalCost is the fallback cost of a company proposal.
	DefaultCompanyProposalCost int64 = 5
)

// Default monthly allowances per subscription tier.
const (
	DefaultFreeAllowance           int64 = 5
	DefaultStudentPremiumAllowance int64 = 30
	DefaultStudentProAllowance           = UnlimitedCredits
	DefaultCompanyBasicAllowance   int64 = 20
	DefaultCompanyPremiumAllowance int64 = 60
	DefaultCompanyProAllowance           = UnlimitedCredits
)

// Runtime defaults for the credit core.
const (
	// DefaultPricingCacheTTL bounds how stale a cached pricing snapshot may be.
	DefaultPricingCacheTTL = 30 * time.Second
	// DefaultRefreshInterval is how often the scheduler looks for due refreshes.
	DefaultRefreshInterval = time.Hour
	// DefaultRefreshBatchSize caps users refreshed per scheduler tick.
	DefaultRefreshBatchSize = 200
	// DefaultUserHeader carries the authenticated user ID set by the gateway.
	DefaultUserHeader = "X-User-ID"
	// DefaultJobLockPrefix is the fallback Redis key prefix for job locks.
	DefaultJobLockPrefix = "credits:lock"
	// RefreshJobName identifies the monthly refresh job lock.
	RefreshJobName = "monthly-refresh"
)
