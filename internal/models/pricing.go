package models

import (
	"time"

	internalsettings "github.com/pathway-hq/credits/internal/settings"
	"gorm.io/datatypes"
)

// PricingConfigID is the primary key of the pricing singleton row.
const PricingConfigID uint64 = 1

// PricingConfig stores action costs and monthly allowances per tier.
type PricingConfig struct {
	ID uint64 `gorm:"primaryKey"` // Always PricingConfigID.

	EarlyAccessCost         int64 `gorm:"not null;default:0"` // Cost of unlocking early access.
	CustomCVCost            int64 `gorm:"not null;default:0"` // Cost of generating a custom CV.
	CoverLetterCost         int64 `gorm:"not null;default:0"` // Cost of generating a cover letter.
	InternalApplicationCost int64 `gorm:"not null;default:0"` // Cost of an internal application.
	CompanyProposalCost     int64 `gorm:"not null;default:0"` // Cost of a company proposal.

	FreeAllowance           int64 `gorm:"not null;default:0"` // Monthly credits for FREE.
	StudentPremiumAllowance int64 `gorm:"not null;default:0"` // Monthly credits for STUDENT_PREMIUM.
	StudentProAllowance     int64 `gorm:"not null;default:0"` // Monthly credits for STUDENT_PRO.
	CompanyBasicAllowance   int64 `gorm:"not null;default:0"` // Monthly credits for COMPANY_BASIC.
	CompanyPremiumAllowance int64 `gorm:"not null;default:0"` // Monthly credits for COMPANY_PREMIUM.
	CompanyProAllowance     int64 `gorm:"not null;default:0"` // Monthly credits for COMPANY_PRO.

	FeeWaivedPlans datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Plans that unlock early access for free.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DefaultPricingConfig returns the pricing singleton populated with built-in defaults.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		ID:                      PricingConfigID,
		EarlyAccessCost:         internalsettings.DefaultEarlyAccessCost,
		CustomCVCost:            internalsettings.DefaultCustomCVCost,
		CoverLetterCost:         internalsettings.DefaultCoverLetterCost,
		InternalApplicationCost: internalsettings.DefaultInternalApplicationCost,
		CompanyProposalCost:     internalsettings.DefaultCompanyProposalCost,
		FreeAllowance:           internalsettings.DefaultFreeAllowance,
		StudentPremiumAllowance: internalsettings.DefaultStudentPremiumAllowance,
		StudentProAllowance:     internalsettings.DefaultStudentProAllowance,
		CompanyBasicAllowance:   internalsettings.DefaultCompanyBasicAllowance,
		CompanyPremiumAllowance: internalsettings.DefaultCompanyPremiumAllowance,
		CompanyProAllowance:     internalsettings.DefaultCompanyProAllowance,
		FeeWaivedPlans:          datatypes.JSON([]byte(`["` + string(PlanStudentPro) + `"]`)),
	}
}
