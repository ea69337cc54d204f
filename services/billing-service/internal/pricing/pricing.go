package pricing

import "math"

// Plan tiers offered on the plan selection page.
const (
	TierInicial      = "inicial"
	TierProfissional = "profissional"
	TierFranquias    = "franquias"
)

// AnnualEquivalent computes the discounted monthly price charged on the
// annual plan: monthly * (1 - discount/100), rounded half-up to cents.
// It never rejects its inputs; range checks belong to the caller.
func AnnualEquivalent(monthly float64, discountPercent float64) float64 {
	return round2(monthly * (1 - discountPercent/100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type TierPrice struct {
	Monthly float64 `json:"monthly"`
	Annual  float64 `json:"annual"`
}

// PlanSettings is the process-wide pricing configuration. The annual
// price per tier is a stored value, not a live formula: SetMonthly
// rewrites it as a convenience default, manual edits stick, and a later
// discount change does not re-derive it.
type PlanSettings struct {
	Inicial               TierPrice `json:"inicial"`
	Profissional          TierPrice `json:"profissional"`
	Franquias             TierPrice `json:"franquias"`
	AnnualDiscountPercent float64   `json:"annual_discount_percent"`
	DefaultTrialDays      int       `json:"default_trial_days"`
}

// DefaultSettings returns the launch pricing.
func DefaultSettings() PlanSettings {
	return PlanSettings{
		Inicial:               TierPrice{Monthly: 99.00, Annual: 79.00},
		Profissional:          TierPrice{Monthly: 199.00, Annual: 159.00},
		Franquias:             TierPrice{Monthly: 499.00, Annual: 399.00},
		AnnualDiscountPercent: 20,
		DefaultTrialDays:      14,
	}
}

// SetMonthly updates a tier's monthly price and overwrites its annual
// price with the derived default. Unknown tiers are ignored.
func (s *PlanSettings) SetMonthly(tier string, monthly float64) {
	price := TierPrice{
		Monthly: monthly,
		Annual:  AnnualEquivalent(monthly, s.AnnualDiscountPercent),
	}
	switch tier {
	case TierInicial:
		s.Inicial = price
	case TierProfissional:
		s.Profissional = price
	case TierFranquias:
		s.Franquias = price
	}
}

// SetAnnual overrides a tier's annual price without touching the
// monthly price or the shared discount.
func (s *PlanSettings) SetAnnual(tier string, annual float64) {
	switch tier {
	case TierInicial:
		s.Inicial.Annual = annual
	case TierProfissional:
		s.Profissional.Annual = annual
	case TierFranquias:
		s.Franquias.Annual = annual
	}
}

// Tier returns the stored prices for a tier.
func (s PlanSettings) Tier(tier string) (TierPrice, bool) {
	switch tier {
	case TierInicial:
		return s.Inicial, true
	case TierProfissional:
		return s.Profissional, true
	case TierFranquias:
		return s.Franquias, true
	}
	return TierPrice{}, false
}
