package access

import (
	"math"
	"time"
)

type Role string

const (
	RoleOwner      Role = "owner"
	RoleBarber     Role = "barber"
	RoleSuperAdmin Role = "super_admin"
)

// Decision is the outcome of an access evaluation for one tenant.
type Decision string

const (
	// DecisionFullAccess grants unrestricted access.
	DecisionFullAccess Decision = "full_access"
	// DecisionNoCompany means no tenant record exists for the user; there
	// is nothing to gate, so callers treat it like full access.
	DecisionNoCompany Decision = "no_company"
	// DecisionBlocked is the administrative hard block.
	DecisionBlocked Decision = "blocked"
	// DecisionTrialExpired is the terminal "choose a plan" state, shared
	// by expired trials and cancelled/overdue subscriptions.
	DecisionTrialExpired Decision = "trial_expired"
	// DecisionGracePeriod grants access with a non-blocking warning.
	DecisionGracePeriod Decision = "grace_period"
)

const (
	PlanStatusTrial     = "trial"
	PlanStatusPartner   = "partner"
	PlanStatusActive    = "active"
	PlanStatusCancelled = "cancelled"
	PlanStatusOverdue   = "overdue"
)

// Company is the tenant record as seen by the evaluator.
type Company struct {
	ID            string
	OwnerUserID   string
	Name          string
	PlanStatus    string
	TrialEndsAt   *time.Time
	PartnerEndsAt *time.Time
	IsBlocked     bool
}

// Result carries the decision plus the day count backing a grace warning.
type Result struct {
	Decision      Decision
	DaysRemaining int
}

// Trial accounts warn inside the last 3 days; partner accounts inside the
// last 7. Partners are never cut off by the deadline alone.
const (
	trialGraceDays   = 3
	partnerGraceDays = 7
)

// Evaluate computes the access decision for a user with the given roles
// over the given tenant. Pure: the only clock it sees is now.
//
// Precedence, first match wins: super_admin bypasses everything
// (including the administrative block); a missing tenant gates nothing;
// the administrative block beats every plan status; then the plan status
// rules apply.
func Evaluate(roles []Role, company *Company, now time.Time) Result {
	for _, r := range roles {
		if r == RoleSuperAdmin {
			return Result{Decision: DecisionFullAccess}
		}
	}

	if company == nil {
		return Result{Decision: DecisionNoCompany}
	}

	if company.IsBlocked {
		return Result{Decision: DecisionBlocked}
	}

	switch company.PlanStatus {
	case PlanStatusTrial:
		if company.TrialEndsAt == nil {
			return Result{Decision: DecisionFullAccess}
		}
		days := daysUntil(*company.TrialEndsAt, now)
		if days <= 0 {
			return Result{Decision: DecisionTrialExpired}
		}
		if days <= trialGraceDays {
			return Result{Decision: DecisionGracePeriod, DaysRemaining: days}
		}
		return Result{Decision: DecisionFullAccess}

	case PlanStatusPartner:
		if company.PartnerEndsAt == nil {
			return Result{Decision: DecisionFullAccess}
		}
		days := daysUntil(*company.PartnerEndsAt, now)
		// A lapsed partner keeps access; only the warning window applies.
		if days <= partnerGraceDays {
			return Result{Decision: DecisionGracePeriod, DaysRemaining: days}
		}
		return Result{Decision: DecisionFullAccess}

	case PlanStatusCancelled, PlanStatusOverdue:
		return Result{Decision: DecisionTrialExpired}

	default:
		// active, or any status this build does not know about.
		return Result{Decision: DecisionFullAccess}
	}
}

// daysUntil is a calendar ceiling over the millisecond difference: any
// partial day ahead counts as a full day, and an exact-zero difference
// counts as zero (already due).
func daysUntil(deadline, now time.Time) int {
	const dayMs = 24 * 60 * 60 * 1000
	diff := deadline.Sub(now).Milliseconds()
	return int(math.Ceil(float64(diff) / float64(dayMs)))
}
