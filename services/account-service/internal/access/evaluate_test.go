package access

import (
	"testing"
	"time"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestEvaluate_SuperAdminBypassesEverything(t *testing.T) {
	company := &Company{
		PlanStatus: PlanStatusTrial,
		IsBlocked:  true,
		TrialEndsAt: ptr(now.Add(-48 * time.Hour)),
	}
	res := Evaluate([]Role{RoleOwner, RoleSuperAdmin}, company, now)
	if res.Decision != DecisionFullAccess {
		t.Fatalf("expected full_access, got %s", res.Decision)
	}
}

func TestEvaluate_BlockedBeatsEveryPlanStatus(t *testing.T) {
	for _, status := range []string{PlanStatusTrial, PlanStatusPartner, PlanStatusActive, PlanStatusCancelled, PlanStatusOverdue} {
		company := &Company{PlanStatus: status, IsBlocked: true}
		res := Evaluate([]Role{RoleOwner}, company, now)
		if res.Decision != DecisionBlocked {
			t.Fatalf("status %s: expected blocked, got %s", status, res.Decision)
		}
	}
}

func TestEvaluate_NoCompany(t *testing.T) {
	res := Evaluate([]Role{RoleOwner}, nil, now)
	if res.Decision != DecisionNoCompany {
		t.Fatalf("expected no_company, got %s", res.Decision)
	}
}

func TestEvaluate_TrialWindows(t *testing.T) {
	cases := []struct {
		name     string
		endsAt   time.Time
		decision Decision
		days     int
	}{
		{"plenty of time", now.Add(10 * 24 * time.Hour), DecisionFullAccess, 0},
		{"two days left", now.Add(2 * 24 * time.Hour), DecisionGracePeriod, 2},
		{"partial day counts as one", now.Add(6 * time.Hour), DecisionGracePeriod, 1},
		{"expired a second ago", now.Add(-time.Second), DecisionTrialExpired, 0},
		{"expires exactly now", now, DecisionTrialExpired, 0},
	}
	for _, tc := range cases {
		company := &Company{PlanStatus: PlanStatusTrial, TrialEndsAt: ptr(tc.endsAt)}
		res := Evaluate([]Role{RoleOwner}, company, now)
		if res.Decision != tc.decision {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.decision, res.Decision)
		}
		if tc.decision == DecisionGracePeriod && res.DaysRemaining != tc.days {
			t.Fatalf("%s: expected %d days remaining, got %d", tc.name, tc.days, res.DaysRemaining)
		}
	}
}

func TestEvaluate_TrialWithoutDeadline(t *testing.T) {
	company := &Company{PlanStatus: PlanStatusTrial}
	res := Evaluate([]Role{RoleOwner}, company, now)
	if res.Decision != DecisionFullAccess {
		t.Fatalf("expected full_access, got %s", res.Decision)
	}
}

func TestEvaluate_PartnerWindows(t *testing.T) {
	far := &Company{PlanStatus: PlanStatusPartner, PartnerEndsAt: ptr(now.Add(10 * 24 * time.Hour))}
	if res := Evaluate([]Role{RoleOwner}, far, now); res.Decision != DecisionFullAccess {
		t.Fatalf("expected full_access, got %s", res.Decision)
	}

	soon := &Company{PlanStatus: PlanStatusPartner, PartnerEndsAt: ptr(now.Add(5 * 24 * time.Hour))}
	res := Evaluate([]Role{RoleOwner}, soon, now)
	if res.Decision != DecisionGracePeriod || res.DaysRemaining != 5 {
		t.Fatalf("expected grace_period with 5 days, got %s/%d", res.Decision, res.DaysRemaining)
	}
}

func TestEvaluate_PartnerNeverHardCut(t *testing.T) {
	// A partner deadline in the past still grants access; the warning day
	// count just goes to zero or negative.
	company := &Company{PlanStatus: PlanStatusPartner, PartnerEndsAt: ptr(now.Add(-30 * 24 * time.Hour))}
	res := Evaluate([]Role{RoleOwner}, company, now)
	if res.Decision != DecisionGracePeriod {
		t.Fatalf("expected grace_period, got %s", res.Decision)
	}
	if res.DaysRemaining > 0 {
		t.Fatalf("expected non-positive days remaining, got %d", res.DaysRemaining)
	}
}

func TestEvaluate_TerminalStatuses(t *testing.T) {
	for _, status := range []string{PlanStatusCancelled, PlanStatusOverdue} {
		company := &Company{PlanStatus: status}
		res := Evaluate(nil, company, now)
		if res.Decision != DecisionTrialExpired {
			t.Fatalf("status %s: expected trial_expired, got %s", status, res.Decision)
		}
	}
}

func TestEvaluate_ActiveAndUnknownStatuses(t *testing.T) {
	for _, status := range []string{PlanStatusActive, "some_future_status", ""} {
		company := &Company{PlanStatus: status}
		res := Evaluate([]Role{RoleBarber}, company, now)
		if res.Decision != DecisionFullAccess {
			t.Fatalf("status %q: expected full_access, got %s", status, res.Decision)
		}
	}
}

func TestDaysUntil(t *testing.T) {
	cases := []struct {
		delta time.Duration
		want  int
	}{
		{48 * time.Hour, 2},
		{49 * time.Hour, 3},
		{time.Millisecond, 1},
		{0, 0},
		{-time.Millisecond, 0},
		{-25 * time.Hour, -1},
	}
	for _, tc := range cases {
		if got := daysUntil(now.Add(tc.delta), now); got != tc.want {
			t.Fatalf("daysUntil(now+%s): expected %d, got %d", tc.delta, tc.want, got)
		}
	}
}
