package handlers

import (
	"context"
	"errors"
	"testing"
)

type stubTrialDays struct {
	days int
	err  error
}

func (s stubTrialDays) DefaultTrialDays(context.Context) (int, error) {
	return s.days, s.err
}

func TestResolveTrialDaysPrefersPlanSettings(t *testing.T) {
	h := NewAuthHandler(nil, nil, nil, nil, nil, nil, nil, nil, stubTrialDays{days: 30}, 0, 14)
	if got := h.resolveTrialDays(context.Background()); got != 30 {
		t.Fatalf("expected configured 30 days, got %d", got)
	}
}

func TestResolveTrialDaysFallsBack(t *testing.T) {
	cases := []struct {
		name string
		src  trialDaysSource
	}{
		{"no source", nil},
		{"lookup error", stubTrialDays{err: errors.New("db down")}},
		{"missing row", stubTrialDays{days: 0}},
	}
	for _, tc := range cases {
		h := NewAuthHandler(nil, nil, nil, nil, nil, nil, nil, nil, tc.src, 0, 14)
		if got := h.resolveTrialDays(context.Background()); got != 14 {
			t.Fatalf("%s: expected fallback 14 days, got %d", tc.name, got)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestPrimaryRole(t *testing.T) {
	cases := []struct {
		roles []string
		want  string
	}{
		{nil, "barber"},
		{[]string{"barber"}, "barber"},
		{[]string{"barber", "owner"}, "owner"},
		{[]string{"owner", "super_admin"}, "super_admin"},
		{[]string{"super_admin", "barber"}, "super_admin"},
	}
	for _, tc := range cases {
		if got := primaryRole(tc.roles); got != tc.want {
			t.Fatalf("primaryRole(%v): expected %s, got %s", tc.roles, tc.want, got)
		}
	}
}
