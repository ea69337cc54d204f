package pricing

import "testing"

func TestAnnualEquivalent(t *testing.T) {
	cases := []struct {
		monthly  float64
		discount float64
		want     float64
	}{
		{100.00, 20, 80.00},
		{199.00, 0, 199.00},
		{99.00, 20, 79.20},
		{499.00, 20, 399.20},
		{149.99, 15, 127.49},
		{0, 50, 0},
	}
	for _, tc := range cases {
		if got := AnnualEquivalent(tc.monthly, tc.discount); got != tc.want {
			t.Fatalf("AnnualEquivalent(%.2f, %.0f): expected %.2f, got %.2f", tc.monthly, tc.discount, tc.want, got)
		}
	}
}

func TestSetMonthlyRewritesAnnual(t *testing.T) {
	s := DefaultSettings()
	s.SetMonthly(TierInicial, 120.00)
	if s.Inicial.Monthly != 120.00 {
		t.Fatalf("expected monthly 120.00, got %.2f", s.Inicial.Monthly)
	}
	if s.Inicial.Annual != 96.00 {
		t.Fatalf("expected annual 96.00, got %.2f", s.Inicial.Annual)
	}
}

func TestDiscountChangeDoesNotRederive(t *testing.T) {
	s := DefaultSettings()
	s.SetAnnual(TierProfissional, 150.00)
	s.AnnualDiscountPercent = 30

	// Stored annual prices stay put until a monthly price changes.
	if s.Profissional.Annual != 150.00 {
		t.Fatalf("expected annual 150.00, got %.2f", s.Profissional.Annual)
	}

	s.SetMonthly(TierProfissional, 199.00)
	if s.Profissional.Annual != 139.30 {
		t.Fatalf("expected annual 139.30 after monthly change, got %.2f", s.Profissional.Annual)
	}
}

func TestSetMonthlyIgnoresUnknownTier(t *testing.T) {
	s := DefaultSettings()
	before := s
	s.SetMonthly("elite", 249.90)
	if s != before {
		t.Fatal("unknown tier must not change settings")
	}
}
