package commission

import "testing"

func TestAmount(t *testing.T) {
	cases := []struct {
		total float64
		rate  float64
		want  float64
	}{
		{100, 50, 50},
		{80, 40, 32},
		{99.90, 35, 34.97},
		{45.50, 33.33, 15.17},
		{0, 50, 0},
		{100, 0, 0},
		{100, 100, 100},
	}
	for _, tc := range cases {
		if got := Amount(tc.total, tc.rate); got != tc.want {
			t.Errorf("Amount(%v, %v) = %v, want %v", tc.total, tc.rate, got, tc.want)
		}
	}
}

func TestAmountClampsRate(t *testing.T) {
	if got := Amount(100, -10); got != 0 {
		t.Fatalf("negative rate: got %v, want 0", got)
	}
	if got := Amount(100, 150); got != 100 {
		t.Fatalf("rate above 100: got %v, want 100", got)
	}
}
