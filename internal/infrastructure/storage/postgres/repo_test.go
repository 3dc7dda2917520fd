package postgres

import "testing"

func TestRoundMatchesSummaryPrecision(t *testing.T) {
	cases := []struct {
		v      float64
		places int
		want   float64
	}{
		{3.14159, 3, 3.142},
		{3.14159, 2, 3.14},
		{0.0461728, 3, 0.046},
		{0, 3, 0},
	}
	for _, tc := range cases {
		if got := round(tc.v, tc.places); got != tc.want {
			t.Errorf("round(%v, %d) = %v, want %v", tc.v, tc.places, got, tc.want)
		}
	}
}

func TestPctOrZero(t *testing.T) {
	if got := pctOrZero(nil); got != 0 {
		t.Errorf("pctOrZero(nil) = %v, want 0", got)
	}
	v := 0.23
	if got := pctOrZero(&v); got != 0.23 {
		t.Errorf("pctOrZero = %v, want 0.23", got)
	}
}
