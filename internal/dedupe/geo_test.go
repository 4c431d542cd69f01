package dedupe

import (
	"math"
	"testing"
)

func TestHaversineKM(t *testing.T) {
	if got := HaversineKM(14.5995, 120.9842, 14.5995, 120.9842); got != 0 {
		t.Fatalf("same point: got %v want 0", got)
	}
	// One degree of latitude is roughly 111.2 km.
	got := HaversineKM(0, 0, 1, 0)
	if math.Abs(got-111.19) > 0.5 {
		t.Fatalf("1 degree latitude: got %v want ~111.19", got)
	}
}

func TestLocationScore_Buckets(t *testing.T) {
	cases := []struct {
		km    float64
		want  float64
		keep  bool
	}{
		{0.0, 1.0, true},
		{0.05, 1.0, true},
		{0.07, 0.9, true},
		{0.2, 0.75, true},
		{0.4, 0.5, true},
		{0.9, 0.25, true},
		{1.0, 0.25, true},
		{1.5, 0, false},
	}
	for _, tc := range cases {
		got, ok := LocationScore(tc.km)
		if got != tc.want || ok != tc.keep {
			t.Errorf("LocationScore(%v)=(%v,%v) want (%v,%v)", tc.km, got, ok, tc.want, tc.keep)
		}
	}
}

func TestSameStreet(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"Main Street", "123 Main St", true},
		{"Rizal Avenue", "rizal ave. corner lot", true},
		{"Main Street", "Oak Street", false},
		{"", "Main Street", false},
		{"Main Street", "", false},
	}
	for _, tc := range cases {
		if got := SameStreet(tc.a, tc.b); got != tc.want {
			t.Errorf("SameStreet(%q,%q)=%v want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
