package tender_test

import (
	"testing"

	"tenderwatch/sync-service/internal/model"
	"tenderwatch/sync-service/internal/tender"
)

func TestClassifyRegion(t *testing.T) {
	cases := []struct {
		number string
		title  string
		want   model.Region
	}{
		{"2024/OR/001", "", model.RegionRzeszow},
		{"2024/OSK/003", "", model.RegionSkarzysko},
		{"", "Przetarg w Rzeszowie", model.RegionRzeszow},
		{"X/1", "Nic", ""},
		{"post/or/12/2024", "", model.RegionRzeszow}, // number is upper-cased first
		{"", "Dostawa dla oddziału Skarżysko-Kamienna", model.RegionSkarzysko},
		{"", "DOSTAWA SKARZYSKO", model.RegionSkarzysko},
		{"", "Remont w RZESZÓW", model.RegionRzeszow},
		{"", "", ""},
		{"2024/ORX/1", "", ""},
	}
	for _, c := range cases {
		if got := tender.ClassifyRegion(c.number, c.title); got != c.want {
			t.Errorf("ClassifyRegion(%q, %q) = %q, want %q", c.number, c.title, got, c.want)
		}
	}
}

// The first branch is checked before the second, on number and title alike.
func TestClassifyRegion_FirstBranchWins(t *testing.T) {
	got := tender.ClassifyRegion("POST/OSK/1/2024", "Dostawa do Rzeszowa")
	if got != model.RegionRzeszow {
		t.Errorf("ClassifyRegion = %q, want %q", got, model.RegionRzeszow)
	}
}
