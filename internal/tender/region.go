// Package tender turns raw portal notices into canonical tenders:
// field extraction, deadline normalization, branch classification,
// deduplication and the eligibility filter.
package tender

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tenderwatch/sync-service/internal/model"
)

// branch describes how a region is recognized in a notice.
// Matching is plain substring search: notice numbering conventions on the
// portal are not guaranteed, so a permissive match is preferred.
type branch struct {
	region model.Region
	codes  []string // matched against the upper-cased notice number
	names  []string // matched against the lower-cased title (raw and folded)
}

// branches is evaluated in order; the first hit wins.
var branches = []branch{
	{region: model.RegionRzeszow, codes: []string{"/OR/"}, names: []string{"rzesz"}},
	{region: model.RegionSkarzysko, codes: []string{"/OSK/"}, names: []string{"skarż", "skarz"}},
}

// ClassifyRegion returns the branch a notice belongs to, or "" when neither
// the number nor the title identify one.
func ClassifyRegion(number, title string) model.Region {
	upper := strings.ToUpper(number)
	lower := strings.ToLower(title)
	folded := foldDiacritics(lower)

	for _, b := range branches {
		if containsAny(upper, b.codes) || containsAny(lower, b.names) || containsAny(folded, b.names) {
			return b.region
		}
	}
	return ""
}

func containsAny(s string, fragments []string) bool {
	if s == "" {
		return false
	}
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// foldDiacritics strips combining marks ("Skarżysko" -> "Skarzysko").
// Letters without a decomposition, such as "ł", are left as they are.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
