package tender

import "tenderwatch/sync-service/internal/model"

// Stats counts what happened to a batch of raw notices.
type Stats struct {
	Raw      int
	Unique   int
	Eligible int
}

// identityKey joins the notice id and number into the composite key used
// for deduplication.
func identityKey(raw model.RawNotice) string {
	return firstValue(raw, idKeys) + "|" + firstValue(raw, numberKeys)
}

// DedupeRaw keeps the first notice seen per (id, number) pair, preserving
// first-seen order. Running it on its own output is a no-op.
func DedupeRaw(records []model.RawNotice) []model.RawNotice {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.RawNotice, 0, len(records))
	for _, r := range records {
		key := identityKey(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Prepare dedupes the raw notices, converts them to tenders and drops every
// tender that is not eligible for sync (no number or no recognized branch).
func (b *Builder) Prepare(records []model.RawNotice) ([]model.Tender, Stats) {
	stats := Stats{Raw: len(records)}

	unique := DedupeRaw(records)
	stats.Unique = len(unique)

	tenders := make([]model.Tender, 0, len(unique))
	for _, r := range unique {
		t := b.ToTender(r)
		if !t.Eligible() {
			continue
		}
		tenders = append(tenders, t)
	}
	stats.Eligible = len(tenders)

	return tenders, stats
}
