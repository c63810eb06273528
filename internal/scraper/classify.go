// Package scraper discovers the portal's notice listing and drives a full
// sync run. The listing API is undocumented and has moved before, so the
// discovery engine layers several strategies: passive capture of the page's
// own traffic, direct replay with harvested session credentials, and replay
// from inside the page as a last resort.
package scraper

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"tenderwatch/sync-service/internal/model"
)

// listingURLPattern is the loose match for listing calls the page makes.
var listingURLPattern = regexp.MustCompile(`(?i)/api/.*notices?`)

// envelopeFields are checked in order when a listing arrives wrapped in an object.
var envelopeFields = []string{"content", "items", "data", "results"}

// LooksLikeListingURL reports whether url is plausibly the listing API:
// one of the known endpoint paths, or an /api/ path mentioning notices.
func LooksLikeListingURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ep := range CandidateEndpoints {
		if strings.Contains(lower, strings.ToLower(ep)) {
			return true
		}
	}
	return listingURLPattern.MatchString(url)
}

// IsJSONContentType reports whether the Content-Type header mentions json.
func IsJSONContentType(h http.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("Content-Type")), "json")
}

// UnwrapEnvelope returns the notice sequence inside body: the body itself
// when it is an array, otherwise the first non-empty array under one of the
// envelope fields. Anything else, including invalid JSON, yields nil.
func UnwrapEnvelope(body []byte) []model.RawNotice {
	if !gjson.ValidBytes(body) {
		return nil
	}
	doc := gjson.ParseBytes(body)
	if doc.IsArray() {
		return elements(doc)
	}
	if !doc.IsObject() {
		return nil
	}
	for _, field := range envelopeFields {
		r := doc.Get(field)
		if r.IsArray() && len(r.Array()) > 0 {
			return elements(r)
		}
	}
	return nil
}

func elements(arr gjson.Result) []model.RawNotice {
	items := arr.Array()
	out := make([]model.RawNotice, 0, len(items))
	for _, it := range items {
		out = append(out, model.RawNotice(it.Raw))
	}
	return out
}
