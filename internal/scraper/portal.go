package scraper

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// listPath is the public listing page of current notices.
const listPath = "/app/demand/notice/public/current/list"

// DefaultUserAgent is sent by the page and by the external prober.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"

// CandidateEndpoints are the listing API paths tried during replay, in order.
var CandidateEndpoints = []string{
	"/app/demand/notice/public/current/api/list",
	"/app/demand/notice/public/api/notices",
	"/app/demand/notice/public/notices/search",
}

// candidateBodies returns the POST bodies tried against every endpoint:
// the filter nested under "filters", then the same filter flattened.
func candidateBodies(org string) []map[string]any {
	filter := map[string]any{
		"demandOrganization_orgName":     org,
		"demandOrganization_withSuborgs": true,
		"onlyCurrent":                    true,
	}
	nested := map[string]any{
		"page":    0,
		"size":    200,
		"sort":    []string{"publicationDate,desc"},
		"filters": filter,
	}
	flat := map[string]any{
		"page": 0,
		"size": 200,
		"sort": []string{"publicationDate,desc"},
	}
	for k, v := range filter {
		flat[k] = v
	}
	return []map[string]any{nested, flat}
}

// candidateQuery is the query string of the GET pass.
func candidateQuery(org string) string {
	q := url.Values{}
	q.Set("page", "0")
	q.Set("size", "200")
	q.Set("sort", "publicationDate,desc")
	q.Set("demandOrganization_orgName", org)
	q.Set("demandOrganization_withSuborgs", "true")
	q.Set("onlyCurrent", "true")
	return q.Encode()
}

// ListURL builds the listing page URL for an organization, sub-organizations included.
func ListURL(baseURL, org string) string {
	q := url.Values{}
	q.Set("demandOrganization_orgName", org)
	q.Set("demandOrganization_withSuborgs", "true")
	return baseURL + listPath + "?" + q.Encode()
}

// Probe is one candidate request of the replay matrix. Path is relative to
// the portal origin and already carries the query string for GET probes.
type Probe struct {
	Method string
	Path   string
	Body   []byte
}

func (p Probe) String() string { return p.Method + " " + p.Path }

// Candidates returns the replay matrix: every endpoint × body as POST, then
// every endpoint as GET with the fixed query.
func Candidates(org string) []Probe {
	bodies := candidateBodies(org)
	probes := make([]Probe, 0, len(CandidateEndpoints)*(len(bodies)+1))

	for _, ep := range CandidateEndpoints {
		for _, body := range bodies {
			b, err := json.Marshal(body)
			if err != nil {
				continue
			}
			probes = append(probes, Probe{Method: http.MethodPost, Path: ep, Body: b})
		}
	}

	query := candidateQuery(org)
	for _, ep := range CandidateEndpoints {
		probes = append(probes, Probe{Method: http.MethodGet, Path: ep + "?" + query})
	}
	return probes
}
