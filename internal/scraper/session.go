package scraper

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// csrfCookies maps token cookie names to the header the server expects the
// token echoed in. Checked in order.
var csrfCookies = []struct{ cookie, header string }{
	{"XSRF-TOKEN", "X-XSRF-TOKEN"},
	{"CSRF-TOKEN", "X-CSRF-TOKEN"},
	{"csrftoken", "X-CSRFToken"},
	{"_csrf", "X-CSRF-TOKEN"},
}

// Session is the credential material harvested from the live page.
type Session struct {
	Cookies    []*http.Cookie
	CSRFHeader string
	CSRFToken  string
	UserAgent  string
	Referer    string // listing page URL
	Origin     string // portal origin
}

// HarvestSession collects the cookies of the page and a CSRF token, taken
// from a token cookie or, failing that, from Spring-style <meta name="_csrf">
// tags in the rendered HTML.
func HarvestSession(cookies []*http.Cookie, html, userAgent, referer, origin string) Session {
	s := Session{
		Cookies:   cookies,
		UserAgent: userAgent,
		Referer:   referer,
		Origin:    origin,
	}
	s.CSRFHeader, s.CSRFToken = csrfFromCookies(cookies)
	if s.CSRFToken == "" {
		s.CSRFHeader, s.CSRFToken = csrfFromHTML(html)
	}
	return s
}

func csrfFromCookies(cookies []*http.Cookie) (header, token string) {
	for _, cc := range csrfCookies {
		for _, c := range cookies {
			if c.Name != cc.cookie || c.Value == "" {
				continue
			}
			// Path rules, like decodeURIComponent: '+' stays literal.
			v, err := url.PathUnescape(c.Value)
			if err != nil {
				v = c.Value
			}
			return cc.header, v
		}
	}
	return "", ""
}

func csrfFromHTML(html string) (header, token string) {
	if strings.TrimSpace(html) == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	token = strings.TrimSpace(doc.Find(`meta[name="_csrf"]`).AttrOr("content", ""))
	if token == "" {
		return "", ""
	}
	header = strings.TrimSpace(doc.Find(`meta[name="_csrf_header"]`).AttrOr("content", ""))
	if header == "" {
		header = "X-CSRF-TOKEN"
	}
	return header, token
}

// CookieHeader renders the cookies as a single Cookie header value.
func (s Session) CookieHeader() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Header builds the fixed header set of an external replay request.
func (s Session) Header() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("User-Agent", s.UserAgent)
	h.Set("Referer", s.Referer)
	h.Set("Origin", s.Origin)
	if cookie := s.CookieHeader(); cookie != "" {
		h.Set("Cookie", cookie)
	}
	if s.CSRFToken != "" {
		h.Set(s.CSRFHeader, s.CSRFToken)
	}
	return h
}

// PageHeaders is the header subset added to in-page requests; the browser
// supplies cookies, origin and user agent on its own.
func (s Session) PageHeaders() map[string]string {
	h := map[string]string{"Accept": "application/json, text/plain, */*"}
	if s.CSRFToken != "" {
		h[s.CSRFHeader] = s.CSRFToken
	}
	return h
}
