package tender

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"tenderwatch/sync-service/internal/model"
)

// Candidate keys per logical attribute, in priority order. The portal has
// used several spellings; extend these lists when a new one shows up.
var (
	idKeys       = []string{"id", "noticeId", "noticeID", "demandNoticeId", "demandId"}
	numberKeys   = []string{"noticeNumber", "number", "code"}
	titleKeys    = []string{"title", "subject", "name"}
	deadlineKeys = []string{"submissionDeadline", "offerSubmissionDeadline", "deadline", "offersSubmissionDate"}
)

// detailPath is the portal's deep link for a single notice; %s is the id.
const detailPath = "/app/demand/notice/public/%s/details"

// Builder converts raw notices to tenders. BaseURL is the portal origin used
// for deep links, ListURL the fallback link when a notice has no id.
type Builder struct {
	BaseURL string
	ListURL string
}

// NewBuilder returns a Builder for the given portal origin and listing page.
func NewBuilder(baseURL, listURL string) *Builder {
	return &Builder{BaseURL: strings.TrimRight(baseURL, "/"), ListURL: listURL}
}

// ToTender extracts the canonical fields from a raw notice. It never fails:
// a notice with an unexpected shape simply yields empty fields.
func (b *Builder) ToTender(raw model.RawNotice) model.Tender {
	t := model.Tender{
		ID:       firstValue(raw, idKeys),
		Number:   firstValue(raw, numberKeys),
		Title:    firstValue(raw, titleKeys),
		Deadline: firstValue(raw, deadlineKeys),
	}
	t.Region = ClassifyRegion(t.Number, t.Title)
	t.URL = b.detailURL(t.ID)
	return t
}

func (b *Builder) detailURL(id string) string {
	if id == "" {
		return b.ListURL
	}
	return b.BaseURL + fmt.Sprintf(detailPath, url.PathEscape(id))
}

// firstValue returns the first candidate key holding a usable scalar.
// Strings are trimmed and skipped when blank; numbers are kept verbatim
// (zero counts as absent); any other JSON type is skipped.
func firstValue(raw []byte, keys []string) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return ""
	}
	for _, key := range keys {
		r := doc.Get(key)
		switch r.Type {
		case gjson.String:
			if s := strings.TrimSpace(r.Str); s != "" {
				return s
			}
		case gjson.Number:
			if r.Num != 0 {
				return r.Raw
			}
		}
	}
	return ""
}

var (
	canonicalDeadline = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}\s+\d{2}:\d{2}$`)
	isoDeadline       = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T\s](\d{2}):(\d{2})`)
)

// NormalizeDeadline renders a deadline as "DD-MM-YYYY HH:MM".
// Canonical input is returned unchanged, ISO-like input is reordered with
// seconds and zone dropped, anything else is passed through untouched.
// The function is idempotent.
func NormalizeDeadline(v string) string {
	if v == "" || canonicalDeadline.MatchString(v) {
		return v
	}
	if m := isoDeadline.FindStringSubmatch(v); m != nil {
		return m[3] + "-" + m[2] + "-" + m[1] + " " + m[4] + ":" + m[5]
	}
	return v
}
